// Package resolver implements the three-tier ref resolution ladder, the
// defining algorithm of the ref registry: given a ref, try the cached
// backendNodeId first, fall back to re-locating the node by its domPath,
// and only then give up with REF_STALE.
package resolver

import (
	"context"

	"github.com/use-agent/browser-stream/internal/browsererr"
	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/model"
	"github.com/use-agent/browser-stream/internal/registry"
)

// ResolvedBy names which tier resolved the ref, surfaced on ActionResult
// so callers can detect selector-fallback paths that tend to correlate
// with flaky pages.
const (
	ResolvedByBackendNodeID = "backendNodeId"
	ResolvedByDOMPath       = "domPath"
)

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	BackendNodeID int64
	ResolvedBy    string
}

// Resolve runs the three-tier ladder for ref against reg, using ch to
// talk to the page. On a domPath-based resolution it writes the new
// BackendNodeID back into the registry and clears the Stale flag. It
// also blanks the stored AXNodeID, since a backend id recovered via
// selector re-location cannot be trusted to still own its old
// accessibility-tree identity.
func Resolve(ctx context.Context, ch cdp.Channel, reg *registry.Registry, ref string) (Resolution, error) {
	id, ok := reg.Get(ref)
	if !ok {
		return Resolution{}, browsererr.New(browsererr.CodeNoSuchRef, "no such ref: "+ref, nil)
	}

	// Tier 1: DOM.resolveNode against the cached backendNodeId.
	if id.BackendNodeID != 0 {
		var res cdp.DOMResolveNodeResult
		err := ch.Send(ctx, "DOM.resolveNode", cdp.DOMResolveNodeParams{BackendNodeID: id.BackendNodeID}, &res)
		if err == nil && res.ObjectID != "" {
			return Resolution{BackendNodeID: id.BackendNodeID, ResolvedBy: ResolvedByBackendNodeID}, nil
		}
	}

	// Tier 2: re-locate via domPath against the document root.
	if id.DOMPath == "" {
		return Resolution{}, browsererr.New(browsererr.CodeRefStale, "ref stale: "+ref, nil)
	}

	var doc cdp.DOMGetDocumentResult
	if err := ch.Send(ctx, "DOM.getDocument", cdp.DOMGetDocumentParams{Depth: -1}, &doc); err != nil {
		return Resolution{}, browsererr.New(browsererr.CodeRefStale, "ref stale: "+ref, err)
	}

	var qs cdp.DOMQuerySelectorResult
	err := ch.Send(ctx, "DOM.querySelector", cdp.DOMQuerySelectorParams{NodeID: doc.Root.NodeID, Selector: id.DOMPath}, &qs)
	if err != nil || qs.NodeID == 0 {
		return Resolution{}, browsererr.New(browsererr.CodeRefStale, "ref stale: "+ref, err)
	}

	var described cdp.DOMDescribeNodeResult
	if err := ch.Send(ctx, "DOM.describeNode", cdp.DOMDescribeNodeParams{NodeID: qs.NodeID}, &described); err != nil {
		return Resolution{}, browsererr.New(browsererr.CodeRefStale, "ref stale: "+ref, err)
	}

	newBackendID := described.Node.BackendNodeID

	// Best-effort partial AX tree fetch; failures here don't fail the
	// resolution. Its result is not stored: AXNodeID is blanked below.
	var ax cdp.AXTreeResult
	_ = ch.Send(ctx, "Accessibility.getPartialAXTree", cdp.AXPartialParams{BackendNodeID: newBackendID}, &ax)

	updated := model.NodeIdentity{
		BackendNodeID: newBackendID,
		DOMPath:       id.DOMPath,
		AXNodeID:      "", // a backendNodeId recovered via selector re-location can't be trusted to own its old AX identity
		Stale:         false,
	}
	reg.Update(ref, updated)

	return Resolution{BackendNodeID: newBackendID, ResolvedBy: ResolvedByDOMPath}, nil
}
