// Package snapshot implements the snapshot builder: the
// accessibility-tree walk that is the primary extraction path, the DOM
// fallback for pages whose AX tree yields nothing interactive, and the
// compact-line serialization that is the sole user-visible rendering of
// an element.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/model"
	"github.com/use-agent/browser-stream/internal/registry"
)

// Options configures a single Take call.
type Options struct {
	// KeepExistingRefs, when true, leaves the registry untouched so refs
	// from a still-live pre-action snapshot continue to identify the
	// same nodes when the post-action snapshot is taken. Default false:
	// the registry is cleared (counter preserved) before assignment.
	KeepExistingRefs bool
}

// Take builds a SnapshotData from the current page.
func Take(ctx context.Context, ch cdp.Channel, reg *registry.Registry, opts Options) (model.SnapshotData, error) {
	if !opts.KeepExistingRefs {
		reg.Clear()
	}

	page, err := fetchPageInfo(ctx, ch)
	if err != nil {
		return model.SnapshotData{}, err
	}

	elements, err := buildFromAXTree(ctx, ch, reg)
	if err != nil {
		return model.SnapshotData{}, err
	}

	if len(elements) == 0 {
		var hasBody cdp.RuntimeEvaluateResult
		if err := ch.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{Expression: hasInteractiveBodyJS, ReturnByValue: true}, &hasBody); err == nil && hasBody.Value == "true" {
			elements, err = buildFromDOMFallback(ctx, ch, reg)
			if err != nil {
				return model.SnapshotData{}, err
			}
		}
	}

	return model.SnapshotData{Elements: elements, Page: page}, nil
}

func fetchPageInfo(ctx context.Context, ch cdp.Channel) (model.PageInfo, error) {
	var urlRes cdp.RuntimeEvaluateResult
	_ = ch.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{Expression: "location.href", ReturnByValue: true}, &urlRes)

	var titleRes cdp.RuntimeEvaluateResult
	_ = ch.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{Expression: "document.title", ReturnByValue: true}, &titleRes)

	var metrics cdp.PageGetLayoutMetricsResult
	_ = ch.Send(ctx, "Page.getLayoutMetrics", nil, &metrics)

	return model.PageInfo{
		URL:   urlRes.Value,
		Title: titleRes.Value,
		Viewport: model.Viewport{
			Width:  int(metrics.VisualViewport.ClientWidth),
			Height: int(metrics.VisualViewport.ClientHeight),
		},
	}, nil
}

func buildFromAXTree(ctx context.Context, ch cdp.Channel, reg *registry.Registry) ([]model.SnapshotElement, error) {
	var tree cdp.AXTreeResult
	if err := ch.Send(ctx, "Accessibility.getFullAXTree", nil, &tree); err != nil {
		return nil, err
	}

	var out []model.SnapshotElement
	for _, node := range tree.Nodes {
		if node.Ignored {
			continue
		}
		role := node.Role.Value
		if !model.InteractiveRoles[role] {
			continue
		}
		if node.BackendDOMNodeID == 0 {
			continue
		}

		props := projectAXProperties(node.Properties)
		name := node.Name.Value

		domPath, objectID := resolveDOMPath(ctx, ch, node.BackendDOMNodeID)
		if objectID != "" {
			_ = ch.Send(ctx, "Runtime.releaseObject", cdp.RuntimeReleaseObjectParams{ObjectID: objectID}, nil)
		}

		ref := reg.Assign(model.NodeIdentity{
			AXNodeID:      node.NodeID,
			BackendNodeID: node.BackendDOMNodeID,
			DOMPath:       domPath,
		})

		out = append(out, model.SnapshotElement{
			Ref:         ref,
			AXNodeID:    node.NodeID,
			DOMPath:     domPath,
			Role:        role,
			Name:        name,
			Properties:  props,
			CompactLine: CompactLine(ref, role, name, props),
		})
	}
	return out, nil
}

// resolveDOMPath resolves backendNodeID to a page object and computes its
// domPath by walking up from the element; the caller must
// release the returned objectID when non-empty.
func resolveDOMPath(ctx context.Context, ch cdp.Channel, backendNodeID int64) (domPath string, objectID string) {
	var resolved cdp.DOMResolveNodeResult
	if err := ch.Send(ctx, "DOM.resolveNode", cdp.DOMResolveNodeParams{BackendNodeID: backendNodeID}, &resolved); err != nil || resolved.ObjectID == "" {
		return "", ""
	}

	var pathRes cdp.RuntimeEvaluateResult
	if err := ch.Send(ctx, "Runtime.callFunctionOn", cdp.RuntimeCallFunctionOnParams{
		ObjectID:            resolved.ObjectID,
		FunctionDeclaration: domPathJS,
		ReturnByValue:       true,
	}, &pathRes); err != nil {
		return "", resolved.ObjectID
	}
	return pathRes.Value, resolved.ObjectID
}

func projectAXProperties(props []cdp.AXProperty) map[string]string {
	out := make(map[string]string, len(props))
	for _, p := range props {
		for _, key := range model.PropertyKeys {
			if p.Name == key {
				out[key] = p.Value.Value
			}
		}
	}
	return out
}

type fallbackRecord struct {
	Role    string `json:"role"`
	Name    string `json:"name"`
	DOMPath string `json:"domPath"`
	Value   string `json:"value"`
}

func buildFromDOMFallback(ctx context.Context, ch cdp.Channel, reg *registry.Registry) ([]model.SnapshotElement, error) {
	var res cdp.RuntimeEvaluateResult
	if err := ch.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{Expression: domFallbackJS, ReturnByValue: true}, &res); err != nil {
		return nil, fmt.Errorf("dom fallback evaluate: %w", err)
	}

	var records []fallbackRecord
	if res.Value != "" {
		if err := json.Unmarshal([]byte(res.Value), &records); err != nil {
			return nil, fmt.Errorf("dom fallback decode: %w", err)
		}
	}

	out := make([]model.SnapshotElement, 0, len(records))
	for _, rec := range records {
		// AX-fallback-style state properties are dropped entirely for
		// DOM-fallback elements; properties stays empty.
		ref := reg.Assign(model.NodeIdentity{DOMPath: rec.DOMPath})
		out = append(out, model.SnapshotElement{
			Ref:         ref,
			DOMPath:     rec.DOMPath,
			Role:        rec.Role,
			Name:        rec.Name,
			Properties:  map[string]string{},
			CompactLine: CompactLine(ref, rec.Role, rec.Name, nil),
		})
	}
	return out, nil
}
