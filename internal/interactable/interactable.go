// Package interactable implements the interactable check:
// resolving a ref to a clickable viewport coordinate, scrolling it into
// view if necessary.
package interactable

import (
	"context"

	"github.com/use-agent/browser-stream/internal/browsererr"
	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/registry"
	"github.com/use-agent/browser-stream/internal/resolver"
)

// Point is the resolved, clickable location for a ref.
type Point struct {
	ObjectID   string
	X          float64
	Y          float64
	ResolvedBy string
}

const scrollIntoViewJS = `function() { this.scrollIntoViewIfNeeded ? this.scrollIntoViewIfNeeded() : this.scrollIntoView(); return true; }`

// Check resolves ref, obtains its box model, and returns a centroid within
// the current visual viewport, scrolling the element into view once if
// the initial centroid falls outside it.
func Check(ctx context.Context, ch cdp.Channel, reg *registry.Registry, ref string) (Point, error) {
	res, err := resolver.Resolve(ctx, ch, reg, ref)
	if err != nil {
		return Point{}, err
	}

	var resolved cdp.DOMResolveNodeResult
	if err := ch.Send(ctx, "DOM.resolveNode", cdp.DOMResolveNodeParams{BackendNodeID: res.BackendNodeID}, &resolved); err != nil || resolved.ObjectID == "" {
		return Point{}, browsererr.New(browsererr.CodeNotInteractable, "unable to resolve a page handle for "+ref, err)
	}

	box, err := boxModel(ctx, ch, res.BackendNodeID)
	if err != nil {
		return Point{}, browsererr.New(browsererr.CodeNotInteractable, "element "+ref+" has no box model (hidden or zero-size)", err)
	}

	x, y := centroid(box)

	inViewport, err := withinViewport(ctx, ch, x, y)
	if err != nil {
		return Point{}, err
	}

	if !inViewport {
		var scrollRes cdp.RuntimeEvaluateResult
		_ = ch.Send(ctx, "Runtime.callFunctionOn", cdp.RuntimeCallFunctionOnParams{
			ObjectID:            resolved.ObjectID,
			FunctionDeclaration: scrollIntoViewJS,
			ReturnByValue:       true,
		}, &scrollRes)

		box, err = boxModel(ctx, ch, res.BackendNodeID)
		if err != nil {
			return Point{}, browsererr.New(browsererr.CodeNotInteractable, "element "+ref+" has no box model after scrollIntoView", err)
		}
		x, y = centroid(box)
	}

	return Point{ObjectID: resolved.ObjectID, X: x, Y: y, ResolvedBy: res.ResolvedBy}, nil
}

func boxModel(ctx context.Context, ch cdp.Channel, backendNodeID int64) (cdp.DOMBoxModel, error) {
	var res cdp.DOMGetBoxModelResult
	if err := ch.Send(ctx, "DOM.getBoxModel", cdp.DOMGetBoxModelParams{BackendNodeID: backendNodeID}, &res); err != nil {
		return cdp.DOMBoxModel{}, err
	}
	if len(res.Model.Content) < 8 {
		return cdp.DOMBoxModel{}, browsererr.New(browsererr.CodeNotInteractable, "box model content quad incomplete", nil)
	}
	return res.Model, nil
}

// centroid averages the four (x,y) corners of the content quad.
func centroid(box cdp.DOMBoxModel) (x, y float64) {
	c := box.Content
	x = (c[0] + c[2] + c[4] + c[6]) / 4
	y = (c[1] + c[3] + c[5] + c[7]) / 4
	return x, y
}

func withinViewport(ctx context.Context, ch cdp.Channel, x, y float64) (bool, error) {
	var metrics cdp.PageGetLayoutMetricsResult
	if err := ch.Send(ctx, "Page.getLayoutMetrics", nil, &metrics); err != nil {
		return false, err
	}
	vv := metrics.VisualViewport
	return x >= 0 && x <= vv.ClientWidth && y >= 0 && y <= vv.ClientHeight, nil
}
