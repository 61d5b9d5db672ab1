// Package orchestrator implements the action orchestrator:
// the shared pre/act/settle/post/diff pipeline for click, fill,
// press-key, scroll, navigate, and wait-for.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/browser-stream/internal/browsererr"
	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/config"
	"github.com/use-agent/browser-stream/internal/differ"
	"github.com/use-agent/browser-stream/internal/interactable"
	"github.com/use-agent/browser-stream/internal/model"
	"github.com/use-agent/browser-stream/internal/registry"
	"github.com/use-agent/browser-stream/internal/resolver"
	"github.com/use-agent/browser-stream/internal/snapshot"
	"github.com/use-agent/browser-stream/internal/stability"
)

// Orchestrator holds the CDP channel and ref registry a page's actions
// run against. It is not safe for concurrent use; the single-threaded
// cooperative model means tool invocations are serialized at
// the transport boundary before they ever reach here.
type Orchestrator struct {
	Channel  cdp.Channel
	Registry *registry.Registry

	debounceFor  time.Duration
	hardCapAfter time.Duration
}

// New builds an Orchestrator bound to ch and reg. stab supplies the
// stability waiter's debounce and hard-cap durations; a zero value in
// either field falls back to the package defaults.
func New(ch cdp.Channel, reg *registry.Registry, stab config.StabilityConfig) *Orchestrator {
	o := &Orchestrator{Channel: ch, Registry: reg, debounceFor: stab.DebounceMS, hardCapAfter: stab.HardCapMS}
	if o.debounceFor <= 0 {
		o.debounceFor = stability.DefaultDebounce
	}
	if o.hardCapAfter <= 0 {
		o.hardCapAfter = stability.DefaultHardCap
	}
	return o
}

func (o *Orchestrator) channelState() error {
	switch o.Channel.State() {
	case cdp.StateCrashed:
		return browsererr.New(browsererr.CodePageCrashed, "cdp channel crashed", nil)
	case cdp.StateDisconnected:
		return browsererr.New(browsererr.CodeCDPDisconnected, "cdp channel disconnected", nil)
	}
	return nil
}

func toDetail(err error) browsererr.Detail {
	if be, ok := err.(*browsererr.BrowserError); ok {
		return be.ToDetail()
	}
	return browsererr.Detail{Code: browsererr.CodeActionFailed, Message: err.Error()}
}

func (o *Orchestrator) errorResult(action string, started time.Time, err error) model.ActionResult {
	detail := toDetail(err)
	res := model.ActionResult{
		Version:      1,
		Action:       action,
		OK:           false,
		Consequences: []model.Consequence{},
		Errors:       []model.ErrorDetail{{Code: detail.Code, Message: detail.Message}},
		TimingMs:     time.Since(started).Milliseconds(),
	}
	logActionResult(res)
	return res
}

func (o *Orchestrator) snapshotErrorResult(action string, err error, started time.Time) model.SnapshotResult {
	detail := toDetail(err)
	res := model.SnapshotResult{
		Version:  1,
		OK:       false,
		Errors:   []model.ErrorDetail{{Code: detail.Code, Message: detail.Message}},
		TimingMs: time.Since(started).Milliseconds(),
	}
	logSnapshotResult(action, res)
	return res
}

// logActionResult reports the outcome of a mutating action: Info on a
// clean success, Warn when the result carries a failure or warnings.
// Error is reserved for init-level failures logged in cmd/browser-stream.
func logActionResult(res model.ActionResult) {
	switch {
	case !res.OK:
		slog.Warn("action failed", "action", res.Action, "errors", res.Errors, "timingMs", res.TimingMs)
	case len(res.Warnings) > 0:
		slog.Warn("action completed with warnings", "action", res.Action, "warnings", res.Warnings, "resolvedBy", res.ResolvedBy, "timingMs", res.TimingMs)
	default:
		slog.Info("action completed", "action", res.Action, "resolvedBy", res.ResolvedBy, "timingMs", res.TimingMs)
	}
}

// logSnapshotResult is logActionResult's counterpart for the
// observation-tool envelope returned by Navigate and WaitFor.
func logSnapshotResult(action string, res model.SnapshotResult) {
	if !res.OK {
		slog.Warn("action failed", "action", action, "errors", res.Errors, "timingMs", res.TimingMs)
		return
	}
	slog.Info("action completed", "action", action, "timingMs", res.TimingMs)
}

// primitiveFunc executes an action's input primitives
// after the pre-snapshot has been taken and actionStart recorded.
type primitiveFunc func(ctx context.Context, actionStart float64) (warnings []string, err error)

// run drives the shared pipeline: pre-snapshot, primitive, stability,
// post-snapshot, diff, envelope. Click, fill, and press-key all use it
// directly; scroll and navigate have enough extra cross-stage state
// (mutation/layout-shift tracking, the load-event race) that they
// implement the pipeline themselves below.
func (o *Orchestrator) run(ctx context.Context, action string, started time.Time, resolvedBy string, primitive primitiveFunc) model.ActionResult {
	pre, err := snapshot.Take(ctx, o.Channel, o.Registry, snapshot.Options{KeepExistingRefs: true})
	if err != nil {
		return o.errorResult(action, started, err)
	}

	actionStart := cdpNowSeconds()

	warnings, err := primitive(ctx, actionStart)
	if err != nil {
		return o.errorResult(action, started, err)
	}

	waitRes := stability.Wait(ctx, o.Channel, actionStart, o.debounceFor, o.hardCapAfter)
	if waitRes.TimedOut {
		warnings = append(warnings, "STABILITY_TIMEOUT")
	}

	post, err := snapshot.Take(ctx, o.Channel, o.Registry, snapshot.Options{})
	if err != nil {
		return o.errorResult(action, started, err)
	}

	consequences := differ.Diff(pre.Elements, post.Elements, waitRes.NetworkEvents)

	res := model.ActionResult{
		Version:                1,
		Action:                 action,
		OK:                     true,
		Page:                   post.Page,
		Consequences:           consequences,
		NewInteractiveElements: newInteractiveElements(consequences, post.Elements),
		Warnings:               warnings,
		ResolvedBy:             resolvedBy,
		TimingMs:               time.Since(started).Milliseconds(),
	}
	logActionResult(res)
	return res
}

func newInteractiveElements(consequences []model.Consequence, post []model.SnapshotElement) []string {
	var out []string
	for _, c := range consequences {
		if c.Kind != model.ConsequenceAppeared {
			continue
		}
		for _, e := range post {
			if e.Ref == c.Ref {
				out = append(out, e.CompactLine)
			}
		}
	}
	return out
}

func cdpNowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Click dispatches mouse moved/pressed/released at the interactable
// centroid of ref.
func (o *Orchestrator) Click(ctx context.Context, ref string) model.ActionResult {
	started := time.Now()
	if err := o.channelState(); err != nil {
		return o.errorResult("click", started, err)
	}

	pt, err := interactable.Check(ctx, o.Channel, o.Registry, ref)
	if err != nil {
		return o.errorResult("click", started, err)
	}

	return o.run(ctx, "click", started, pt.ResolvedBy, func(ctx context.Context, _ float64) ([]string, error) {
		for _, step := range []struct {
			kind       string
			clickCount int
		}{
			{"mouseMoved", 0},
			{"mousePressed", 1},
			{"mouseReleased", 1},
		} {
			if err := o.Channel.Send(ctx, "Input.dispatchMouseEvent", cdp.InputDispatchMouseEventParams{
				Type:       step.kind,
				X:          pt.X,
				Y:          pt.Y,
				Button:     "left",
				ClickCount: step.clickCount,
			}, nil); err != nil {
				return nil, browsererr.New(browsererr.CodeActionFailed, "click: "+step.kind+" failed", err)
			}
		}
		return nil, nil
	})
}

// Fill focuses ref and writes value via the contentEditable path or the
// native value-setter path, depending on the element.
func (o *Orchestrator) Fill(ctx context.Context, ref, value string) model.ActionResult {
	started := time.Now()
	if err := o.channelState(); err != nil {
		return o.errorResult("fill", started, err)
	}

	pt, err := interactable.Check(ctx, o.Channel, o.Registry, ref)
	if err != nil {
		return o.errorResult("fill", started, err)
	}

	return o.run(ctx, "fill", started, pt.ResolvedBy, func(ctx context.Context, _ float64) ([]string, error) {
		var editableRes cdp.RuntimeEvaluateResult
		if err := o.Channel.Send(ctx, "Runtime.callFunctionOn", cdp.RuntimeCallFunctionOnParams{
			ObjectID:            pt.ObjectID,
			FunctionDeclaration: isContentEditableJS,
			ReturnByValue:       true,
		}, &editableRes); err != nil {
			return nil, browsererr.New(browsererr.CodeFillFailed, "fill: isContentEditable probe failed", err)
		}

		if editableRes.Value == "true" {
			var res cdp.RuntimeEvaluateResult
			if err := o.Channel.Send(ctx, "Runtime.callFunctionOn", cdp.RuntimeCallFunctionOnParams{
				ObjectID:            pt.ObjectID,
				FunctionDeclaration: fillEditableJS(value),
				ReturnByValue:       true,
			}, &res); err != nil || res.Value != "ok" {
				return nil, browsererr.New(browsererr.CodeFillFailed, "value not persisted to "+ref, err)
			}
			return nil, nil
		}

		var res cdp.RuntimeEvaluateResult
		if err := o.Channel.Send(ctx, "Runtime.callFunctionOn", cdp.RuntimeCallFunctionOnParams{
			ObjectID:            pt.ObjectID,
			FunctionDeclaration: fillNativeJS(value),
			ReturnByValue:       true,
		}, &res); err != nil {
			return nil, browsererr.New(browsererr.CodeFillFailed, "fill: native setter invocation failed", err)
		}
		if res.Value != value {
			return nil, browsererr.New(browsererr.CodeFillFailed, "value not persisted to "+ref, nil)
		}
		return nil, nil
	})
}

// PressKey parses input (e.g. "Control+a") and dispatches keyDown,
// optionally char, then keyUp against whatever element currently holds
// focus; it runs without an interactable check since there is no target
// element.
func (o *Orchestrator) PressKey(ctx context.Context, input string) model.ActionResult {
	started := time.Now()
	if err := o.channelState(); err != nil {
		return o.errorResult("press_key", started, err)
	}

	parsed, err := parsePressKey(input)
	if err != nil {
		return o.errorResult("press_key", started, err)
	}

	return o.run(ctx, "press_key", started, "", func(ctx context.Context, _ float64) ([]string, error) {
		if err := o.Channel.Send(ctx, "Input.dispatchKeyEvent", cdp.InputDispatchKeyEventParams{
			Type:                  "keyDown",
			Key:                   parsed.Spec.Key,
			Code:                  parsed.Spec.Code,
			WindowsVirtualKeyCode: parsed.Spec.KeyCode,
			Modifiers:             parsed.Modifiers,
		}, nil); err != nil {
			return nil, browsererr.New(browsererr.CodeActionFailed, "press_key: keyDown failed", err)
		}

		if isSinglePrintable(parsed.Spec.Key) && parsed.Modifiers&(modCtrl|modAlt|modMeta) == 0 {
			if err := o.Channel.Send(ctx, "Input.dispatchKeyEvent", cdp.InputDispatchKeyEventParams{
				Type:                  "char",
				Key:                   parsed.Spec.Key,
				Code:                  parsed.Spec.Code,
				WindowsVirtualKeyCode: parsed.Spec.KeyCode,
				Modifiers:             parsed.Modifiers,
				Text:                  parsed.Spec.Key,
			}, nil); err != nil {
				return nil, browsererr.New(browsererr.CodeActionFailed, "press_key: char failed", err)
			}
		}

		if err := o.Channel.Send(ctx, "Input.dispatchKeyEvent", cdp.InputDispatchKeyEventParams{
			Type:                  "keyUp",
			Key:                   parsed.Spec.Key,
			Code:                  parsed.Spec.Code,
			WindowsVirtualKeyCode: parsed.Spec.KeyCode,
			Modifiers:             parsed.Modifiers,
		}, nil); err != nil {
			return nil, browsererr.New(browsererr.CodeActionFailed, "press_key: keyUp failed", err)
		}

		return nil, nil
	})
}

// ScrollAmount is the parsed `amount` input: either a named mode or a
// pixel count.
type ScrollAmount struct {
	Kind   string // "page", "to-top", "to-bottom", "number"
	Number float64
}

// ScrollInput is the parsed browser_scroll tool input.
type ScrollInput struct {
	Ref       string
	Direction string // "up" | "down"
	Amount    ScrollAmount
}

type scrollPrimitiveResult struct {
	ScrollTopBefore float64 `json:"scrollTopBefore"`
	ScrollTopAfter  float64 `json:"scrollTopAfter"`
	ScrollHeight    float64 `json:"scrollHeight"`
	ClientHeight    float64 `json:"clientHeight"`
	ContainerTag    string  `json:"containerTag"`
	Fallback        bool    `json:"fallback"`
}

// Scroll runs a scroll primitive against a ref's scrollable ancestor (or
// the viewport) with DOM-churn and layout-shift probes bracketing the
// stability wait. It does not use the shared run() helper
// because the mutation tracker and layout-shift observer must stay alive
// across the stability wait rather than being confined to the primitive
// step.
func (o *Orchestrator) Scroll(ctx context.Context, in ScrollInput) model.ActionResult {
	started := time.Now()
	if err := o.channelState(); err != nil {
		return o.errorResult("scroll", started, err)
	}

	var objectID, resolvedBy string
	if in.Ref != "" {
		res, err := resolver.Resolve(ctx, o.Channel, o.Registry, in.Ref)
		if err != nil {
			return o.errorResult("scroll", started, err)
		}
		var resolved cdp.DOMResolveNodeResult
		if err := o.Channel.Send(ctx, "DOM.resolveNode", cdp.DOMResolveNodeParams{BackendNodeID: res.BackendNodeID}, &resolved); err != nil || resolved.ObjectID == "" {
			return o.errorResult("scroll", started, browsererr.New(browsererr.CodeNotInteractable, "unable to resolve a handle for "+in.Ref, err))
		}
		objectID = resolved.ObjectID
		resolvedBy = res.ResolvedBy
	}

	pre, err := snapshot.Take(ctx, o.Channel, o.Registry, snapshot.Options{KeepExistingRefs: true})
	if err != nil {
		return o.errorResult("scroll", started, err)
	}

	resolvedIntent := in.Direction
	switch in.Amount.Kind {
	case "to-top":
		resolvedIntent = "up"
	case "to-bottom":
		resolvedIntent = "down"
	}

	stability.InstallLayoutShiftObserver(ctx, o.Channel)
	_ = o.Channel.Send(ctx, "DOM.getDocument", cdp.DOMGetDocumentParams{Depth: -1}, &cdp.DOMGetDocumentResult{})
	tracker := stability.StartMutationTracker(o.Channel)

	actionStart := cdpNowSeconds()

	scrollRes, err := o.runScrollPrimitive(ctx, objectID, in)
	if err != nil {
		tracker.Stop()
		return o.errorResult("scroll", started, err)
	}

	waitRes := stability.Wait(ctx, o.Channel, actionStart, o.debounceFor, o.hardCapAfter)
	churn := tracker.Stop()
	cls, shiftCount := stability.CollectLayoutShift(ctx, o.Channel)

	var warnings []string
	if waitRes.TimedOut {
		warnings = append(warnings, "STABILITY_TIMEOUT")
	}
	if scrollRes.ScrollTopBefore == scrollRes.ScrollTopAfter {
		if resolvedIntent == "up" {
			warnings = append(warnings, "SCROLL_AT_BOUNDARY: Already at top")
		} else {
			warnings = append(warnings, "SCROLL_AT_BOUNDARY: Already at bottom")
		}
	}
	if scrollRes.Fallback && in.Ref != "" {
		warnings = append(warnings, fmt.Sprintf("SCROLL_FALLBACK: No scrollable ancestor found for %s, scrolling viewport instead", in.Ref))
	}

	post, err := snapshot.Take(ctx, o.Channel, o.Registry, snapshot.Options{})
	if err != nil {
		return o.errorResult("scroll", started, err)
	}

	consequences := differ.Diff(pre.Elements, post.Elements, waitRes.NetworkEvents)
	if churn > 0 {
		consequences = append(consequences, model.Consequence{
			Kind:       model.ConsequenceDOMChurn,
			Desc:       fmt.Sprintf("dom churned: %d node(s) replaced", churn),
			ChurnCount: churn,
		})
	}
	if cls > 0 {
		consequences = append(consequences, model.Consequence{
			Kind:       model.ConsequenceLayoutShift,
			Desc:       fmt.Sprintf("layout shifted: cls=%.4f across %d shift(s)", cls, shiftCount),
			CLS:        cls,
			ShiftCount: shiftCount,
		})
	}

	res := model.ActionResult{
		Version:                1,
		Action:                 "scroll",
		OK:                     true,
		Page:                   post.Page,
		Consequences:           consequences,
		NewInteractiveElements: newInteractiveElements(consequences, post.Elements),
		Warnings:               warnings,
		ResolvedBy:             resolvedBy,
		TimingMs:               time.Since(started).Milliseconds(),
	}
	logActionResult(res)
	return res
}

func (o *Orchestrator) runScrollPrimitive(ctx context.Context, objectID string, in ScrollInput) (scrollPrimitiveResult, error) {
	var res cdp.RuntimeEvaluateResult
	var err error

	if objectID != "" {
		err = o.Channel.Send(ctx, "Runtime.callFunctionOn", cdp.RuntimeCallFunctionOnParams{
			ObjectID:            objectID,
			FunctionDeclaration: scrollRefJS(in.Direction, in.Amount.Kind, in.Amount.Number),
			ReturnByValue:       true,
		}, &res)
	} else {
		err = o.Channel.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{
			Expression:    scrollViewportJS(in.Direction, in.Amount.Kind, in.Amount.Number),
			ReturnByValue: true,
		}, &res)
	}
	if err != nil {
		return scrollPrimitiveResult{}, browsererr.New(browsererr.CodeActionFailed, "scroll primitive failed", err)
	}

	var parsed scrollPrimitiveResult
	if err := json.Unmarshal([]byte(res.Value), &parsed); err != nil {
		return scrollPrimitiveResult{}, browsererr.New(browsererr.CodeScriptError, "scroll result decode failed", err)
	}
	return parsed, nil
}

// Navigate sends Page.navigate and races Page.loadEventFired against a
// 30s timeout. On success it invalidates every existing ref
// and returns a fresh snapshot.
func (o *Orchestrator) Navigate(ctx context.Context, url string) model.SnapshotResult {
	started := time.Now()
	if err := o.channelState(); err != nil {
		return o.snapshotErrorResult("navigate", err, started)
	}

	loaded := make(chan struct{}, 1)
	sub := o.Channel.On("Page.loadEventFired", func(cdp.Event) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	defer o.Channel.Off(sub)

	if err := o.Channel.Send(ctx, "Page.navigate", cdp.PageNavigateParams{URL: url}, nil); err != nil {
		return o.snapshotErrorResult("navigate", browsererr.New(browsererr.CodeActionFailed, "navigate failed", err), started)
	}

	select {
	case <-loaded:
	case <-time.After(30 * time.Second):
		return o.snapshotErrorResult("navigate", browsererr.New(browsererr.CodeActionFailed, "navigation timed out after 30s", nil), started)
	case <-ctx.Done():
		return o.snapshotErrorResult("navigate", browsererr.New(browsererr.CodeActionFailed, "navigation canceled", ctx.Err()), started)
	}

	o.Registry.MarkAllStale()

	data, err := snapshot.Take(ctx, o.Channel, o.Registry, snapshot.Options{})
	if err != nil {
		return o.snapshotErrorResult("navigate", err, started)
	}
	res := model.SnapshotDataToResult(data, time.Since(started).Milliseconds())
	logSnapshotResult("navigate", res)
	return res
}

// WaitForInput is the parsed browser_wait_for tool input.
type WaitForInput struct {
	Text    string
	Ref     string
	Timeout time.Duration
}

// WaitFor polls every 500ms until the supplied text/ref conditions hold
// or the timeout expires. The ref condition only resolves
// and reads the box model; it never scrolls or mutates page state.
func (o *Orchestrator) WaitFor(ctx context.Context, in WaitForInput) model.SnapshotResult {
	started := time.Now()
	if in.Timeout <= 0 {
		in.Timeout = 10 * time.Second
	}
	deadline := started.Add(in.Timeout)

	for {
		if err := o.channelState(); err != nil {
			return o.snapshotErrorResult("wait_for", err, started)
		}

		ok, data, err := o.waitForConditionsMet(ctx, in)
		if err != nil {
			return o.snapshotErrorResult("wait_for", err, started)
		}
		if ok {
			res := model.SnapshotDataToResult(data, time.Since(started).Milliseconds())
			logSnapshotResult("wait_for", res)
			return res
		}
		if time.Now().After(deadline) {
			return o.snapshotErrorResult("wait_for", browsererr.New(browsererr.CodeWaitTimeout, "wait-for timed out", nil), started)
		}

		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return o.snapshotErrorResult("wait_for", browsererr.New(browsererr.CodeWaitTimeout, "wait-for canceled", ctx.Err()), started)
		}
	}
}

func (o *Orchestrator) waitForConditionsMet(ctx context.Context, in WaitForInput) (bool, model.SnapshotData, error) {
	data, err := snapshot.Take(ctx, o.Channel, o.Registry, snapshot.Options{KeepExistingRefs: true})
	if err != nil {
		return false, model.SnapshotData{}, err
	}

	textOK := in.Text == ""
	if in.Text != "" {
		needle := strings.ToLower(in.Text)
		if strings.Contains(strings.ToLower(data.Page.Title), needle) {
			textOK = true
		}
		for _, e := range data.Elements {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				textOK = true
				break
			}
			if v, ok := e.Properties["value"]; ok && strings.Contains(strings.ToLower(v), needle) {
				textOK = true
				break
			}
		}
	}

	refOK := in.Ref == ""
	if in.Ref != "" {
		if res, err := resolver.Resolve(ctx, o.Channel, o.Registry, in.Ref); err == nil {
			var box cdp.DOMGetBoxModelResult
			if serr := o.Channel.Send(ctx, "DOM.getBoxModel", cdp.DOMGetBoxModelParams{BackendNodeID: res.BackendNodeID}, &box); serr == nil {
				refOK = true
			}
		}
	}

	return textOK && refOK, data, nil
}
