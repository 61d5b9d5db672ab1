package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/browser-stream/internal/browsererr"
)

// RodChannel is the production Channel backed by github.com/go-rod/rod,
// calling proto.XXX{...}.Call(page) directly for each CDP method. Higher
// layers never import rod; they only see the Channel interface.
type RodChannel struct {
	page *rod.Page

	mu        sync.Mutex
	state     State
	subs      map[Subscription]subEntry
	nextSubID Subscription
	cancelSub context.CancelFunc
}

type subEntry struct {
	event   string
	handler Handler
}

// NewRodChannel enables the required CDP domains on page and starts the
// background event pump. It returns once the domains are enabled.
func NewRodChannel(page *rod.Page) (*RodChannel, error) {
	ch := &RodChannel{
		page:  page,
		state: StateOpen,
		subs:  make(map[Subscription]subEntry),
	}

	for _, call := range []proto.Request{
		&proto.PageEnable{},
		&proto.DOMEnable{},
		&proto.RuntimeEnable{},
		&proto.AccessibilityEnable{},
		&proto.NetworkEnable{},
		&proto.InspectorEnable{},
	} {
		if err := call.Call(page); err != nil {
			return nil, fmt.Errorf("enable %T: %w", call, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch.cancelSub = cancel
	go ch.pump(ctx)

	return ch, nil
}

// pump runs for the lifetime of the channel, forwarding every event this
// core cares about to subscribed handlers. It exits when ctx is canceled
// (Close) or the page's own context ends (browser/tab gone).
func (c *RodChannel) pump(ctx context.Context) {
	p := c.page.Context(ctx)

	wait := p.EachEvent(
		func(e *proto.PageLoadEventFired) {
			c.dispatch("Page.loadEventFired", PageLoadEventFired{Timestamp: float64(e.Timestamp)})
		},
		func(e *proto.DOMChildNodeInserted) {
			c.dispatch("DOM.childNodeInserted", DOMChildNodeInserted{ParentNodeID: int64(e.ParentNodeID)})
		},
		func(e *proto.DOMChildNodeRemoved) {
			c.dispatch("DOM.childNodeRemoved", DOMChildNodeRemoved{ParentNodeID: int64(e.ParentNodeID)})
		},
		func(e *proto.NetworkRequestWillBeSent) {
			evt := NetworkRequestWillBeSent{
				RequestID: string(e.RequestID),
				Timestamp: float64(e.Timestamp),
				Type:      string(e.Type),
			}
			evt.Request.URL = e.Request.URL
			evt.Request.Method = e.Request.Method
			c.dispatch("Network.requestWillBeSent", evt)
		},
		func(e *proto.NetworkLoadingFinished) {
			c.dispatch("Network.loadingFinished", NetworkLoadingFinished{
				RequestID: string(e.RequestID),
				Timestamp: float64(e.Timestamp),
			})
		},
		func(e *proto.NetworkLoadingFailed) {
			c.dispatch("Network.loadingFailed", NetworkLoadingFailed{
				RequestID: string(e.RequestID),
				Timestamp: float64(e.Timestamp),
			})
		},
		func(e *proto.InspectorTargetCrashed) {
			c.mu.Lock()
			c.state = StateCrashed
			c.mu.Unlock()
			c.dispatch("Inspector.targetCrashed", InspectorTargetCrashed{})
		},
	)
	wait()

	c.mu.Lock()
	if c.state == StateOpen {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
}

func (c *RodChannel) dispatch(method string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	evt := Event{Method: method, Params: raw}

	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for _, s := range c.subs {
		if s.event == method {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

func (c *RodChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RodChannel) On(event string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = subEntry{event: event, handler: h}
	return id
}

func (c *RodChannel) Off(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, sub)
}

func (c *RodChannel) Close() error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	if c.cancelSub != nil {
		c.cancelSub()
	}
	return nil
}

// Send dispatches one CDP request. It type-switches on method because
// each CDP command has its own typed params/result shape on both the
// wire and on go-rod's side; see cdp/wire.go for the shapes this core
// uses.
func (c *RodChannel) Send(ctx context.Context, method string, params, result any) error {
	switch c.State() {
	case StateCrashed:
		return browsererr.New(browsererr.CodePageCrashed, "cdp channel crashed", nil)
	case StateDisconnected:
		return browsererr.New(browsererr.CodeCDPDisconnected, "cdp channel disconnected", nil)
	}

	p := c.page.Context(ctx)

	switch method {
	case "Page.navigate":
		req := params.(PageNavigateParams)
		return proto.PageNavigate{URL: req.URL}.Call(p)

	case "Page.getLayoutMetrics":
		res, err := proto.PageGetLayoutMetrics{}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*PageGetLayoutMetricsResult)
		if res.CSSVisualViewport != nil {
			out.VisualViewport = VisualViewport{
				ClientWidth:  res.CSSVisualViewport.ClientWidth,
				ClientHeight: res.CSSVisualViewport.ClientHeight,
			}
		}
		return nil

	case "Page.getFrameTree":
		res, err := proto.PageGetFrameTree{}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*PageGetFrameTreeResult)
		out.FrameTree = PageFrameTree{Frame: PageFrame{
			ID:  string(res.Frame.ID),
			URL: res.Frame.URL,
		}}
		return nil

	case "DOM.getOuterHTML":
		req := params.(DOMGetOuterHTMLParams)
		res, err := proto.DOMGetOuterHTML{NodeID: proto.DOMNodeID(req.NodeID)}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*DOMGetOuterHTMLResult)
		out.OuterHTML = res.OuterHTML
		return nil

	case "DOM.getDocument":
		req := params.(DOMGetDocumentParams)
		res, err := proto.DOMGetDocument{Depth: req.Depth, Pierce: req.Pierce}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*DOMGetDocumentResult)
		out.Root = DOMNode{NodeID: int64(res.Root.NodeID), NodeName: res.Root.NodeName}
		return nil

	case "DOM.querySelector":
		req := params.(DOMQuerySelectorParams)
		res, err := proto.DOMQuerySelector{NodeID: proto.DOMNodeID(req.NodeID), Selector: req.Selector}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*DOMQuerySelectorResult)
		out.NodeID = int64(res.NodeID)
		return nil

	case "DOM.describeNode":
		req := params.(DOMDescribeNodeParams)
		res, err := proto.DOMDescribeNode{
			NodeID:        proto.DOMNodeID(req.NodeID),
			BackendNodeID: proto.DOMBackendNodeID(req.BackendNodeID),
		}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*DOMDescribeNodeResult)
		out.Node = DOMNode{
			NodeID:        int64(res.Node.NodeID),
			NodeName:      res.Node.NodeName,
			BackendNodeID: int64(res.Node.BackendNodeID),
		}
		return nil

	case "DOM.resolveNode":
		req := params.(DOMResolveNodeParams)
		res, err := proto.DOMResolveNode{BackendNodeID: proto.DOMBackendNodeID(req.BackendNodeID)}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*DOMResolveNodeResult)
		if res.Object != nil {
			out.ObjectID = string(res.Object.ObjectID)
		}
		return nil

	case "DOM.getBoxModel":
		req := params.(DOMGetBoxModelParams)
		res, err := proto.DOMGetBoxModel{BackendNodeID: proto.DOMBackendNodeID(req.BackendNodeID)}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*DOMGetBoxModelResult)
		out.Model = DOMBoxModel{
			Content: []float64(res.Model.Content),
			Width:   res.Model.Width,
			Height:  res.Model.Height,
		}
		return nil

	case "Accessibility.getFullAXTree":
		res, err := proto.AccessibilityGetFullAXTree{}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*AXTreeResult)
		out.Nodes = convertAXNodes(res.Nodes)
		return nil

	case "Accessibility.getPartialAXTree":
		req := params.(AXPartialParams)
		res, err := proto.AccessibilityGetPartialAXTree{
			BackendNodeID: proto.DOMBackendNodeID(req.BackendNodeID),
		}.Call(p)
		if err != nil {
			return err
		}
		out := result.(*AXTreeResult)
		out.Nodes = convertAXNodes(res.Nodes)
		return nil

	case "Input.dispatchMouseEvent":
		req := params.(InputDispatchMouseEventParams)
		return proto.InputDispatchMouseEvent{
			Type:       proto.InputDispatchMouseEventType(req.Type),
			X:          req.X,
			Y:          req.Y,
			Button:     proto.InputMouseButton(req.Button),
			ClickCount: req.ClickCount,
			Modifiers:  proto.InputModifier(req.Modifiers),
		}.Call(p)

	case "Input.dispatchKeyEvent":
		req := params.(InputDispatchKeyEventParams)
		return proto.InputDispatchKeyEvent{
			Type:                  proto.InputDispatchKeyEventType(req.Type),
			Key:                   req.Key,
			Code:                  req.Code,
			WindowsVirtualKeyCode: req.WindowsVirtualKeyCode,
			Modifiers:             proto.InputModifier(req.Modifiers),
			Text:                  req.Text,
		}.Call(p)

	case "Runtime.evaluate":
		req := params.(RuntimeEvaluateParams)
		res, err := proto.RuntimeEvaluate{
			Expression:    req.Expression,
			ReturnByValue: req.ReturnByValue,
		}.Call(p)
		if err != nil {
			return err
		}
		if res.ExceptionDetails != nil {
			return fmt.Errorf("runtime evaluate exception: %s", res.ExceptionDetails.Text)
		}
		if out, ok := result.(*RuntimeEvaluateResult); ok && res.Result != nil {
			out.Value = res.Result.Value.String()
		}
		return nil

	case "Runtime.callFunctionOn":
		req := params.(RuntimeCallFunctionOnParams)
		res, err := proto.RuntimeCallFunctionOn{
			ObjectID:            proto.RuntimeRemoteObjectID(req.ObjectID),
			FunctionDeclaration: req.FunctionDeclaration,
			ReturnByValue:       req.ReturnByValue,
		}.Call(p)
		if err != nil {
			return err
		}
		if res.ExceptionDetails != nil {
			return fmt.Errorf("runtime callFunctionOn exception: %s", res.ExceptionDetails.Text)
		}
		if out, ok := result.(*RuntimeEvaluateResult); ok && res.Result != nil {
			out.Value = res.Result.Value.String()
		}
		return nil

	case "Runtime.releaseObject":
		req := params.(RuntimeReleaseObjectParams)
		return proto.RuntimeReleaseObject{ObjectID: proto.RuntimeRemoteObjectID(req.ObjectID)}.Call(p)

	default:
		return fmt.Errorf("cdp: unsupported method %q", method)
	}
}

func convertAXNodes(nodes []*proto.AccessibilityAXNode) []AXNode {
	out := make([]AXNode, 0, len(nodes))
	for _, n := range nodes {
		axn := AXNode{
			NodeID:  string(n.NodeID),
			Ignored: n.Ignored,
		}
		if n.Role != nil {
			axn.Role = AXValue{Value: n.Role.Value.String()}
		}
		if n.Name != nil {
			axn.Name = AXValue{Value: n.Name.Value.String()}
		}
		if n.BackendDOMNodeID != nil {
			axn.BackendDOMNodeID = int64(*n.BackendDOMNodeID)
		}
		for _, p := range n.Properties {
			prop := AXProperty{Name: string(p.Name)}
			if p.Value != nil {
				prop.Value = AXValue{Value: p.Value.Value.String()}
			}
			axn.Properties = append(axn.Properties, prop)
		}
		out = append(out, axn)
	}
	return out
}
