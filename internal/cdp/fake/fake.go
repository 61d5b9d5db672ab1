// Package fake provides an in-memory cdp.Channel implementation so the
// registry, resolver, snapshot builder, differ, stability waiter, and
// orchestrator can be exercised without a real browser: a scriptable
// double behind the same narrow Channel interface production code uses.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/use-agent/browser-stream/internal/browsererr"
	"github.com/use-agent/browser-stream/internal/cdp"
)

// Responder produces a result (or error) for one Send call. Tests install
// one per method via Channel.Handle.
type Responder func(params any) (result any, err error)

// Channel is a scriptable fake implementing cdp.Channel.
type Channel struct {
	mu        sync.Mutex
	state     cdp.State
	handlers  map[string]Responder
	subs      map[cdp.Subscription]subEntry
	nextSubID cdp.Subscription
	sendLog   []string
}

type subEntry struct {
	event   string
	handler cdp.Handler
}

// New creates an open fake channel.
func New() *Channel {
	return &Channel{
		state:    cdp.StateOpen,
		handlers: make(map[string]Responder),
		subs:     make(map[cdp.Subscription]subEntry),
	}
}

// Handle installs (or replaces) the responder for method.
func (c *Channel) Handle(method string, r Responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = r
}

// Emit delivers an event to every handler subscribed to event.
func (c *Channel) Emit(event string, payload any) {
	raw, _ := json.Marshal(payload)
	evt := cdp.Event{Method: event, Params: raw}

	c.mu.Lock()
	handlers := make([]cdp.Handler, 0)
	for _, s := range c.subs {
		if s.event == event {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

// SetState forces the channel into a terminal state (crashed/disconnected)
// for error-path tests.
func (c *Channel) SetState(s cdp.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Calls returns the methods Send was called with, in order (diagnostics
// for tests asserting call sequence).
func (c *Channel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sendLog))
	copy(out, c.sendLog)
	return out
}

func (c *Channel) State() cdp.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) On(event string, h cdp.Handler) cdp.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = subEntry{event: event, handler: h}
	return id
}

func (c *Channel) Off(sub cdp.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, sub)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == cdp.StateOpen {
		c.state = cdp.StateDisconnected
	}
	return nil
}

func (c *Channel) Send(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	state := c.state
	c.sendLog = append(c.sendLog, method)
	handler, ok := c.handlers[method]
	c.mu.Unlock()

	switch state {
	case cdp.StateCrashed:
		return browsererr.New(browsererr.CodePageCrashed, "cdp channel crashed", nil)
	case cdp.StateDisconnected:
		return browsererr.New(browsererr.CodeCDPDisconnected, "cdp channel disconnected", nil)
	}

	if !ok {
		return fmt.Errorf("fake cdp: no handler registered for %q", method)
	}

	res, err := handler(params)
	if err != nil {
		return err
	}
	if result != nil && res != nil {
		assignResult(result, res)
	}
	return nil
}

// assignResult copies res into *dst via a JSON round-trip unless dst and
// res are the same value, so test handlers can return plain struct values
// without worrying about pointer identity.
func assignResult(dst, res any) {
	if dst == res {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, dst)
}
