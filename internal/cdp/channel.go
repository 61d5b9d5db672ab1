// Package cdp defines the request/response + event-subscription facade
// over one Chromium debugging target. The Channel interface
// is the only thing the registry, resolver, snapshot builder, differ,
// stability waiter, and orchestrator depend on — none of them import
// go-rod directly, so they can be exercised in tests against the fake
// implementation in cdp/fake without a real browser.
package cdp

import (
	"context"
	"encoding/json"
)

// Event is one notification delivered from the debugging target, e.g.
// method "DOM.childNodeInserted" with its raw params.
type Event struct {
	Method string
	Params json.RawMessage
}

// Handler receives events subscribed to via On.
type Handler func(Event)

// Subscription identifies a registered handler for a later Off call.
type Subscription uint64

// State is the lifecycle state of a Channel.
type State int

const (
	StateOpen State = iota
	StateCrashed
	StateDisconnected
)

// Required domains that must be enabled before a Channel is used for
// anything else.
var RequiredDomains = []string{"Page", "DOM", "Runtime", "Accessibility", "Network", "Inspector"}

// Channel is the CDP facade. Send performs one request/response
// round-trip; result, if non-nil, is populated via json.Unmarshal of the
// reply. On/Off manage event subscriptions; Close marks the channel
// disconnected and stops event delivery, so every later Send fails.
//
// On receipt of Inspector.targetCrashed the channel enters a permanently
// crashed state; every subsequent Send must return a *browsererr.BrowserError
// with code browsererr.CodePageCrashed. A channel whose underlying transport
// has gone away returns one with browsererr.CodeCDPDisconnected instead. The channel is single-target;
// multiplexing multiple tabs/frames is out of scope.
type Channel interface {
	Send(ctx context.Context, method string, params, result any) error
	On(event string, h Handler) Subscription
	Off(sub Subscription)
	Close() error
	State() State
}
