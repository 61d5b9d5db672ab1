// Package stability implements the stability waiter: an
// event-driven debounce over DOM mutations and in-flight Fetch/XHR
// network traffic that decides when a page has settled after an action.
package stability

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/model"
)

const (
	// DefaultDebounce is how long the waiter waits, quiet, before
	// resolving, used when the caller doesn't override it from config.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultHardCap is the absolute ceiling on a stability wait, used
	// when the caller doesn't override it from config.
	DefaultHardCap = 3000 * time.Millisecond
)

// Result is what a stability wait resolves with.
type Result struct {
	TimedOut      bool
	NetworkEvents []model.NetworkEvent
}

// trackedResourceTypes is the set of network resource types the waiter
// counts toward pendingNetwork; everything else (images, stylesheets,
// documents) is ignored.
var trackedResourceTypes = map[string]bool{"Fetch": true, "XHR": true}

// Wait subscribes to DOM mutation and network events, then blocks until
// either a debounce quiet period with zero pending network requests
// elapses, or hardCap passes with no quiet period found. actionStart is
// the CDP second-epoch timestamp recorded just before the action's input
// primitives ran; events with an earlier timestamp are not tracked.
func Wait(ctx context.Context, ch cdp.Channel, actionStart float64, debounceFor, hardCapAfter time.Duration) Result {
	var mu sync.Mutex
	inflight := make(map[string]*model.NetworkEvent)
	var finished []model.NetworkEvent

	debounce := time.NewTimer(debounceFor)
	hardCap := time.NewTimer(hardCapAfter)
	defer debounce.Stop()
	defer hardCap.Stop()

	resetDebounce := make(chan struct{}, 1)
	signal := func() {
		select {
		case resetDebounce <- struct{}{}:
		default:
		}
	}

	domIns := ch.On("DOM.childNodeInserted", func(cdp.Event) { signal() })
	domDel := ch.On("DOM.childNodeRemoved", func(cdp.Event) { signal() })
	netStart := ch.On("Network.requestWillBeSent", func(e cdp.Event) {
		var ev cdp.NetworkRequestWillBeSent
		if !decode(e, &ev) {
			return
		}
		if !trackedResourceTypes[ev.Type] || ev.Timestamp < actionStart {
			return
		}
		mu.Lock()
		inflight[ev.RequestID] = &model.NetworkEvent{
			RequestID: ev.RequestID,
			Method:    ev.Request.Method,
			URL:       ev.Request.URL,
			StartedAt: ev.Timestamp,
		}
		mu.Unlock()
		signal()
	})
	netFin := ch.On("Network.loadingFinished", func(e cdp.Event) {
		var ev cdp.NetworkLoadingFinished
		if !decode(e, &ev) {
			return
		}
		mu.Lock()
		if req, ok := inflight[ev.RequestID]; ok {
			req.Finished = true
			req.FinishedAt = ev.Timestamp
			// loadingFinished carries no status; Network.responseReceived
			// is out of this core's subscribed event set, so a completed
			// request is reported as 200 unless it failed outright.
			req.Status = 200
			req.DurationMs = (ev.Timestamp - req.StartedAt) * 1000
			finished = append(finished, *req)
			delete(inflight, ev.RequestID)
		}
		mu.Unlock()
		signal()
	})
	netFail := ch.On("Network.loadingFailed", func(e cdp.Event) {
		var ev cdp.NetworkLoadingFailed
		if !decode(e, &ev) {
			return
		}
		mu.Lock()
		if req, ok := inflight[ev.RequestID]; ok {
			req.Finished = true
			req.FinishedAt = ev.Timestamp
			req.DurationMs = (ev.Timestamp - req.StartedAt) * 1000
			finished = append(finished, *req)
			delete(inflight, ev.RequestID)
		}
		mu.Unlock()
		signal()
	})

	defer func() {
		ch.Off(domIns)
		ch.Off(domDel)
		ch.Off(netStart)
		ch.Off(netFin)
		ch.Off(netFail)
	}()

	timedOut := false
loop:
	for {
		select {
		case <-ctx.Done():
			timedOut = true
			break loop
		case <-hardCap.C:
			timedOut = true
			break loop
		case <-resetDebounce:
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceFor)
		case <-debounce.C:
			mu.Lock()
			empty := len(inflight) == 0
			mu.Unlock()
			if empty {
				break loop
			}
			debounce.Reset(debounceFor)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return Result{TimedOut: timedOut, NetworkEvents: finished}
}

func decode(e cdp.Event, dst any) bool {
	return json.Unmarshal(e.Params, dst) == nil
}
