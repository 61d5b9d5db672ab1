package stability

import (
	"sync"

	"github.com/use-agent/browser-stream/internal/cdp"
)

// MutationTracker counts DOM.childNodeInserted/Removed events per parent
// node while subscribed, so Churn can compute the remove-and-re-add churn
// heuristic after the fact. It is also used standalone around
// scroll, started before the scroll primitive runs and stopped after the
// stability wait.
type MutationTracker struct {
	ch     cdp.Channel
	insSub cdp.Subscription
	delSub cdp.Subscription

	mu        sync.Mutex
	insByNode map[int64]int
	delByNode map[int64]int
}

// StartMutationTracker subscribes to DOM mutation events immediately.
func StartMutationTracker(ch cdp.Channel) *MutationTracker {
	t := &MutationTracker{
		ch:        ch,
		insByNode: make(map[int64]int),
		delByNode: make(map[int64]int),
	}
	t.insSub = ch.On("DOM.childNodeInserted", func(e cdp.Event) {
		var ev cdp.DOMChildNodeInserted
		if decode(e, &ev) {
			t.mu.Lock()
			t.insByNode[ev.ParentNodeID]++
			t.mu.Unlock()
		}
	})
	t.delSub = ch.On("DOM.childNodeRemoved", func(e cdp.Event) {
		var ev cdp.DOMChildNodeRemoved
		if decode(e, &ev) {
			t.mu.Lock()
			t.delByNode[ev.ParentNodeID]++
			t.mu.Unlock()
		}
	})
	return t
}

// Stop unsubscribes and returns the aggregate churn count: the sum, over
// every parent node that saw both insertions and removals, of
// min(insertions, removals) — the signal for "a framework rebuilt this
// subtree" rather than "a genuinely new element arrived".
func (t *MutationTracker) Stop() (churnCount int) {
	t.ch.Off(t.insSub)
	t.ch.Off(t.delSub)

	t.mu.Lock()
	defer t.mu.Unlock()
	for parent, ins := range t.insByNode {
		del := t.delByNode[parent]
		if ins < del {
			churnCount += ins
		} else {
			churnCount += del
		}
	}
	return churnCount
}
