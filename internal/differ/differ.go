// Package differ implements the pre/post snapshot differ: a
// two-phase matching algorithm over two SnapshotData element sets that
// produces a typed, ordered Consequence list.
package differ

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/use-agent/browser-stream/internal/model"
)

// Diff matches pre against post and returns the consequence list in the
// fixed order: appeared, disappeared, changed, network. DOM-churn and
// layout-shift consequences are the orchestrator's responsibility (scroll
// only) and are not produced here.
func Diff(pre, post []model.SnapshotElement, network []model.NetworkEvent) []model.Consequence {
	matched, appearedPost, disappearedPre := match(pre, post)

	var out []model.Consequence
	for _, idx := range appearedPost {
		e := post[idx]
		out = append(out, model.Consequence{
			Kind: model.ConsequenceAppeared,
			Desc: fmt.Sprintf("%s %q appeared", e.Role, e.Name),
			Ref:  e.Ref,
		})
	}
	for _, idx := range disappearedPre {
		e := pre[idx]
		out = append(out, model.Consequence{
			Kind: model.ConsequenceDisappeared,
			Desc: fmt.Sprintf("%s %q disappeared", e.Role, e.Name),
			Ref:  e.Ref,
		})
	}
	for _, pair := range matched {
		if c, changed := diffPair(pre[pair[0]], post[pair[1]]); changed {
			out = append(out, c)
		}
	}
	for _, ev := range network {
		out = append(out, networkConsequence(ev))
	}

	return out
}

// match pairs pre elements with post elements, first by axNodeId, then by
// domPath for anything left unmatched after the first pass (two-phase
// matching). It returns matched index pairs [preIdx, postIdx] plus the
// leftover post indices (appeared) and pre indices (disappeared).
func match(pre, post []model.SnapshotElement) (matched [][2]int, appeared, disappeared []int) {
	postByAX := make(map[string]int, len(post))
	postByDOMPath := make(map[string]int, len(post))
	for i, e := range post {
		if e.AXNodeID != "" {
			postByAX[e.AXNodeID] = i
		}
		if e.DOMPath != "" {
			postByDOMPath[e.DOMPath] = i
		}
	}

	postMatched := make([]bool, len(post))
	preMatched := make([]bool, len(pre))

	// Phase 1: axNodeId.
	for i, e := range pre {
		if e.AXNodeID == "" {
			continue
		}
		if j, ok := postByAX[e.AXNodeID]; ok && !postMatched[j] {
			matched = append(matched, [2]int{i, j})
			preMatched[i] = true
			postMatched[j] = true
		}
	}

	// Phase 2: domPath, for anything phase 1 left unmatched.
	for i, e := range pre {
		if preMatched[i] || e.DOMPath == "" {
			continue
		}
		if j, ok := postByDOMPath[e.DOMPath]; ok && !postMatched[j] {
			matched = append(matched, [2]int{i, j})
			preMatched[i] = true
			postMatched[j] = true
		}
	}

	for i := range pre {
		if !preMatched[i] {
			disappeared = append(disappeared, i)
		}
	}
	for j := range post {
		if !postMatched[j] {
			appeared = append(appeared, j)
		}
	}

	return matched, appeared, disappeared
}

// diffPair builds a changed consequence for a matched pre/post pair when
// name, role, or any property in the symmetric difference of the two
// properties maps differs.
func diffPair(pre, post model.SnapshotElement) (model.Consequence, bool) {
	var segments []string

	if pre.Name != post.Name {
		segments = append(segments, fmt.Sprintf("name: %q -> %q", pre.Name, post.Name))
	}
	if pre.Role != post.Role {
		segments = append(segments, fmt.Sprintf("role: %q -> %q", pre.Role, post.Role))
	}

	keys := make(map[string]bool)
	for k := range pre.Properties {
		keys[k] = true
	}
	for k := range post.Properties {
		keys[k] = true
	}
	sortedKeys := make([]string, 0, len(keys))
	for k := range keys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	for _, k := range sortedKeys {
		oldV, oldOK := pre.Properties[k]
		newV, newOK := post.Properties[k]
		if oldOK == newOK && oldV == newV {
			continue
		}
		segments = append(segments, fmt.Sprintf("%s: %q -> %q", k, oldV, newV))
	}

	if len(segments) == 0 {
		return model.Consequence{}, false
	}

	desc := segments[0]
	for _, s := range segments[1:] {
		desc += ", " + s
	}

	return model.Consequence{
		Kind: model.ConsequenceChanged,
		Desc: desc,
		Ref:  post.Ref,
	}, true
}

// networkConsequence renders one observed request as a network
// consequence: "{method} {pathname} -> {status|pending} ({durationMs}ms)".
func networkConsequence(ev model.NetworkEvent) model.Consequence {
	pathname := ev.URL
	if u, err := url.Parse(ev.URL); err == nil && u.Path != "" {
		pathname = u.Path
	}

	status := "pending"
	duration := 0.0
	if ev.Finished {
		status = fmt.Sprintf("%d", ev.Status)
		duration = ev.DurationMs
	}

	return model.Consequence{
		Kind: model.ConsequenceNetwork,
		Desc: fmt.Sprintf("%s %s -> %s (%dms)", ev.Method, pathname, status, int64(duration)),
	}
}
