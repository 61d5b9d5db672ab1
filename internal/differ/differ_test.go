package differ

import (
	"testing"

	"github.com/use-agent/browser-stream/internal/model"
)

func TestDiff_AppearedAndDisappeared(t *testing.T) {
	pre := []model.SnapshotElement{
		{Ref: "@e1", AXNodeID: "ax-1", DOMPath: "body > form:nth-of-type(1)", Role: "textbox", Name: "Email"},
	}
	post := []model.SnapshotElement{
		{Ref: "@e2", AXNodeID: "ax-9", DOMPath: "body > div:nth-of-type(1)", Role: "button", Name: "Thanks"},
	}

	cs := Diff(pre, post, nil)
	if len(cs) != 2 {
		t.Fatalf("expected 2 consequences, got %d: %+v", len(cs), cs)
	}
	if cs[0].Kind != model.ConsequenceAppeared || cs[0].Ref != "@e2" {
		t.Errorf("expected appeared first, got %+v", cs[0])
	}
	if cs[1].Kind != model.ConsequenceDisappeared || cs[1].Ref != "@e1" {
		t.Errorf("expected disappeared second, got %+v", cs[1])
	}
}

func TestDiff_MatchByAXNodeID(t *testing.T) {
	pre := []model.SnapshotElement{
		{Ref: "@e1", AXNodeID: "ax-1", DOMPath: "body > button:nth-of-type(1)", Role: "button", Name: "Submit",
			Properties: map[string]string{"disabled": "false"}},
	}
	post := []model.SnapshotElement{
		{Ref: "@e5", AXNodeID: "ax-1", DOMPath: "body > button:nth-of-type(2)", Role: "button", Name: "Submit",
			Properties: map[string]string{"disabled": "true"}},
	}

	cs := Diff(pre, post, nil)
	if len(cs) != 1 {
		t.Fatalf("expected 1 changed consequence, got %d: %+v", len(cs), cs)
	}
	if cs[0].Kind != model.ConsequenceChanged {
		t.Fatalf("expected changed, got %+v", cs[0])
	}
	if cs[0].Ref != "@e5" {
		t.Errorf("expected changed to reference the post ref, got %q", cs[0].Ref)
	}
	want := `disabled: "false" -> "true"`
	if cs[0].Desc != want {
		t.Errorf("desc = %q, want %q", cs[0].Desc, want)
	}
}

func TestDiff_MatchByDOMPathFallback(t *testing.T) {
	// No axNodeId overlap (e.g. post was resolved via domPath fallback per
	// the resolver's AXNodeID-invalidation decision); domPath still ties
	// pre and post together so no spurious appeared/disappeared pair fires.
	pre := []model.SnapshotElement{
		{Ref: "@e1", AXNodeID: "ax-old", DOMPath: "body > input:nth-of-type(1)", Role: "textbox", Name: "Search"},
	}
	post := []model.SnapshotElement{
		{Ref: "@e2", AXNodeID: "", DOMPath: "body > input:nth-of-type(1)", Role: "textbox", Name: "Search",
			Properties: map[string]string{"focused": "true"}},
	}

	cs := Diff(pre, post, nil)
	if len(cs) != 1 || cs[0].Kind != model.ConsequenceChanged {
		t.Fatalf("expected a single changed consequence from domPath match, got %+v", cs)
	}
}

func TestDiff_NoChangeYieldsNoChangedConsequence(t *testing.T) {
	pre := []model.SnapshotElement{
		{Ref: "@e1", AXNodeID: "ax-1", DOMPath: "body > a:nth-of-type(1)", Role: "link", Name: "Docs"},
	}
	post := []model.SnapshotElement{
		{Ref: "@e1", AXNodeID: "ax-1", DOMPath: "body > a:nth-of-type(1)", Role: "link", Name: "Docs"},
	}

	cs := Diff(pre, post, nil)
	if len(cs) != 0 {
		t.Fatalf("expected no consequences for an identical pair, got %+v", cs)
	}
}

func TestDiff_NetworkConsequences_PendingAndFinished(t *testing.T) {
	network := []model.NetworkEvent{
		{Method: "POST", URL: "https://api.example.com/v1/submit?x=1", Finished: true, Status: 201, DurationMs: 42},
		{Method: "GET", URL: "https://api.example.com/v1/poll", Finished: false},
		{Method: "GET", URL: "%%not a url%%", Finished: true, Status: 200, DurationMs: 5},
	}

	cs := Diff(nil, nil, network)
	if len(cs) != 3 {
		t.Fatalf("expected 3 network consequences, got %d: %+v", len(cs), cs)
	}
	if cs[0].Desc != "POST /v1/submit -> 201 (42ms)" {
		t.Errorf("unexpected finished desc: %q", cs[0].Desc)
	}
	if cs[1].Desc != "GET /v1/poll -> pending (0ms)" {
		t.Errorf("unexpected pending desc: %q", cs[1].Desc)
	}
	if cs[2].Desc != "GET %%not a url%% -> 200 (5ms)" {
		t.Errorf("unexpected fallback-to-full-URL desc: %q", cs[2].Desc)
	}
}

func TestDiff_Ordering_AppearedDisappearedChangedNetwork(t *testing.T) {
	pre := []model.SnapshotElement{
		{Ref: "@e1", AXNodeID: "ax-1", DOMPath: "p1", Role: "button", Name: "Old"},
		{Ref: "@e2", AXNodeID: "ax-2", DOMPath: "p2", Role: "textbox", Name: "Field"},
	}
	post := []model.SnapshotElement{
		{Ref: "@e2", AXNodeID: "ax-2", DOMPath: "p2", Role: "textbox", Name: "Field", Properties: map[string]string{"focused": "true"}},
		{Ref: "@e3", AXNodeID: "ax-3", DOMPath: "p3", Role: "link", Name: "New"},
	}
	network := []model.NetworkEvent{{Method: "GET", URL: "https://x.test/a", Finished: true, Status: 200}}

	cs := Diff(pre, post, network)
	if len(cs) != 4 {
		t.Fatalf("expected 4 consequences, got %d: %+v", len(cs), cs)
	}
	kinds := []model.ConsequenceKind{cs[0].Kind, cs[1].Kind, cs[2].Kind, cs[3].Kind}
	want := []model.ConsequenceKind{model.ConsequenceAppeared, model.ConsequenceDisappeared, model.ConsequenceChanged, model.ConsequenceNetwork}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, kinds[i], want[i])
		}
	}
}
