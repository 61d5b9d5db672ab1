package registry

import (
	"testing"

	"github.com/use-agent/browser-stream/internal/model"
)

func TestAssign_MonotonicAndUnique(t *testing.T) {
	r := New()

	refA := r.Assign(model.NodeIdentity{BackendNodeID: 1})
	refB := r.Assign(model.NodeIdentity{BackendNodeID: 2})

	if refA == refB {
		t.Fatalf("expected distinct refs, got %q twice", refA)
	}
	if refA != "@e1" || refB != "@e2" {
		t.Errorf("expected @e1, @e2; got %q, %q", refA, refB)
	}
}

func TestClear_PreservesCounter(t *testing.T) {
	r := New()

	r.Assign(model.NodeIdentity{BackendNodeID: 1})
	r.Assign(model.NodeIdentity{BackendNodeID: 2})
	r.Clear()

	refC := r.Assign(model.NodeIdentity{BackendNodeID: 3})
	if refC != "@e3" {
		t.Errorf("clear must not decrement the counter: expected @e3, got %q", refC)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 live entry after clear+assign, got %d", r.Len())
	}

	if _, ok := r.Get("@e1"); ok {
		t.Errorf("@e1 should be unreachable after Clear")
	}
}

func TestRefUniqueness_AcrossInterleavedClears(t *testing.T) {
	r := New()
	seen := make(map[string]bool)

	for round := 0; round < 5; round++ {
		for i := 0; i < 3; i++ {
			ref := r.Assign(model.NodeIdentity{BackendNodeID: int64(i)})
			if seen[ref] {
				t.Fatalf("ref %q reused across clears", ref)
			}
			seen[ref] = true
		}
		r.Clear()
	}
}

func TestMarkAllStale(t *testing.T) {
	r := New()
	ref := r.Assign(model.NodeIdentity{BackendNodeID: 1})

	r.MarkAllStale()

	id, ok := r.Get(ref)
	if !ok {
		t.Fatalf("ref should still be reachable after MarkAllStale")
	}
	if !id.Stale {
		t.Errorf("expected Stale=true after MarkAllStale")
	}
}

func TestFree(t *testing.T) {
	r := New()
	ref := r.Assign(model.NodeIdentity{BackendNodeID: 1})
	r.Free(ref)

	if _, ok := r.Get(ref); ok {
		t.Errorf("expected ref to be gone after Free")
	}
}

func TestResetCounter_TestOnly(t *testing.T) {
	r := New()
	r.Assign(model.NodeIdentity{BackendNodeID: 1})
	r.ResetCounter()

	ref := r.Assign(model.NodeIdentity{BackendNodeID: 2})
	if ref != "@e1" {
		t.Errorf("expected counter reset to produce @e1, got %q", ref)
	}
}

func TestUpdate(t *testing.T) {
	r := New()
	ref := r.Assign(model.NodeIdentity{BackendNodeID: 1, DOMPath: "body"})

	r.Update(ref, model.NodeIdentity{BackendNodeID: 99, DOMPath: "body"})

	id, _ := r.Get(ref)
	if id.BackendNodeID != 99 {
		t.Errorf("expected BackendNodeID updated to 99, got %d", id.BackendNodeID)
	}
}
