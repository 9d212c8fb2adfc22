package channel

import (
	"reflect"
	"testing"
)

func entryFor(id string) *Entry {
	return &Entry{Peer: newFakePeer(id)}
}

func queueOf(ids ...string) *Queue {
	q := &Queue{}
	for _, id := range ids {
		q.Push(entryFor(id))
	}
	return q
}

func TestAdvanceHeadRotates(t *testing.T) {
	q := queueOf("a", "b", "c")
	dropped := q.AdvanceHead()
	if len(dropped) != 0 {
		t.Fatalf("nothing should be dropped, got %d", len(dropped))
	}
	if got := q.IDs(); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Errorf("order = %v", got)
	}
	if q.Len() != 3 {
		t.Errorf("length changed: %d", q.Len())
	}
}

func TestAdvanceHeadDropsStepDownHead(t *testing.T) {
	q := queueOf("a", "b")
	q.Find("a").StepDownAfterPlay = true

	dropped := q.AdvanceHead()
	if len(dropped) != 1 || dropped[0].ID() != "a" {
		t.Fatalf("expected a dropped, got %v", dropped)
	}
	if q.Contains("a") {
		t.Error("step-down head still in rotation")
	}
	if q.Len() != 1 {
		t.Errorf("length = %d, want 1", q.Len())
	}
}

func TestAdvanceHeadDropsStepDownAtNewHead(t *testing.T) {
	q := queueOf("a", "b")
	q.Find("b").StepDownAfterPlay = true

	dropped := q.AdvanceHead()
	if len(dropped) != 1 || dropped[0].ID() != "b" {
		t.Fatalf("expected b dropped, got %v", dropped)
	}
	if got := q.IDs(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("order = %v, want [a]", got)
	}
}

func TestAdvanceHeadEmpty(t *testing.T) {
	q := &Queue{}
	if dropped := q.AdvanceHead(); dropped != nil {
		t.Errorf("empty queue dropped %v", dropped)
	}
}

func TestRemoveDuplicatesAndHeadFlag(t *testing.T) {
	q := &Queue{}
	q.entries = append(q.entries, entryFor("a"), entryFor("b"), entryFor("a"))

	removed, wasHead := q.Remove("a")
	if !removed || !wasHead {
		t.Fatalf("removed=%v wasHead=%v", removed, wasHead)
	}
	if got := q.IDs(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("order = %v", got)
	}

	removed, wasHead = q.Remove("missing")
	if removed || wasHead {
		t.Errorf("removing an absent id reported removed=%v wasHead=%v", removed, wasHead)
	}
}

func TestRemoveNonHead(t *testing.T) {
	q := queueOf("a", "b")
	removed, wasHead := q.Remove("b")
	if !removed || wasHead {
		t.Errorf("removed=%v wasHead=%v", removed, wasHead)
	}
}

func TestReorderStableWithUnknownIDs(t *testing.T) {
	q := queueOf("a", "b", "c", "d")
	q.Reorder([]string{"c", "a"})

	// Listed ids take their positions; the rest keep relative order after.
	if got := q.IDs(); !reflect.DeepEqual(got, []string{"c", "a", "b", "d"}) {
		t.Errorf("order = %v", got)
	}
}

func TestPushRejectsDuplicates(t *testing.T) {
	q := queueOf("a")
	if q.Push(entryFor("a")) {
		t.Error("duplicate push accepted")
	}
	if q.Len() != 1 {
		t.Errorf("length = %d", q.Len())
	}
}
