/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import "sort"

// Queue is the ordered DJ rotation. Mutated only on the owning
// coordinator's command sequence.
type Queue struct {
	entries []*Entry
}

// Len returns the number of entries.
func (q *Queue) Len() int { return len(q.entries) }

// Head returns the entry in control, or nil.
func (q *Queue) Head() *Entry {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// IDs returns the ordered identity list for broadcasts.
func (q *Queue) IDs() []string {
	ids := make([]string, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.ID()
	}
	return ids
}

// Contains reports whether the identity is in rotation.
func (q *Queue) Contains(id string) bool {
	for _, e := range q.entries {
		if e.ID() == id {
			return true
		}
	}
	return false
}

// Find returns the entry for an identity, or nil.
func (q *Queue) Find(id string) *Entry {
	for _, e := range q.entries {
		if e.ID() == id {
			return e
		}
	}
	return nil
}

// Push appends an entry unless the identity is already queued.
func (q *Queue) Push(e *Entry) bool {
	if q.Contains(e.ID()) {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

// AdvanceHead rotates: the head moves to the tail, unless it asked to step
// down after its play, in which case it is dropped. Any step-down entry
// that then surfaces at the head is dropped as well, so the next source
// always targets a DJ that intends to play. Returns the dropped entries.
func (q *Queue) AdvanceHead() []*Entry {
	if len(q.entries) == 0 {
		return nil
	}

	var dropped []*Entry
	head := q.entries[0]
	q.entries = q.entries[1:]
	if head.StepDownAfterPlay {
		head.StepDownAfterPlay = false
		dropped = append(dropped, head)
	} else {
		q.entries = append(q.entries, head)
	}

	for len(q.entries) > 0 && q.entries[0].StepDownAfterPlay {
		next := q.entries[0]
		next.StepDownAfterPlay = false
		q.entries = q.entries[1:]
		dropped = append(dropped, next)
	}
	return dropped
}

// Remove drops every occurrence of the identity, guarding against
// duplicate entries. Reports whether anything was removed and whether the
// head was affected; a head removal means the caller must re-source
// without rotating.
func (q *Queue) Remove(id string) (removed, wasHead bool) {
	kept := q.entries[:0]
	for i, e := range q.entries {
		if e.ID() == id {
			removed = true
			if i == 0 {
				wasHead = true
			}
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed, wasHead
}

// Reorder stable-sorts entries by their position in the supplied identity
// list. Identities absent from the list keep their relative order at the
// end.
func (q *Queue) Reorder(ids []string) {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	rank := func(e *Entry) int {
		if p, ok := pos[e.ID()]; ok {
			return p
		}
		return len(ids)
	}
	sort.SliceStable(q.entries, func(i, j int) bool {
		return rank(q.entries[i]) < rank(q.entries[j])
	})
}

// Clear empties the rotation.
func (q *Queue) Clear() {
	q.entries = nil
}
