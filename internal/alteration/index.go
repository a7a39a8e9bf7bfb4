package alteration

import (
	"container/heap"
	"sort"
	"time"

	"lv-risk/internal/model"
)

type entry struct {
	alt    model.Alteration
	key    model.ScopeKey
	endsAt time.Time
	pos    int
}

// expiryQueue orders entries by completion instant.
type expiryQueue []*entry

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	if q[i].endsAt.Equal(q[j].endsAt) {
		return q[i].alt.ID < q[j].alt.ID
	}
	return q[i].endsAt.Before(q[j].endsAt)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].pos = i
	q[j].pos = j
}

func (q *expiryQueue) Push(x any) {
	e := x.(*entry)
	e.pos = len(*q)
	*q = append(*q, e)
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.pos = -1
	*q = old[:n-1]
	return e
}

// index keeps active alterations addressable by scope key and by ID, and
// yields them in completion order. It is not safe for concurrent use.
type index struct {
	byKey map[model.ScopeKey]*entry
	byID  map[string]*entry
	queue expiryQueue
}

func newIndex() *index {
	return &index{
		byKey: map[model.ScopeKey]*entry{},
		byID:  map[string]*entry{},
	}
}

func (x *index) Len() int {
	return len(x.byID)
}

// Put adds a; it reports false when the scope key is already taken.
func (x *index) Put(a model.Alteration) bool {
	key := a.ScopeKey()
	if _, ok := x.byKey[key]; ok {
		return false
	}
	e := &entry{alt: a, key: key, endsAt: a.EndsAt()}
	if Degenerate(a) {
		// Sorts ahead of everything so the next refresh collects it.
		e.endsAt = time.Time{}
	}
	x.byKey[key] = e
	x.byID[a.ID] = e
	heap.Push(&x.queue, e)
	return true
}

func (x *index) Get(key model.ScopeKey) (model.Alteration, bool) {
	e, ok := x.byKey[key]
	if !ok {
		return model.Alteration{}, false
	}
	return e.alt, true
}

func (x *index) ByID(id string) (model.Alteration, bool) {
	e, ok := x.byID[id]
	if !ok {
		return model.Alteration{}, false
	}
	return e.alt, true
}

func (x *index) Remove(id string) (model.Alteration, bool) {
	e, ok := x.byID[id]
	if !ok {
		return model.Alteration{}, false
	}
	heap.Remove(&x.queue, e.pos)
	delete(x.byID, id)
	delete(x.byKey, e.key)
	return e.alt, true
}

// PopExpired removes and returns every alteration whose end is at or before
// now, earliest first.
func (x *index) PopExpired(now time.Time) []model.Alteration {
	var out []model.Alteration
	for len(x.queue) > 0 && !x.queue[0].endsAt.After(now) {
		e := heap.Pop(&x.queue).(*entry)
		delete(x.byID, e.alt.ID)
		delete(x.byKey, e.key)
		out = append(out, e.alt)
	}
	return out
}

// All returns active alterations ordered by completion instant.
func (x *index) All() []model.Alteration {
	entries := make([]*entry, 0, len(x.queue))
	entries = append(entries, x.queue...)
	sort.Slice(entries, func(i, j int) bool {
		return expiryQueue(entries).Less(i, j)
	})
	out := make([]model.Alteration, len(entries))
	for i, e := range entries {
		out[i] = e.alt
	}
	return out
}
