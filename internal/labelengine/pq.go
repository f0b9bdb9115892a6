package labelengine

import "container/heap"

// stopItem is one entry in the label engine's priority queue: a stop
// pending re-extraction, ordered by label time (outbound: descending,
// inbound: ascending — see newQueue).
type stopItem struct {
	stop     int
	timeMin  float64
	index    int
}

type stopQueue struct {
	items   []*stopItem
	less    func(a, b *stopItem) bool
}

func (q *stopQueue) Len() int { return len(q.items) }
func (q *stopQueue) Less(i, j int) bool { return q.less(q.items[i], q.items[j]) }
func (q *stopQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}
func (q *stopQueue) Push(x any) {
	it := x.(*stopItem)
	it.index = len(q.items)
	q.items = append(q.items, it)
}
func (q *stopQueue) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return it
}

// newQueue returns an empty priority queue ordered by label time:
// descending for outbound (backward) search, ascending for inbound
// (forward) search.
func newQueue(outbound bool) *stopQueue {
	q := &stopQueue{}
	if outbound {
		q.less = func(a, b *stopItem) bool { return a.timeMin > b.timeMin }
	} else {
		q.less = func(a, b *stopItem) bool { return a.timeMin < b.timeMin }
	}
	heap.Init(q)
	return q
}

func (q *stopQueue) push(stop int, timeMin float64) {
	heap.Push(q, &stopItem{stop: stop, timeMin: timeMin})
}

func (q *stopQueue) pop() (int, float64, bool) {
	if q.Len() == 0 {
		return 0, 0, false
	}
	it := heap.Pop(q).(*stopItem)
	return it.stop, it.timeMin, true
}
