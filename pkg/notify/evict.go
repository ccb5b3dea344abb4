package notify

import "container/heap"

// evictScanThreshold is the largest excess handled by the linear scan path.
// Beyond it a bounded heap keeps the cost at O(n log excess) instead of a
// full O(n log n) sort, which matters when the table is orders of magnitude
// larger than the eviction count.
const evictScanThreshold = 10

// evictionVictimsLocked returns the subjects of the excess oldest records.
// Ties on timestamp break by write sequence, oldest write first. The caller
// must hold s.mu.
func (s *Store) evictionVictimsLocked(excess int) []string {
	if excess <= 0 {
		return nil
	}
	if excess <= evictScanThreshold {
		return s.scanVictimsLocked(excess)
	}
	if excess <= s.maxCount {
		return s.heapVictimsLocked(excess)
	}
	return s.heapSurvivorsComplementLocked()
}

// scanVictimsLocked tracks the excess oldest entries in a fixed candidate
// buffer updated in one pass over the table.
func (s *Store) scanVictimsLocked(excess int) []string {
	candidates := make([]*Notification, 0, excess)
	for _, n := range s.table {
		if len(candidates) < excess {
			candidates = append(candidates, n)
			// Keep the buffer sorted oldest first so the newest candidate
			// sits at the end, ready to be displaced.
			for i := len(candidates) - 1; i > 0 && older(candidates[i], candidates[i-1]); i-- {
				candidates[i], candidates[i-1] = candidates[i-1], candidates[i]
			}
			continue
		}
		if !older(n, candidates[excess-1]) {
			continue
		}
		candidates[excess-1] = n
		for i := excess - 1; i > 0 && older(candidates[i], candidates[i-1]); i-- {
			candidates[i], candidates[i-1] = candidates[i-1], candidates[i]
		}
	}

	victims := make([]string, len(candidates))
	for i, n := range candidates {
		victims[i] = n.Subject
	}
	return victims
}

// heapVictimsLocked keeps a bounded max-heap of the excess oldest entries:
// whenever the heap grows past excess, the newest entry on it is discarded.
func (s *Store) heapVictimsLocked(excess int) []string {
	h := make(newestFirstHeap, 0, excess+1)
	for _, n := range s.table {
		heap.Push(&h, n)
		if len(h) > excess {
			heap.Pop(&h)
		}
	}

	victims := make([]string, len(h))
	for i, n := range h {
		victims[i] = n.Subject
	}
	return victims
}

// heapSurvivorsComplementLocked handles the degenerate case where the excess
// is larger than the capacity itself: it is cheaper to select the maxCount
// newest survivors with a bounded min-heap and evict everything else.
func (s *Store) heapSurvivorsComplementLocked() []string {
	h := make(oldestFirstHeap, 0, s.maxCount+1)
	for _, n := range s.table {
		heap.Push(&h, n)
		if len(h) > s.maxCount {
			heap.Pop(&h)
		}
	}

	keep := make(map[string]struct{}, len(h))
	for _, n := range h {
		keep[n.Subject] = struct{}{}
	}

	victims := make([]string, 0, len(s.table)-len(keep))
	for subject := range s.table {
		if _, ok := keep[subject]; !ok {
			victims = append(victims, subject)
		}
	}
	return victims
}

// newestFirstHeap is a max-heap by (timestamp, seq): the newest entry is at
// the root, so popping discards the worst eviction candidate.
type newestFirstHeap []*Notification

func (h newestFirstHeap) Len() int            { return len(h) }
func (h newestFirstHeap) Less(i, j int) bool  { return older(h[j], h[i]) }
func (h newestFirstHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *newestFirstHeap) Push(x any)         { *h = append(*h, x.(*Notification)) }
func (h *newestFirstHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// oldestFirstHeap is the mirror min-heap used when selecting survivors.
type oldestFirstHeap []*Notification

func (h oldestFirstHeap) Len() int           { return len(h) }
func (h oldestFirstHeap) Less(i, j int) bool { return older(h[i], h[j]) }
func (h oldestFirstHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *oldestFirstHeap) Push(x any)        { *h = append(*h, x.(*Notification)) }
func (h *oldestFirstHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
