package lpt

// linkProposal pairs track with its nearest candidate
type linkProposal struct {
	track      *Track
	trackOrder int
	candidate  int
	distance   float64
}

// Min-heap of proposals. Based on container/heap, typed to avoid interface conversions.
// Equal distances are ordered by track order and then by candidate id.
type proposalHeap []*linkProposal

func (h proposalHeap) Len() int { return len(h) }
func (h proposalHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance < h[j].distance
	}
	if h[i].trackOrder != h[j].trackOrder {
		return h[i].trackOrder < h[j].trackOrder
	}
	return h[i].candidate < h[j].candidate
}
func (h proposalHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *proposalHeap) Push(x *linkProposal) {
	*h = append(*h, x)
	h.up(h.Len() - 1)
}

// Pop removes and returns the minimum element (according to Less) from the heap.
// The complexity is O(log n) where n = h.Len().
func (h *proposalHeap) Pop() *linkProposal {
	n := h.Len() - 1
	h.Swap(0, n)
	h.down(0, n)
	heapSize := len(*h)
	lastNode := (*h)[heapSize-1]
	*h = (*h)[0 : heapSize-1]
	return lastNode
}

func (h proposalHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h proposalHeap) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}
