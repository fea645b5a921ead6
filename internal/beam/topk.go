package beam

// TopKBuffer retains the k highest-probability (id, prob) pairs from a
// stream of vocabulary candidates without sorting the whole vocabulary.
// The buffer is kept ascending by probability, so the minimum sits at
// index 0 and an offer that cannot beat it is rejected in O(1). An
// accepted offer is placed by linear shift, O(k) worst case, evicting the
// minimum. With k small and the vocabulary large this is much cheaper
// than a full sort per candidate per step.
//
// Slots start as (sentinelID, 0) pairs. A zero probability never beats a
// slot, so unfilled slots surface as zero-probability entries that
// callers skip.
type TopKBuffer struct {
	ids   []int
	probs []float32
}

// NewTopKBuffer returns a buffer with k sentinel slots.
func NewTopKBuffer(k, sentinelID int) *TopKBuffer {
	b := &TopKBuffer{ids: make([]int, k), probs: make([]float32, k)}
	for i := range b.ids {
		b.ids[i] = sentinelID
	}
	return b
}

// Offer inserts (id, p) if p beats the current minimum. The strict
// comparison keeps the earlier offer on equal probabilities; since
// callers scan the vocabulary in ascending id order, ties resolve to the
// lowest id, keeping generation reproducible.
func (b *TopKBuffer) Offer(id int, p float32) {
	if len(b.probs) == 0 || p <= b.probs[0] {
		return
	}
	pos := 0
	for pos+1 < len(b.probs) && b.probs[pos+1] < p {
		pos++
	}
	copy(b.probs[:pos], b.probs[1:pos+1])
	copy(b.ids[:pos], b.ids[1:pos+1])
	b.probs[pos] = p
	b.ids[pos] = id
}

// PeekMax reports the current best pair without removing it. ok is false
// once the buffer has been fully drained.
func (b *TopKBuffer) PeekMax() (id int, p float32, ok bool) {
	n := len(b.probs)
	if n == 0 {
		return 0, 0, false
	}
	return b.ids[n-1], b.probs[n-1], true
}

// PopMax removes and returns the current best pair.
func (b *TopKBuffer) PopMax() (id int, p float32, ok bool) {
	id, p, ok = b.PeekMax()
	if ok {
		n := len(b.probs)
		b.ids = b.ids[:n-1]
		b.probs = b.probs[:n-1]
	}
	return id, p, ok
}

// Len reports how many slots remain, drained slots excluded.
func (b *TopKBuffer) Len() int { return len(b.probs) }

// DrainDescending consumes the buffer, returning the retained pairs
// highest probability first.
func (b *TopKBuffer) DrainDescending() (ids []int, probs []float32) {
	for {
		id, p, ok := b.PopMax()
		if !ok {
			return ids, probs
		}
		ids = append(ids, id)
		probs = append(probs, p)
	}
}
