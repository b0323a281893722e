package reconcile

// uctsSample is one external-clock reading waiting to be attributed to its
// true event.
type uctsSample struct {
	timestamp   uint64
	triggerType uint8
}

// sampleQueue is a double-ended queue of pending UCTS samples.
//
// Discipline: PushBack on every event while corrections are pending, PopFront
// to obtain the current event's true sample, PushFront to undo a consumption
// when a new jump is detected. Its length therefore always equals the number
// of currently unresolved jumps; it grows without bound only if jumps keep
// occurring. All three operations are amortized O(1): the backing slice keeps
// consumed room at the front for PushFront and is compacted only when drained.
type sampleQueue struct {
	buf  []uctsSample
	head int
}

// Len returns the number of pending samples.
func (q *sampleQueue) Len() int {
	return len(q.buf) - q.head
}

// PushBack appends a sample at the tail.
func (q *sampleQueue) PushBack(s uctsSample) {
	q.buf = append(q.buf, s)
}

// PushFront inserts a sample at the head.
func (q *sampleQueue) PushFront(s uctsSample) {
	if q.head > 0 {
		q.head--
		q.buf[q.head] = s
		return
	}
	grown := make([]uctsSample, q.Len()+1, 2*q.Len()+4)
	grown[0] = s
	copy(grown[1:], q.buf[q.head:])
	q.buf = grown
}

// PopFront removes and returns the head sample. The queue must be non-empty.
func (q *sampleQueue) PopFront() uctsSample {
	s := q.buf[q.head]
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return s
}
