package capture

// completionQueue is the FIFO of completed slot indices, in completion order, plus the
// notification channels consumers wait on. Guarded by the manager's monitor lock, except for the
// channels themselves.
type completionQueue struct {
	fifo []int
	// signal holds at most one wake-up token.
	signal chan struct{}
	// stopped is closed when the run stops, releasing every blocked consumer.
	stopped chan struct{}
}

func newCompletionQueue(capacity int) *completionQueue {
	return &completionQueue{
		fifo:    make([]int, 0, capacity),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

func (q *completionQueue) len() int {
	return len(q.fifo)
}

func (q *completionQueue) push(idx int) {
	q.fifo = append(q.fifo, idx)
}

func (q *completionQueue) pop() (int, bool) {
	if len(q.fifo) == 0 {
		return 0, false
	}
	idx := q.fifo[0]
	q.fifo = q.fifo[1:]
	return idx, true
}

func (q *completionQueue) drain() []int {
	out := q.fifo
	q.fifo = nil
	return out
}

// wake hands a token to one waiting consumer without blocking.
func (q *completionQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *completionQueue) broadcastStop() {
	close(q.stopped)
}
