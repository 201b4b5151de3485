package engine

// workQueue is the FIFO the precommit phase drains.
//
// It is seeded with the dirty list in dirty order; objects dirtied by a
// BeforeCommit hook are appended behind it. A transaction is confined to one
// goroutine, so the queue carries no lock.
type workQueue struct {
	items  []*Object
	queued map[*Object]bool
}

func newWorkQueue() *workQueue {
	return &workQueue{
		items:  make([]*Object, 0, 64),
		queued: map[*Object]bool{},
	}
}

// Enqueue appends obj unless it is already waiting in the queue.
// Returns false when obj was already queued.
func (q *workQueue) Enqueue(obj *Object) bool {
	if q.queued[obj] {
		return false
	}
	q.queued[obj] = true
	q.items = append(q.items, obj)
	return true
}

// TryDequeue removes and returns the front object.
// Returns (nil, false) if the queue is empty.
func (q *workQueue) TryDequeue() (*Object, bool) {
	if len(q.items) == 0 {
		return nil, false
	}

	obj := q.items[0]

	// Nil out the slot so the backing array does not pin the object.
	q.items[0] = nil

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	delete(q.queued, obj)

	return obj, true
}

// Len returns the current queue length.
func (q *workQueue) Len() int {
	return len(q.items)
}
