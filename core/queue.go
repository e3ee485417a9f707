package core

// timerQueue is an intrusive singly-linked list of timers sorted by
// ascending priority. Equal priorities keep insertion order.
type timerQueue struct {
	head *Timer
	len  int
}

// add inserts t keyed by priority
func (q *timerQueue) add(t *Timer, priority uint32) {
	t.priority = priority

	if q.head == nil || priority < q.head.priority {
		t.next = q.head
		q.head = t
		q.len++
		return
	}

	current := q.head
	for current.next != nil && current.next.priority <= priority {
		current = current.next
	}

	t.next = current.next
	current.next = t
	q.len++
}

// peek returns the head timer without removing it, or nil
func (q *timerQueue) peek() *Timer {
	return q.head
}

// pop removes and returns the head timer, or nil if empty
func (q *timerQueue) pop() *Timer {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.next
	t.next = nil // Clear link, the timer no longer belongs to us
	q.len--
	return t
}

// empty reports whether the queue holds no timers
func (q *timerQueue) empty() bool {
	return q.head == nil
}
