package kernel

// fifo is an unbounded queue of PIDs.
type fifo struct {
	buf  []Pid
	head int
}

func (q *fifo) push(pid Pid) {
	q.buf = append(q.buf, pid)
}

func (q *fifo) pop() (Pid, bool) {
	if q.head == len(q.buf) {
		return 0, false
	}
	pid := q.buf[q.head]
	q.head++
	switch {
	case q.head == len(q.buf):
		q.buf = q.buf[:0]
		q.head = 0
	case q.head >= len(q.buf)/2:
		// Slide the live part down so a queue that never drains reuses its array.
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	return pid, true
}

// remove deletes the first occurrence of pid and reports whether it was found.
func (q *fifo) remove(pid Pid) bool {
	for i := q.head; i < len(q.buf); i++ {
		if q.buf[i] != pid {
			continue
		}
		copy(q.buf[i:], q.buf[i+1:])
		q.buf = q.buf[:len(q.buf)-1]
		if q.head == len(q.buf) {
			q.buf = q.buf[:0]
			q.head = 0
		}
		return true
	}
	return false
}

func (q *fifo) len() int { return len(q.buf) - q.head }

func (q *fifo) count(pid Pid) int {
	n := 0
	for _, p := range q.buf[q.head:] {
		if p == pid {
			n++
		}
	}
	return n
}

func (q *fifo) items() []Pid {
	if q.len() == 0 {
		return nil
	}
	out := make([]Pid, q.len())
	copy(out, q.buf[q.head:])
	return out
}

// readyQueue holds one FIFO per priority level. pop always serves the lowest
// non-empty level; there is no aging, so a busy high-priority process starves
// every level below it.
type readyQueue [LeastPriority + 1]fifo

// push appends pid at its priority. The caller guarantees pid is not queued.
func (q *readyQueue) push(pid Pid, priority Priority) {
	q[priority].push(pid)
}

func (q *readyQueue) pop() (Pid, bool) {
	for i := range q {
		if pid, ok := q[i].pop(); ok {
			return pid, true
		}
	}
	return 0, false
}

func (q *readyQueue) len() int {
	n := 0
	for i := range q {
		n += q[i].len()
	}
	return n
}

// slots returns how often pid is queued, and at which level it was last seen.
func (q *readyQueue) slots(pid Pid) (n int, level Priority) {
	for i := range q {
		if c := q[i].count(pid); c > 0 {
			n += c
			level = Priority(i)
		}
	}
	return n, level
}
