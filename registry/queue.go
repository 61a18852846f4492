package registry

// Entry is a snapshot of dirty variable handed to frame encoder.
type Entry struct {
	ID      VarID
	Type    VarType
	Payload [MaxPayload]byte
	Seq     uint64
}

func (e *Entry) Bytes() []byte { return e.Payload[:e.Type.Width()] }

// Queue is one rate class view of registry slots, ordered by id.
type Queue struct {
	r     *Registry
	class RateClass
	slots []*slot
}

func (q *Queue) Class() RateClass { return q.class }

func (q *Queue) Len() int {
	q.r.mu.Lock()
	defer q.r.mu.Unlock()
	return len(q.slots)
}

// called with registry lock held; cap(q.slots) == registry capacity
func (q *Queue) insert(s *slot) {
	i := len(q.slots)
	q.slots = append(q.slots, s)
	for ; i > 0 && q.slots[i-1].ID > s.ID; i-- {
		q.slots[i] = q.slots[i-1]
	}
	q.slots[i] = s
}

// Pending appends dirty variables of the class to dst in ascending id order.
// With cap(dst) >= Len() it does not allocate.
func (q *Queue) Pending(dst []Entry) []Entry {
	q.r.mu.Lock()
	defer q.r.mu.Unlock()
	for _, s := range q.slots {
		if s.dirty {
			dst = append(dst, Entry{ID: s.ID, Type: s.Type, Payload: s.payload, Seq: s.seq})
		}
	}
	return dst
}

func (q *Queue) Dirty() int {
	q.r.mu.Lock()
	defer q.r.mu.Unlock()
	n := 0
	for _, s := range q.slots {
		if s.dirty {
			n++
		}
	}
	return n
}

// Clear unmarks all dirty flags of the class, values are kept.
func (q *Queue) Clear() {
	q.r.mu.Lock()
	defer q.r.mu.Unlock()
	for _, s := range q.slots {
		s.dirty = false
	}
}

// Settle unmarks entries sent in a frame, unless variable was submitted
// again after Pending() took the snapshot. Newer value stays dirty.
func (q *Queue) Settle(entries []Entry) {
	q.r.mu.Lock()
	defer q.r.mu.Unlock()
	for i := range entries {
		e := &entries[i]
		if s := q.r.byID[e.ID]; s != nil && s.Class == q.class && s.seq == e.Seq {
			s.dirty = false
		}
	}
}
