// Package registry holds typed telemetry variables in a fixed-capacity table.
// Each variable belongs to exactly one rate class queue.
// Submit overwrites the last value and marks it dirty; scheduler sends dirty values.
package registry

import (
	"sync"

	"github.com/juju/errors"
)

const MaxCapacity = 255

var (
	ErrRegistryFull = errors.New("registry full")
	ErrDuplicateID  = errors.New("duplicate variable id")
	ErrInvalidID    = errors.New("invalid variable id")
	ErrUnknownID    = errors.New("unknown variable id")
	ErrTypeMismatch = errors.New("type mismatch")
)

// Var describes registered variable.
type Var struct {
	ID    VarID
	Type  VarType
	Class RateClass
	Name  string
}

func (v Var) Width() int { return v.Type.Width() }

type slot struct {
	Var
	payload [MaxPayload]byte
	dirty   bool
	seq     uint64

	recv      Received
	recvValid bool
}

type Registry struct {
	mu     sync.Mutex // the only critical section: slot writes and queue reads
	slots  []slot
	byID   [MaxCapacity + 1]*slot
	queues [NumClasses]Queue
	seq    uint64
}

func New(capacity int) (*Registry, error) {
	if capacity < 1 || capacity > MaxCapacity {
		return nil, errors.NotValidf("registry capacity=%d (expected 1..%d)", capacity, MaxCapacity)
	}
	r := &Registry{slots: make([]slot, 0, capacity)}
	for i := range r.queues {
		r.queues[i] = Queue{r: r, class: RateClass(i), slots: make([]*slot, 0, capacity)}
	}
	return r, nil
}

func (r *Registry) Capacity() int { return cap(r.slots) }

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *Registry) Register(id VarID, t VarType, class RateClass) error {
	return r.RegisterNamed(id, "", t, class)
}

func (r *Registry) RegisterNamed(id VarID, name string, t VarType, class RateClass) error {
	if id == 0 {
		return errors.Annotate(ErrInvalidID, "id=0 is reserved")
	}
	if !t.Valid() {
		return errors.Annotatef(ErrInvalidID, "id=%d type=%s", id, t)
	}
	if !class.Valid() {
		return errors.Annotatef(ErrInvalidID, "id=%d class=%s", id, class)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID[id] != nil {
		return errors.Annotatef(ErrDuplicateID, "id=%d", id)
	}
	if len(r.slots) == cap(r.slots) {
		return errors.Annotatef(ErrRegistryFull, "id=%d capacity=%d", id, cap(r.slots))
	}
	// append within capacity never reallocates, so pointers into slots stay valid
	r.slots = append(r.slots, slot{Var: Var{ID: id, Type: t, Class: class, Name: name}})
	s := &r.slots[len(r.slots)-1]
	r.byID[id] = s
	r.queues[class].insert(s)
	return nil
}

// Submit copies value bytes into variable slot and marks it dirty.
func (r *Registry) Submit(id VarID, b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byID[id]
	if s == nil {
		return errors.Annotatef(ErrUnknownID, "id=%d", id)
	}
	if len(b) != s.Type.Width() {
		return errors.Annotatef(ErrTypeMismatch, "id=%d type=%s len=%d", id, s.Type, len(b))
	}
	copy(s.payload[:], b)
	r.seq++
	s.seq = r.seq
	s.dirty = true
	return nil
}

func (r *Registry) SubmitValue(id VarID, v interface{}) error {
	t, ok := r.typeOf(id)
	if !ok {
		return errors.Annotatef(ErrUnknownID, "id=%d", id)
	}
	b, err := t.Encode(v)
	if err != nil {
		return errors.Annotatef(err, "id=%d", id)
	}
	return r.Submit(id, b)
}

// SubmitString parses human input according to variable type.
func (r *Registry) SubmitString(id VarID, s string) error {
	t, ok := r.typeOf(id)
	if !ok {
		return errors.Annotatef(ErrUnknownID, "id=%d", id)
	}
	b, err := t.Parse(s)
	if err != nil {
		return errors.Annotatef(err, "id=%d", id)
	}
	return r.Submit(id, b)
}

func (r *Registry) typeOf(id VarID) (VarType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		return s.Type, true
	}
	return 0, false
}

func (r *Registry) Lookup(id VarID) (Var, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		return s.Var, true
	}
	return Var{}, false
}

// LookupName finds variable by display name.
func (r *Registry) LookupName(name string) (Var, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if name != "" && r.slots[i].Name == name {
			return r.slots[i].Var, true
		}
	}
	return Var{}, false
}

// Width is payload size of registered id, used by frame decoder.
func (r *Registry) Width(id VarID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		return s.Type.Width(), true
	}
	return 0, false
}

// Value returns last submitted payload and dirty flag.
func (r *Registry) Value(id VarID) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byID[id]
	if s == nil {
		return nil, false, errors.Annotatef(ErrUnknownID, "id=%d", id)
	}
	b := make([]byte, s.Type.Width())
	copy(b, s.payload[:])
	return b, s.dirty, nil
}

// Each calls fn for every registered variable in ascending id order.
func (r *Registry) Each(fn func(Var) error) error {
	r.mu.Lock()
	vars := make([]Var, 0, len(r.slots))
	for _, s := range r.byID {
		if s != nil {
			vars = append(vars, s.Var)
		}
	}
	r.mu.Unlock()
	for _, v := range vars {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Queue(class RateClass) *Queue {
	if !class.Valid() {
		return nil
	}
	return &r.queues[class]
}
