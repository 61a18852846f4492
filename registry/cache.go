package registry

import (
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/helpers"
)

//go:generate protoc --go_out=./ cache.proto

// Received is last value of variable decoded from inbound frame.
type Received struct {
	Var
	TS      uint32 // frame timestamp
	Payload [MaxPayload]byte
	Count   uint64
	At      time.Time // host wall time
}

func (r *Received) Bytes() []byte { return r.Payload[:r.Type.Width()] }

func (r *Received) Value() interface{} {
	v, _ := r.Type.Decode(r.Bytes())
	return v
}

// Record is JSON form of received value for MQTT and websocket consumers.
type Record struct {
	TS    uint32      `json:"ts"`
	ID    VarID       `json:"id"`
	Name  string      `json:"name,omitempty"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

func (r *Received) Record() Record {
	return Record{
		TS:    r.TS,
		ID:    r.ID,
		Name:  r.Name,
		Type:  r.Type.String(),
		Value: r.Value(),
	}
}

// Receive stores inbound value into last-received cache.
func (r *Registry) Receive(id VarID, ts uint32, b []byte) error {
	return r.receiveAt(id, ts, b, time.Now(), 1)
}

func (r *Registry) receiveAt(id VarID, ts uint32, b []byte, at time.Time, count uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byID[id]
	if s == nil {
		return errors.Annotatef(ErrUnknownID, "id=%d", id)
	}
	if len(b) != s.Type.Width() {
		return errors.Annotatef(ErrTypeMismatch, "id=%d type=%s len=%d", id, s.Type, len(b))
	}
	s.recv.Var = s.Var
	s.recv.TS = ts
	copy(s.recv.Payload[:], b)
	s.recv.Count += count
	s.recv.At = at
	s.recvValid = true
	return nil
}

func (r *Registry) Received(id VarID) (Received, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil && s.recvValid {
		return s.recv, true
	}
	return Received{}, false
}

// EachReceived iterates cache in ascending id order.
func (r *Registry) EachReceived(fn func(Received)) {
	r.mu.Lock()
	list := make([]Received, 0, len(r.slots))
	for _, s := range r.byID {
		if s != nil && s.recvValid {
			list = append(list, s.recv)
		}
	}
	r.mu.Unlock()
	for _, rv := range list {
		fn(rv)
	}
}

// MarshalBinary snapshots last-received cache for persistence.
func (r *Registry) MarshalBinary() ([]byte, error) {
	state := CacheState{}
	r.EachReceived(func(rv Received) {
		state.Vars = append(state.Vars, &CacheState_Var{
			Id:         uint32(rv.ID),
			Ts:         rv.TS,
			Payload:    append([]byte(nil), rv.Bytes()...),
			Count:      rv.Count,
			AtUnixNano: rv.At.UnixNano(),
		})
	})
	return proto.Marshal(&state)
}

// SkippedError lists cache records that did not fit current registry.
// Rest of snapshot is restored, so callers may treat it as warning.
type SkippedError struct{ error }

func (*SkippedError) NonCritical() bool { return true }

func IsSkipped(err error) bool {
	_, ok := errors.Cause(err).(*SkippedError)
	return ok
}

// UnmarshalBinary restores cache snapshot. Records for variables no longer
// registered, or registered with different width, are skipped and reported
// as *SkippedError. Only malformed snapshot is a critical error.
func (r *Registry) UnmarshalBinary(b []byte) error {
	var state CacheState
	if err := proto.Unmarshal(b, &state); err != nil {
		return errors.Trace(err)
	}
	var errs []error
	for _, v := range state.Vars {
		if v.Id == 0 || v.Id > MaxCapacity {
			errs = append(errs, errors.Annotatef(ErrInvalidID, "cache id=%d", v.Id))
			continue
		}
		at := time.Unix(0, v.AtUnixNano)
		if err := r.receiveAt(VarID(v.Id), v.Ts, v.Payload, at, v.Count); err != nil {
			errs = append(errs, errors.Annotate(err, "cache restore"))
		}
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return &SkippedError{err}
	}
	return nil
}
