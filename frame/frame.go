// Package frame implements telemetry link wire format:
//
//   [START 7E][LENGTH][TS:4 LE][(ID PAYLOAD)*][CHECKSUM][END 7F]
//
// LENGTH counts id+payload bytes. CHECKSUM covers START through last payload byte.
// Framing is length-prefixed without byte stuffing: START/END values may appear
// inside timestamp and payload, decoder never scans for them inside a frame.
package frame

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/crc"
	"github.com/temoto/easyuart/registry"
)

const (
	Start    byte = 0x7e
	End      byte = 0x7f
	MaxSize       = 256
	Overhead      = 8

	headerLen = 6
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrFraming       = errors.New("framing error")
	ErrChecksum      = errors.New("checksum error")
	ErrTruncated     = errors.New("truncated frame")
)

// Layout supplies payload width of registered id, see registry.Registry.Width.
type Layout interface {
	Width(id registry.VarID) (int, bool)
}

type Codec struct {
	Sum     crc.Func
	MaxSize int
}

var Default = Codec{Sum: crc.XOR8, MaxSize: MaxSize}

// NewCodec builds codec from config values, checksum name as in crc.ByName.
func NewCodec(checksum string, maxSize int) (Codec, error) {
	sum, err := crc.ByName(checksum)
	if err != nil {
		return Codec{}, errors.NewNotValid(err, "link checksum")
	}
	if maxSize == 0 {
		maxSize = MaxSize
	}
	// one id+payload pair minimum
	if maxSize < Overhead+2 || maxSize > MaxSize {
		return Codec{}, errors.NotValidf("link max_frame=%d (expected %d..%d)", maxSize, Overhead+2, MaxSize)
	}
	return Codec{Sum: sum, MaxSize: maxSize}, nil
}

func (c Codec) sum(b []byte) byte {
	if c.Sum == nil {
		return crc.XOR8(0, b)
	}
	return c.Sum(0, b)
}

func (c Codec) max() int {
	if c.MaxSize <= 0 || c.MaxSize > MaxSize {
		return MaxSize
	}
	return c.MaxSize
}

// Size returns encoded length of frame with given entries.
func Size(entries []registry.Entry) int {
	n := Overhead
	for i := range entries {
		n += 1 + entries[i].Type.Width()
	}
	return n
}

// Encode appends frame to dst. On error dst is returned unchanged.
func (c Codec) Encode(dst []byte, ts uint32, entries []registry.Entry) ([]byte, error) {
	size := Size(entries)
	if size > c.max() {
		return dst, errors.Annotatef(ErrFrameTooLarge, "entries=%d size=%d max=%d", len(entries), size, c.max())
	}
	for i := range entries {
		if entries[i].ID == 0 || entries[i].Type.Width() == 0 {
			return dst, errors.Annotatef(registry.ErrInvalidID, "encode id=%d type=%s", entries[i].ID, entries[i].Type)
		}
	}
	begin := len(dst)
	dst = append(dst, Start, byte(size-Overhead), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(dst[begin+2:], ts)
	for i := range entries {
		dst = append(dst, byte(entries[i].ID))
		dst = append(dst, entries[i].Bytes()...)
	}
	sum := c.sum(dst[begin:])
	dst = append(dst, sum, End)
	return dst, nil
}

type Pair struct {
	ID      registry.VarID
	Payload [registry.MaxPayload]byte
	Len     uint8
}

func (p *Pair) Bytes() []byte { return p.Payload[:p.Len] }

type Frame struct {
	TS    uint32
	Pairs []Pair
	Raw   []byte // points into input of Parse
}

// Decode parses exactly one frame, trailing bytes are framing error.
func (c Codec) Decode(b []byte, layout Layout) (Frame, error) {
	var f Frame
	n, err := c.Parse(&f, b, layout)
	if err == nil && n != len(b) {
		err = errors.Annotatef(ErrFraming, "frame=%x trailing=%d", b, len(b)-n)
	}
	return f, err
}

// Parse overwrites frame state, reusing Pairs capacity.
// Returns length of frame at start of b.
func (c Codec) Parse(f *Frame, b []byte, layout Layout) (int, error) {
	f.TS = 0
	f.Pairs = f.Pairs[:0]
	f.Raw = nil
	if layout == nil {
		return 0, errors.NotValidf("layout=nil")
	}
	if len(b) == 0 {
		return 0, errors.Annotate(ErrTruncated, "frame empty")
	}
	if b[0] != Start {
		return 0, errors.Annotatef(ErrFraming, "frame=%x start=%02x", b, b[0])
	}
	if len(b) < 2 {
		return 0, errors.Annotatef(ErrTruncated, "frame=%x no length", b)
	}
	total := Overhead + int(b[1])
	if total > c.max() {
		return 0, errors.Annotatef(ErrFraming, "frame=%x claims length=%d > max=%d", b, total, c.max())
	}
	if len(b) < total {
		return 0, errors.Annotatef(ErrTruncated, "frame=%x claims length=%d > input=%d", b, total, len(b))
	}
	b = b[:total]
	if b[total-1] != End {
		return 0, errors.Annotatef(ErrFraming, "frame=%x end=%02x", b, b[total-1])
	}
	sumIn := b[total-2]
	sumLocal := c.sum(b[:total-2])
	if sumIn != sumLocal {
		return 0, errors.Annotatef(ErrChecksum, "frame=%x checksum=%02x actual=%02x", b, sumIn, sumLocal)
	}

	body := b[headerLen : total-2]
	for bi := 0; bi < len(body); {
		id := registry.VarID(body[bi])
		if id == 0 {
			return 0, errors.Annotatef(ErrFraming, "frame=%x id=0 at=%d", b, headerLen+bi)
		}
		width, ok := layout.Width(id)
		if !ok {
			return 0, errors.Annotatef(ErrFraming, "frame=%x unknown id=%d", b, id)
		}
		if bi+1+width > len(body) {
			return 0, errors.Annotatef(ErrFraming, "frame=%x id=%d width=%d overruns length=%d", b, id, width, len(body))
		}
		p := Pair{ID: id, Len: uint8(width)}
		copy(p.Payload[:], body[bi+1:bi+1+width])
		f.Pairs = append(f.Pairs, p)
		bi += 1 + width
	}
	f.TS = binary.LittleEndian.Uint32(b[2:])
	f.Raw = b
	return total, nil
}

func (f *Frame) String() string {
	ss := make([]string, 0, len(f.Pairs)+1)
	ss = append(ss, fmt.Sprintf("ts=%d", f.TS))
	for i := range f.Pairs {
		ss = append(ss, fmt.Sprintf("%d=%x", f.Pairs[i].ID, f.Pairs[i].Bytes()))
	}
	return strings.Join(ss, " ")
}
