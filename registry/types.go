package registry

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// MaxPayload is the widest variable payload on the wire.
const MaxPayload = 4

type VarID uint8

// VarType zero value is invalid.
type VarType uint8

const (
	Int32 VarType = iota + 1
	Float32
	Bool
	Enum32
)

var typeNames = [...]string{
	Int32:   "int32",
	Float32: "float32",
	Bool:    "bool",
	Enum32:  "enum32",
}

func (t VarType) Valid() bool { return t >= Int32 && t <= Enum32 }

// Width returns payload size in bytes, 0 for invalid type.
func (t VarType) Width() int {
	switch t {
	case Int32, Float32, Enum32:
		return 4
	case Bool:
		return 1
	}
	return 0
}

func (t VarType) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("VarType(%d)", uint8(t))
}

func ParseType(s string) (VarType, error) {
	for t := Int32; t <= Enum32; t++ {
		if strings.EqualFold(s, typeNames[t]) {
			return t, nil
		}
	}
	return 0, errors.NotValidf("variable type=%s", s)
}

// Encode converts Go value into little-endian payload.
// Integers outside of type range are rejected, never truncated.
func (t VarType) Encode(v interface{}) ([]byte, error) {
	b := make([]byte, t.Width())
	switch t {
	case Bool:
		x, ok := v.(bool)
		if !ok {
			return nil, errors.Annotatef(ErrTypeMismatch, "type=%s value=%#v", t, v)
		}
		if x {
			b[0] = 1
		}
		return b, nil

	case Float32:
		var f float32
		switch x := v.(type) {
		case float32:
			f = x
		case float64:
			f = float32(x)
		case int:
			f = float32(x)
		default:
			return nil, errors.Annotatef(ErrTypeMismatch, "type=%s value=%#v", t, v)
		}
		binary.LittleEndian.PutUint32(b, math.Float32bits(f))
		return b, nil

	case Int32, Enum32:
		var x int64
		switch n := v.(type) {
		case int:
			x = int64(n)
		case int32:
			x = int64(n)
		case int64:
			x = n
		case uint32:
			x = int64(n)
		case uint8:
			x = int64(n)
		default:
			return nil, errors.Annotatef(ErrTypeMismatch, "type=%s value=%#v", t, v)
		}
		min, max := int64(math.MinInt32), int64(math.MaxInt32)
		if t == Enum32 {
			min, max = 0, math.MaxUint32
		}
		if x < min || x > max {
			return nil, errors.Annotatef(ErrTypeMismatch, "type=%s value=%d out of range", t, x)
		}
		binary.LittleEndian.PutUint32(b, uint32(x))
		return b, nil
	}
	return nil, errors.Annotatef(ErrInvalidID, "type=%s", t)
}

// Decode returns int32, float32, bool or uint32 (Enum32).
func (t VarType) Decode(b []byte) (interface{}, error) {
	if w := t.Width(); w == 0 || len(b) != w {
		return nil, errors.Annotatef(ErrTypeMismatch, "type=%s len=%d", t, len(b))
	}
	switch t {
	case Int32:
		return int32(binary.LittleEndian.Uint32(b)), nil
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case Bool:
		return b[0] != 0, nil
	case Enum32:
		return binary.LittleEndian.Uint32(b), nil
	}
	panic("code error")
}

// Parse reads human input: integers, floats, true/false/on/off/1/0.
func (t VarType) Parse(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch t {
	case Bool:
		switch strings.ToLower(s) {
		case "1", "true", "on", "yes":
			return t.Encode(true)
		case "0", "false", "off", "no":
			return t.Encode(false)
		}
	case Float32:
		f, err := strconv.ParseFloat(s, 32)
		if err == nil {
			return t.Encode(float32(f))
		}
	case Int32:
		x, err := strconv.ParseInt(s, 0, 32)
		if err == nil {
			return t.Encode(int32(x))
		}
	case Enum32:
		x, err := strconv.ParseUint(s, 0, 32)
		if err == nil {
			return t.Encode(uint32(x))
		}
	}
	return nil, errors.NotValidf("type=%s input=%q", t, s)
}

// Format renders payload for logs and terminal output.
func (t VarType) Format(b []byte) string {
	v, err := t.Decode(b)
	if err != nil {
		return fmt.Sprintf("<%x>", b)
	}
	return fmt.Sprint(v)
}

// RateClass lower value means shorter interval.
type RateClass uint8

const (
	VeryFast RateClass = iota
	Fast
	Slow
	NumClasses int = iota
)

var classNames = [...]string{
	VeryFast: "very_fast",
	Fast:     "fast",
	Slow:     "slow",
}

var DefaultIntervals = [NumClasses]time.Duration{
	VeryFast: 500 * time.Millisecond,
	Fast:     1 * time.Second,
	Slow:     2 * time.Second,
}

func (c RateClass) Valid() bool { return int(c) < NumClasses }

func (c RateClass) String() string {
	if c.Valid() {
		return classNames[c]
	}
	return fmt.Sprintf("RateClass(%d)", uint8(c))
}

func ParseRateClass(s string) (RateClass, error) {
	norm := strings.Replace(strings.ToLower(s), "-", "_", -1)
	if norm == "veryfast" {
		norm = "very_fast"
	}
	for i, name := range classNames {
		if norm == name {
			return RateClass(i), nil
		}
	}
	return 0, errors.NotValidf("rate class=%s", s)
}
