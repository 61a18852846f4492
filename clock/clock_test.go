package clock

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSourceInvalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		counter Counter
		width   int
		res     time.Duration
	}{
		{"nil-counter", nil, 16, time.Microsecond},
		{"width-0", &MockCounter{}, 0, time.Microsecond},
		{"width-33", &MockCounter{}, 33, time.Microsecond},
		{"resolution-0", &MockCounter{}, 16, 0},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := NewSource(c.counter, c.width, c.res)
			require.Error(t, err)
			assert.True(t, errors.IsNotValid(err), errors.ErrorStack(err))
		})
	}
}

func TestWrap16(t *testing.T) {
	t.Parallel()
	mc := &MockCounter{}
	s, err := NewSource(mc, 16, time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, 65536*time.Microsecond, s.WrapPeriod())

	var prev uint64
	mc.Set(0xfff0)
	prev = s.Now()
	assert.Equal(t, uint64(0xfff0), prev)
	for i := 0; i < 64; i++ {
		mc.Add(1, 16)
		now := s.Now()
		assert.Equal(t, prev+1, now, "step=%d raw=%04x", i, mc.ReadRaw())
		prev = now
	}
	assert.Equal(t, uint32(0x0030), mc.ReadRaw())
	assert.Equal(t, uint64(0x10030), prev)
}

func TestWrapNoDiscontinuity(t *testing.T) {
	t.Parallel()
	mc := &MockCounter{}
	s, err := NewSource(mc, 16, time.Microsecond)
	require.NoError(t, err)
	prev := s.Now()
	// steps below wrap period never jump more than the step
	for _, step := range []uint32{1000, 30000, 65535, 12345, 50000, 1, 40000} {
		mc.Add(step, 16)
		now := s.Now()
		assert.Equal(t, uint64(step), now-prev)
		prev = now
	}
}

func TestRepeatedReadStable(t *testing.T) {
	t.Parallel()
	mc := &MockCounter{}
	mc.Set(0xffff)
	s, err := NewSource(mc, 16, time.Microsecond)
	require.NoError(t, err)
	a := s.Now()
	b := s.Now()
	assert.Equal(t, a, b)
}

func TestResolution(t *testing.T) {
	t.Parallel()
	mc := &MockCounter{}
	// 16MHz timer with /8 prescaler = 0.5us per tick
	s, err := NewSource(mc, 16, 500*time.Nanosecond)
	require.NoError(t, err)
	mc.Set(2000)
	assert.Equal(t, uint64(1000), s.Now())
	mc.Set(100)
	assert.Equal(t, uint64((65536+100)/2), s.Now())

	ms, err := NewSource(&MockCounter{}, 32, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(1<<32)*time.Millisecond, ms.WrapPeriod())
}

func TestMaskWideCounter(t *testing.T) {
	t.Parallel()
	mc := &MockCounter{}
	s, err := NewSource(mc, 8, time.Microsecond)
	require.NoError(t, err)
	mc.Set(0x1ff)
	assert.Equal(t, uint64(0xff), s.Now())
	mc.Set(0x205)
	assert.Equal(t, uint64(0x105), s.Now())
}

func TestHostCounter(t *testing.T) {
	t.Parallel()
	hc := NewHostCounter(32, time.Microsecond)
	s, err := NewSource(hc, 32, time.Microsecond)
	require.NoError(t, err)
	a := s.Now()
	time.Sleep(2 * time.Millisecond)
	b := s.Now()
	assert.True(t, b-a >= 2000, "a=%d b=%d", a, b)
}
