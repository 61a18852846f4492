package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/easyuart/clock"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
)

type fakeClock struct{ now uint64 }

func (c *fakeClock) Now() uint64 { return c.now }

type mockTx struct {
	sync.Mutex
	frames [][]byte
	fail   bool
}

func (m *mockTx) Transmit(b []byte) bool {
	m.Lock()
	defer m.Unlock()
	if m.fail {
		return false
	}
	m.frames = append(m.frames, append([]byte(nil), b...))
	return true
}

func (m *mockTx) count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.frames)
}

func newTestScheduler(t testing.TB, capacity int) (*Scheduler, *registry.Registry, *fakeClock, *mockTx) {
	reg, err := registry.New(capacity)
	require.NoError(t, err)
	clk := &fakeClock{}
	tx := &mockTx{}
	s, err := New(reg, clk, tx, Options{
		Intervals: [registry.NumClasses]time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
		Log:       log2.NewTest(t, log2.LDebug),
	})
	require.NoError(t, err)
	return s, reg, clk, tx
}

func TestConcreteScenario(t *testing.T) {
	t.Parallel()
	s, reg, clk, tx := newTestScheduler(t, 4)
	require.NoError(t, reg.Register(1, registry.Int32, registry.VeryFast))
	require.NoError(t, reg.SubmitValue(1, 42))

	clk.now = 100000
	require.NoError(t, s.Tick())
	assert.Equal(t, 0, tx.count())
	assert.Equal(t, Idle, s.State(registry.VeryFast))

	clk.now = 600000
	require.NoError(t, s.Tick())
	require.Equal(t, 1, tx.count())
	assert.Equal(t, uint64(600000), s.LastSent(registry.VeryFast))
	assert.Equal(t, Sent, s.State(registry.VeryFast))
	f, err := frame.Default.Decode(tx.frames[0], reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(600000), f.TS)
	require.Len(t, f.Pairs, 1)
	assert.Equal(t, registry.VarID(1), f.Pairs[0].ID)
	assert.Equal(t, []byte{42, 0, 0, 0}, f.Pairs[0].Bytes())

	clk.now = 610000
	require.NoError(t, s.Tick())
	assert.Equal(t, 1, tx.count())
	assert.Equal(t, Idle, s.State(registry.VeryFast))
	assert.Equal(t, 0, reg.Queue(registry.VeryFast).Dirty())
}

func TestEmptyAdvancesLastSent(t *testing.T) {
	t.Parallel()
	s, reg, clk, tx := newTestScheduler(t, 4)
	require.NoError(t, reg.Register(1, registry.Bool, registry.Fast))
	clk.now = 1000000
	require.NoError(t, s.Tick())
	assert.Equal(t, 0, tx.count())
	assert.Equal(t, uint64(1000000), s.LastSent(registry.Fast))
	assert.Equal(t, uint64(1000000), s.LastSent(registry.VeryFast))
	assert.Equal(t, uint64(0), s.LastSent(registry.Slow))
	assert.Equal(t, uint64(2), s.Stats().Empty)

	// submitted after empty advance waits for full interval
	require.NoError(t, reg.SubmitValue(1, true))
	clk.now = 1500000
	require.NoError(t, s.Tick())
	assert.Equal(t, 0, tx.count())
	clk.now = 2000000
	require.NoError(t, s.Tick())
	assert.Equal(t, 1, tx.count())
}

func TestInvalidClass(t *testing.T) {
	t.Parallel()
	s, _, clk, _ := newTestScheduler(t, 4)
	clk.now = 3000000
	require.NoError(t, s.Tick())
	bad := registry.RateClass(registry.NumClasses)
	assert.Equal(t, time.Duration(0), s.Interval(bad))
	assert.Equal(t, uint64(0), s.LastSent(bad))
	assert.Equal(t, Idle, s.State(bad))
	assert.Equal(t, uint64(3000000), s.LastSent(registry.Slow))
}

func TestAllClassesSameTickOrder(t *testing.T) {
	t.Parallel()
	s, reg, clk, tx := newTestScheduler(t, 4)
	require.NoError(t, reg.Register(3, registry.Int32, registry.Slow))
	require.NoError(t, reg.Register(2, registry.Int32, registry.Fast))
	require.NoError(t, reg.Register(1, registry.Int32, registry.VeryFast))
	for id := registry.VarID(1); id <= 3; id++ {
		require.NoError(t, reg.SubmitValue(id, int(id)))
	}
	clk.now = 2000000
	require.NoError(t, s.Tick())
	require.Equal(t, 3, tx.count())
	for i, b := range tx.frames {
		f, err := frame.Default.Decode(b, reg)
		require.NoError(t, err)
		assert.Equal(t, registry.VarID(i+1), f.Pairs[0].ID)
	}
	st := s.Stats()
	assert.Equal(t, uint64(3), st.Frames)
	assert.Equal(t, uint64(3*13), st.Bytes)
}

func TestTransmitFailureKeepsDirty(t *testing.T) {
	t.Parallel()
	s, reg, clk, tx := newTestScheduler(t, 4)
	require.NoError(t, reg.Register(1, registry.Int32, registry.VeryFast))
	require.NoError(t, reg.SubmitValue(1, 7))
	tx.fail = true
	clk.now = 500000
	require.NoError(t, s.Tick())
	assert.Equal(t, 0, tx.count())
	assert.Equal(t, uint64(0), s.LastSent(registry.VeryFast))
	assert.Equal(t, Due, s.State(registry.VeryFast))
	assert.Equal(t, 1, reg.Queue(registry.VeryFast).Dirty())
	assert.Equal(t, uint64(1), s.Stats().TransmitFailures)

	// retried on next tick
	tx.fail = false
	clk.now = 510000
	require.NoError(t, s.Tick())
	require.Equal(t, 1, tx.count())
	assert.Equal(t, uint64(510000), s.LastSent(registry.VeryFast))
	assert.Equal(t, 0, reg.Queue(registry.VeryFast).Dirty())
}

func TestFrameTooLarge(t *testing.T) {
	t.Parallel()
	s, reg, clk, tx := newTestScheduler(t, 60)
	for i := 1; i <= 50; i++ {
		require.NoError(t, reg.Register(registry.VarID(i), registry.Float32, registry.Slow))
		require.NoError(t, reg.SubmitValue(registry.VarID(i), float32(i)))
	}
	require.NoError(t, reg.Register(51, registry.Bool, registry.VeryFast))
	require.NoError(t, reg.SubmitValue(51, true))

	clk.now = 2000000
	err := s.Tick()
	require.Error(t, err)
	assert.Equal(t, frame.ErrFrameTooLarge, errors.Cause(err), errors.ErrorStack(err))
	assert.Contains(t, err.Error(), "class=slow")
	// other class not blocked
	assert.Equal(t, 1, tx.count())
	assert.Equal(t, uint64(2000000), s.LastSent(registry.Slow))
	assert.Equal(t, 50, reg.Queue(registry.Slow).Dirty())
	assert.Equal(t, uint64(1), s.Stats().EncodeErrors)

	// reported once per interval
	clk.now = 2100000
	assert.NoError(t, s.Tick())
}

func TestFoldedErrors(t *testing.T) {
	t.Parallel()
	reg, err := registry.New(10)
	require.NoError(t, err)
	codec, err := frame.NewCodec("xor", 12)
	require.NoError(t, err)
	clk := &fakeClock{}
	s, err := New(reg, clk, &mockTx{}, Options{Codec: codec, Log: log2.NewTest(t, log2.LDebug)})
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		require.NoError(t, reg.Register(registry.VarID(i), registry.Int32, registry.RateClass((i-1)%2)))
		require.NoError(t, reg.SubmitValue(registry.VarID(i), i))
	}
	clk.now = 10000000
	err = s.Tick()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class=very_fast")
	assert.Contains(t, err.Error(), "class=fast")
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()
	reg, _ := registry.New(1)
	_, err := New(nil, &fakeClock{}, &mockTx{}, Options{})
	assert.True(t, errors.IsNotValid(err))
	_, err = New(reg, &fakeClock{}, &mockTx{}, Options{Intervals: [registry.NumClasses]time.Duration{time.Nanosecond}})
	assert.True(t, errors.IsNotValid(err))
	s, err := New(reg, &fakeClock{}, TransmitFunc(func([]byte) bool { return true }), Options{})
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultIntervals[registry.Slow], s.Interval(registry.Slow))
}

func TestRun(t *testing.T) {
	t.Parallel()
	reg, err := registry.New(2)
	require.NoError(t, err)
	require.NoError(t, reg.Register(1, registry.Int32, registry.VeryFast))
	require.NoError(t, reg.SubmitValue(1, 1))
	src, err := clock.NewSource(clock.NewHostCounter(16, time.Microsecond), 16, time.Microsecond)
	require.NoError(t, err)
	tx := &mockTx{}
	s, err := New(reg, src, tx, Options{
		Intervals: [registry.NumClasses]time.Duration{time.Millisecond, time.Second, time.Second},
		Log:       log2.NewTest(t, log2.LDebug),
	})
	require.NoError(t, err)

	// 16 bit us counter wraps every 65.5ms
	assert.True(t, errors.IsNotValid(s.Run(context.Background(), 100*time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx, time.Millisecond))
	assert.Equal(t, 1, tx.count())
}
