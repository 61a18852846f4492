package relay

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	"github.com/temoto/easyuart/state"
	"github.com/temoto/easyuart/tele"
	tele_config "github.com/temoto/easyuart/tele/config"
)

const testConfig = `
variable "rpm" { id = 1 type = "int32" rate = "very_fast" }
variable "valve" { id = 2 type = "bool" rate = "slow" }`

type teleFrame struct {
	raw     []byte
	records []registry.Record
}

type teleRecorder struct {
	sync.Mutex
	frames []teleFrame
	errors []error
}

func (*teleRecorder) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (*teleRecorder) Close()                                                    {}
func (*teleRecorder) StatModify(func(*tele.Stat))                               {}

func (self *teleRecorder) Frame(raw []byte, records []registry.Record) {
	self.Lock()
	self.frames = append(self.frames, teleFrame{
		raw:     append([]byte(nil), raw...),
		records: append([]registry.Record(nil), records...),
	})
	self.Unlock()
}

func (self *teleRecorder) Error(err error) {
	self.Lock()
	self.errors = append(self.errors, err)
	self.Unlock()
}

type fakePort struct {
	chunks [][]byte
	err    error
	ready  chan struct{}
}

func (self *fakePort) ReadLoop(ctx context.Context, fn func([]byte)) error {
	for _, c := range self.chunks {
		fn(c)
	}
	if self.err != nil {
		return self.err
	}
	if self.ready != nil {
		close(self.ready)
	}
	<-ctx.Done()
	return nil
}

func (*fakePort) Close() error { return nil }

func TestRelayRun(t *testing.T) {
	t.Parallel()
	_, g := state.NewTestContext(t, testConfig)
	rec := &teleRecorder{}
	g.Tele = rec

	raw := helpers.MustHex("7e05 04030201 012a000000 547f")
	ready := make(chan struct{})
	ports := []struct {
		port Port
		err  error
	}{
		{nil, errors.New("no such device")},
		{&fakePort{
			chunks: [][]byte{{0x00, 0xff}, raw[:4], raw[4:], {0x7e, 0x05}},
			err:    io.ErrUnexpectedEOF,
		}, nil},
		{&fakePort{ready: ready}, nil},
	}
	var mu sync.Mutex
	opens := 0
	open := func() (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		p := ports[opens]
		opens++
		return p.port, p.err
	}

	var handled []string
	r := New(g, Options{
		Open:        open,
		ReopenDelay: time.Millisecond,
		OnFrame: func(f *frame.Frame, err error) {
			if err != nil {
				handled = append(handled, "error")
				return
			}
			handled = append(handled, f.String())
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not reopen port")
	}
	cancel()
	require.NoError(t, <-done)

	rec.Lock()
	require.Len(t, rec.frames, 1)
	assert.Equal(t, raw, rec.frames[0].raw)
	assert.Equal(t, []registry.Record{{TS: 0x01020304, ID: 1, Name: "rpm", Type: "int32", Value: int32(42)}}, rec.frames[0].records)
	// open failure and read failure
	assert.Len(t, rec.errors, 2)
	rec.Unlock()

	rv, ok := g.Registry.Received(1)
	require.True(t, ok)
	assert.Equal(t, uint32(0x01020304), rv.TS)
	_, ok = g.Registry.Received(2)
	assert.False(t, ok)

	s := r.Stats()
	assert.Equal(t, uint64(1), s.Frames)
	assert.Equal(t, uint64(1), s.Errors) // truncated tail flushed
	assert.Equal(t, uint64(2), s.Skipped)
	assert.Equal(t, uint64(2), s.Reopens)
	assert.False(t, s.LastFrame.IsZero())
	assert.Equal(t, 2, len(handled))
	assert.Equal(t, "error", handled[1])
	assert.Equal(t, 1, len(r.Snapshot()))
}

func TestRelayHandleError(t *testing.T) {
	t.Parallel()
	_, g := state.NewTestContext(t, testConfig)
	rec := &teleRecorder{}
	g.Tele = rec
	r := New(g, Options{Open: func() (Port, error) { return nil, errors.New("unused") }})

	cases := []struct {
		name  string
		input string
	}{
		{"checksum", "7e05 04030201 012a000000 557f"},
		{"unknown-id", "7e05 04030201 092a000000 5c7f"},
		{"end", "7e05 04030201 012a000000 5400"},
	}
	helpers.RandUnix().Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			r.feed(helpers.MustHex(c.input))
		})
	}
	rec.Lock()
	assert.Len(t, rec.frames, 0)
	rec.Unlock()
	_, ok := g.Registry.Received(1)
	assert.False(t, ok)
	assert.True(t, r.Stats().Errors >= uint64(len(cases)))
}

func TestFormatRecord(t *testing.T) {
	t.Parallel()
	s := FormatRecord(registry.Record{TS: 5, ID: 2, Name: "valve", Type: "bool", Value: true})
	assert.Equal(t, "         5 |   2 | valve            | true", s)
}

func TestPrintFunc(t *testing.T) {
	t.Parallel()
	_, g := state.NewTestContext(t, testConfig)
	var buf bytes.Buffer
	fn := PrintFunc(&buf, g.Registry)

	f, err := g.Codec.Decode(helpers.MustHex("7e07 05000000 012a000000 0201 547f"), g.Registry)
	require.NoError(t, err)
	fn(&f, nil)
	fn(nil, errors.New("boom"))
	assert.Equal(t, "         5 |   1 | rpm              | 42\n"+
		"         5 |   2 | valve            | true\n"+
		"error: boom\n", buf.String())
}
