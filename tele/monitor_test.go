package tele

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	tele_config "github.com/temoto/easyuart/tele/config"
)

type mockMsg struct {
	topic   string
	payload []byte
}

func (msg mockMsg) Ack()              {}
func (msg mockMsg) Duplicate() bool   { return false }
func (msg mockMsg) MessageID() uint16 { return 0 }
func (msg mockMsg) Payload() []byte   { return msg.payload }
func (msg mockMsg) Qos() byte         { return 1 }
func (msg mockMsg) Retained() bool    { return false }
func (msg mockMsg) Topic() string     { return msg.topic }

func TestMonitorDecode(t *testing.T) {
	// FIXME ugly `mqtt.CRITICAL/ERROR/WARN/DEBUG` global variables
	// t.Parallel()

	reg, err := registry.New(4)
	require.NoError(t, err)
	require.NoError(t, reg.Register(1, registry.Int32, registry.VeryFast))

	type result struct {
		f   *frame.Frame
		err error
	}
	results := make([]result, 0, 2)
	conf := tele_config.Config{MqttBroker: "tcp://127.0.0.1:1", ClientID: "dev1"}
	mon, err := NewMonitor(log2.NewTest(t, log2.LDebug), conf, frame.Default, reg, func(f *frame.Frame, err error) {
		results = append(results, result{f, err})
	})
	require.NoError(t, err)

	mon.onFrame(nil, mockMsg{"dev1/frame", helpers.MustHex("7e05 04030201 012a000000 547f")})
	mon.onFrame(nil, mockMsg{"dev1/frame", helpers.MustHex("7e05 04030201 012a000000 557f")})
	require.Equal(t, 2, len(results))
	require.NoError(t, results[0].err)
	assert.Equal(t, uint32(0x01020304), results[0].f.TS)
	require.Equal(t, 1, len(results[0].f.Pairs))
	assert.Equal(t, []byte{0x2a, 0, 0, 0}, results[0].f.Pairs[0].Bytes())
	assert.Nil(t, results[1].f)
	assert.Equal(t, frame.ErrChecksum, errors.Cause(results[1].err))
}

func TestNewMonitorInvalid(t *testing.T) {
	_, err := NewMonitor(log2.NewTest(t, log2.LDebug), tele_config.Config{}, frame.Default, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
}
