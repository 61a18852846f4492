package helpers

import (
	"bytes"
	"expvar"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatReader(t *testing.T) {
	t.Parallel()
	var counter expvar.Int
	s := NewStatReader(strings.NewReader(strings.Repeat(".", 1024)), &counter, 0)
	assert.Equal(t, int64(0), counter.Value())
	buf := make([]byte, 17)
	_, _ = s.Read(buf[:0])
	assert.Equal(t, int64(0), counter.Value())
	_, _ = s.Read(buf[:5])
	assert.Equal(t, int64(5), counter.Value())
	_, _ = s.Read(buf)
	assert.Equal(t, int64(22), counter.Value())
}

func TestStatWriterFix(t *testing.T) {
	t.Parallel()
	var counter expvar.Int
	s := NewStatWriter(bytes.NewBuffer(nil), &counter, 2)
	buf := make([]byte, 17)
	_, _ = s.Write(buf[:0])
	assert.Equal(t, int64(0), counter.Value())
	_, _ = s.Write(buf[:5])
	assert.Equal(t, int64(7), counter.Value())
	_, _ = s.Write(buf)
	assert.Equal(t, int64(26), counter.Value())
}

func TestHexSpaced(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", HexSpaced(nil))
	assert.Equal(t, "7e03", HexSpaced([]byte{0x7e, 0x03}))
	assert.Equal(t, "7e030000 00010203", HexSpaced(MustHex("7e030000 00010203")))
	assert.Equal(t, "7e030000 00", HexSpaced(MustHex("7e03000000")))
}

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FoldErrors(nil))
	assert.Nil(t, FoldErrors([]error{nil, nil}))
	e1 := assert.AnError
	assert.Equal(t, e1, FoldErrors([]error{nil, e1}))
	folded := FoldErrors([]error{e1, bytes.ErrTooLarge})
	assert.EqualError(t, folded, e1.Error()+"\n"+bytes.ErrTooLarge.Error())
}
