package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()
	b := Backoff{Min: time.Second, Max: 8 * time.Second, K: 2}
	assert.Equal(t, time.Duration(0), b.DelayBefore())

	b.Failure()
	assert.InDelta(t, float64(time.Second), float64(b.DelayBefore()), float64(50*time.Millisecond))
	b.Failure()
	assert.InDelta(t, float64(2*time.Second), float64(b.DelayBefore()), float64(50*time.Millisecond))
	for i := 0; i < 10; i++ {
		b.Failure()
	}
	assert.InDelta(t, float64(8*time.Second), float64(b.DelayBefore()), float64(50*time.Millisecond))

	b.Update(true)
	assert.Equal(t, time.Duration(0), b.DelayBefore())
}
