package helpers

import (
	"math/rand"
	"time"
)

// RandUnix seeds from wall clock, tests shuffle table cases with it.
func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
