package tele

import (
	"sync"
)

// Low priority telemetry counters. Can be updated at any time.
// Published every stat interval, then reset.
type Stat struct { //nolint:maligned
	sync.Mutex
	Frames    uint32 `json:"frames"`
	Records   uint32 `json:"records"`
	Dropped   uint32 `json:"dropped"`
	Errors    uint32 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// Internal for tele package. Caller must hold self.Mutex.
func (self *Stat) Locked_Reset() {
	self.Frames = 0
	self.Records = 0
	self.Dropped = 0
	self.Errors = 0
	self.LastError = ""
}
