package tele

import (
	"context"

	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	tele_config "github.com/temoto/easyuart/tele/config"
)

// Teler is telemetry uplink, relay side.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	// Frame queues raw frame bytes and decoded values for delivery.
	Frame(raw []byte, records []registry.Record)
	Error(error)
	StatModify(func(*Stat))
}

type stub struct{}

func (stub) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (stub) Close()                                                    {}
func (stub) Frame([]byte, []registry.Record)                           {}
func (stub) Error(error)                                               {}
func (stub) StatModify(func(*Stat))                                    {}

func NewStub() Teler { return stub{} }
