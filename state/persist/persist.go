// Package persist binds encoding.Binary{Marshaler,Unmarshaler} state, such as
// registry last-received cache, to crash-safe file storage.
package persist

import (
	"context"
	"encoding"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/extremofile"
)

type Stater interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Restored with losses, e.g. snapshot records unknown to current config.
type nonCritical interface {
	NonCritical() bool
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Binds State{Load,Store} to persistent storage
type Persist struct {
	sync.Mutex
	log     *log2.Log
	tag     string
	target  Stater
	storage storage
}

func (p *Persist) Init(tag string, target Stater, root string, enabled bool, log *log2.Log) error {
	p.tag = tag
	p.log = log
	if !enabled {
		p.log.Debugf("persist %s disabled", p.tag)
		return nil
	}
	if root == "" {
		return errors.Errorf("persist %s enabled but root=empty", p.tag)
	}
	if target == nil {
		panic("code error persist target nil")
	}
	p.target = target
	p.storage = extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, tag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return nil
}

func (p *Persist) Enabled() bool { return p.storage != nil }

// Load restores target from storage. Missing storage is not an error.
// Non-critical storage error (main copy broken, backup used) is only logged.
func (p *Persist) Load() error {
	if p.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	tbegin := time.Now()
	b, err := p.storage.Read()
	duration := time.Since(tbegin)
	p.log.Debugf("persist %s storage.read duration=%v", p.tag, duration)
	if b != nil {
		if err != nil {
			p.log.Errorf("persist %s ignore non-critical storage err=%v", p.tag, err)
		}
		err = p.target.UnmarshalBinary(b)
		if nc, ok := errors.Cause(err).(nonCritical); ok && nc.NonCritical() {
			p.log.Errorf("persist %s restored partially err=%v", p.tag, err)
			err = nil
		}
	} else if err != nil && extremofile.IsCorrupt(err) {
		p.log.Errorf("persist %s storage corrupt, starting empty err=%v", p.tag, err)
		err = nil
	}
	return errors.Annotatef(err, "persist %s Load", p.tag)
}

func (p *Persist) Store() error {
	if p.tag == "" {
		panic("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	b, err := p.target.MarshalBinary()
	if err == nil {
		tbegin := time.Now()
		_, err = p.storage.Write(b)
		duration := time.Since(tbegin)
		p.log.Debugf("persist %s storage.write duration=%v", p.tag, duration)
	}
	return errors.Annotatef(err, "persist %s Store", p.tag)
}

// Run stores snapshot every interval and once more when ctx is done.
func (p *Persist) Run(ctx context.Context, interval time.Duration) error {
	if p.storage == nil {
		return nil
	}
	if interval <= 0 {
		return errors.NotValidf("persist %s interval=%v", p.tag, interval)
	}
	tmr := time.NewTicker(interval)
	defer tmr.Stop()
	for {
		select {
		case <-tmr.C:
			if err := p.Store(); err != nil {
				p.log.Error(err)
			}
		case <-ctx.Done():
			return p.Store()
		}
	}
}
