package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/clock"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	"github.com/temoto/easyuart/scheduler"
	"github.com/temoto/easyuart/state"
)

const usage = `syntax: one command per line
(variables)
- vars                          list registered variables
- register NAME ID TYPE RATE    TYPE: int32 float32 bool enum32, RATE: very_fast fast slow
- set NAME|ID VALUE             submit value, sent on next due tick
- clear RATE                    drop pending values of rate class

(link)
- tick                          flush due rate classes once
- run DURATION                  tick every link.tick_ms for DURATION, e.g. run 5s
- raw XX...                     transmit raw bytes from hex
- sleep DURATION                pause
- stats                         scheduler counters

(meta)
- log=yes  enable debug logging
- log=no   disable debug logging
- help
`

type shell struct {
	g     *state.Global
	out   io.Writer
	src   scheduler.Clock
	tx    scheduler.Transmitter
	sched *scheduler.Scheduler
}

func newShell(g *state.Global, src scheduler.Clock, tx scheduler.Transmitter, out io.Writer) (*shell, error) {
	sched, err := g.Config.Scheduler(g.Registry, src, tx, g.Log)
	if err != nil {
		return nil, err
	}
	return &shell{g: g, out: out, src: src, tx: tx, sched: sched}, nil
}

func newHostShell(g *state.Global, tx scheduler.Transmitter, out io.Writer) (*shell, error) {
	src, err := g.Config.Source(clock.NewHostCounter(g.Config.Counter.WidthBits, g.Config.Resolution()))
	if err != nil {
		return nil, err
	}
	return newShell(g, src, tx, out)
}

func (self *shell) executor(ctx context.Context) func(string) {
	return func(line string) {
		if err := self.Exec(ctx, line); err != nil {
			self.g.Log.Errorf(errors.ErrorStack(err))
		}
	}
}

func (self *shell) completer() prompt.Completer {
	suggests := []prompt.Suggest{
		{Text: "vars", Description: "list registered variables"},
		{Text: "register", Description: "NAME ID TYPE RATE"},
		{Text: "set", Description: "NAME|ID VALUE"},
		{Text: "clear", Description: "RATE"},
		{Text: "tick", Description: "flush due rate classes"},
		{Text: "run", Description: "DURATION"},
		{Text: "raw", Description: "transmit hex bytes"},
		{Text: "sleep", Description: "DURATION"},
		{Text: "stats", Description: "scheduler counters"},
		{Text: "log=yes", Description: "enable debug logging"},
		{Text: "log=no", Description: "disable debug logging"},
		{Text: "help"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		word := d.GetWordBeforeCursor()
		if strings.HasPrefix(d.TextBeforeCursor(), "set ") {
			vars := make([]prompt.Suggest, 0, self.g.Registry.Len())
			_ = self.g.Registry.Each(func(v registry.Var) error {
				vars = append(vars, prompt.Suggest{Text: v.Name, Description: v.Type.String() + " " + v.Class.String()})
				return nil
			})
			return prompt.FilterHasPrefix(vars, word, true)
		}
		return prompt.FilterFuzzy(suggests, word, true)
	}
}

func (self *shell) Exec(ctx context.Context, line string) error {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	args := words[1:]
	switch words[0] {
	case "help":
		fmt.Fprint(self.out, usage)
		return nil

	case "vars":
		return self.g.Registry.Each(func(v registry.Var) error {
			b, dirty, err := self.g.Registry.Value(v.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(self.out, "%3d %-16s %-7s %-9s %s dirty=%t\n", v.ID, v.Name, v.Type, v.Class, v.Type.Format(b), dirty)
			return nil
		})

	case "register":
		if len(args) != 4 {
			return errors.NotValidf("register expects NAME ID TYPE RATE")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		t, err := registry.ParseType(args[2])
		if err != nil {
			return err
		}
		class, err := registry.ParseRateClass(args[3])
		if err != nil {
			return err
		}
		return self.g.Registry.RegisterNamed(id, args[0], t, class)

	case "set":
		if len(args) != 2 {
			return errors.NotValidf("set expects NAME|ID VALUE")
		}
		v, err := self.lookup(args[0])
		if err != nil {
			return err
		}
		return self.g.Registry.SubmitString(v.ID, args[1])

	case "clear":
		if len(args) != 1 {
			return errors.NotValidf("clear expects RATE")
		}
		class, err := registry.ParseRateClass(args[0])
		if err != nil {
			return err
		}
		self.g.Registry.Queue(class).Clear()
		return nil

	case "tick":
		return self.sched.Tick()

	case "run":
		d, err := parseDuration(args)
		if err != nil {
			return err
		}
		runCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return self.sched.Run(runCtx, self.g.Config.Tick())

	case "raw":
		b, err := parseHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		if !self.tx.Transmit(b) {
			return errors.Errorf("raw transmit failed")
		}
		return nil

	case "sleep":
		d, err := parseDuration(args)
		if err != nil {
			return err
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
		return nil

	case "stats":
		s := self.sched.Stats()
		fmt.Fprintf(self.out, "frames=%d bytes=%d empty=%d transmit_failures=%d encode_errors=%d\n",
			s.Frames, s.Bytes, s.Empty, s.TransmitFailures, s.EncodeErrors)
		for c := registry.VeryFast; int(c) < registry.NumClasses; c++ {
			fmt.Fprintf(self.out, "class=%s interval=%v pending=%d state=%s\n",
				c, self.sched.Interval(c), self.g.Registry.Queue(c).Dirty(), self.sched.State(c))
		}
		return nil

	case "log=yes":
		self.g.Log.SetLevel(log2.LDebug)
		return nil
	case "log=no":
		self.g.Log.SetLevel(log2.LError)
		return nil
	}
	return errors.NotSupportedf("command=%s", words[0])
}

func (self *shell) lookup(s string) (registry.Var, error) {
	if id, err := parseID(s); err == nil {
		if v, ok := self.g.Registry.Lookup(id); ok {
			return v, nil
		}
		return registry.Var{}, errors.Annotatef(registry.ErrUnknownID, "id=%d", id)
	}
	if v, ok := self.g.Registry.LookupName(s); ok {
		return v, nil
	}
	return registry.Var{}, errors.NotFoundf("variable=%s", s)
}

func parseID(s string) (registry.VarID, error) {
	x, err := strconv.ParseUint(s, 0, 8)
	if err != nil || x == 0 {
		return 0, errors.Annotatef(registry.ErrInvalidID, "id=%s", s)
	}
	return registry.VarID(x), nil
}

func parseDuration(args []string) (time.Duration, error) {
	if len(args) != 1 {
		return 0, errors.NotValidf("expected DURATION")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, errors.Annotate(err, "duration")
	}
	return d, nil
}

func parseHex(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.NotValidf("hex empty")
	}
	b, err := hex.DecodeString(s)
	return b, errors.Annotate(err, "raw hex")
}
