package state

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/clock"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	"github.com/temoto/easyuart/scheduler"
	"github.com/temoto/easyuart/uart"
)

const (
	DefaultCapacity      = 64
	DefaultTick          = 10 * time.Millisecond
	DefaultCounterWidth  = clock.MaxWidth
	DefaultReopenDelay   = 3 * time.Second
	DefaultSnapshotDelay = time.Minute
)

// validate applies defaults and checks that every builder succeeds.
func (c *Config) validate() []error {
	if c.Link.Capacity == 0 {
		c.Link.Capacity = DefaultCapacity
		if n := len(c.Variables); n > c.Link.Capacity {
			c.Link.Capacity = n
		}
	}
	if c.Counter.WidthBits == 0 {
		c.Counter.WidthBits = DefaultCounterWidth
	}
	if c.Counter.ResolutionUs == 0 {
		c.Counter.ResolutionUs = 1
	}
	if c.Uart.Baud == 0 {
		c.Uart.Baud = uart.DefaultBaud
	}

	errs := make([]error, 0, 4)
	if _, ok := log2.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, errors.NotValidf("config log.level=%s", c.Log.Level))
	}
	if _, err := c.Codec(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Intervals(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Registry(); err != nil {
		errs = append(errs, err)
	}
	if src, err := c.Source(clock.NewHostCounter(c.Counter.WidthBits, c.Resolution())); err != nil {
		errs = append(errs, err)
	} else if tick := c.Tick(); tick >= src.WrapPeriod() {
		errs = append(errs, errors.NotValidf("config link.tick_ms=%v >= counter wrap period=%v", tick, src.WrapPeriod()))
	}
	if err := c.Tele.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (c *Config) LogLevel() log2.Level {
	l, _ := log2.ParseLevel(c.Log.Level)
	return l
}

func (c *Config) Codec() (frame.Codec, error) {
	codec, err := frame.NewCodec(c.Link.Checksum, c.Link.MaxFrame)
	return codec, errors.Annotate(err, "config link")
}

func (c *Config) Tick() time.Duration { return helpers.IntMillisecondDefault(c.Link.TickMs, DefaultTick) }

func (c *Config) Resolution() time.Duration {
	return time.Duration(c.Counter.ResolutionUs) * time.Microsecond
}

func (c *Config) Intervals() ([registry.NumClasses]time.Duration, error) {
	var result [registry.NumClasses]time.Duration
	ms := [registry.NumClasses]int{c.Rate.VeryFastMs, c.Rate.FastMs, c.Rate.SlowMs}
	for i, x := range ms {
		if x < 0 {
			return result, errors.NotValidf("config rate class=%s interval=%dms", registry.RateClass(i), x)
		}
		result[i] = helpers.IntMillisecondDefault(x, registry.DefaultIntervals[i])
	}
	return result, nil
}

// Registry builds registry with configured variables, in config order.
func (c *Config) Registry() (*registry.Registry, error) {
	r, err := registry.New(c.Link.Capacity)
	if err != nil {
		return nil, errors.Annotate(err, "config link.capacity")
	}
	errs := make([]error, 0)
	names := make(map[string]struct{}, len(c.Variables))
	for _, v := range c.Variables {
		if _, ok := names[v.Name]; ok {
			errs = append(errs, errors.NotValidf("config variable=%s duplicate name", v.Name))
			continue
		}
		names[v.Name] = struct{}{}
		if v.ID < 1 || v.ID > registry.MaxCapacity {
			errs = append(errs, errors.Annotatef(registry.ErrInvalidID, "config variable=%s id=%d", v.Name, v.ID))
			continue
		}
		t, err := registry.ParseType(v.Type)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "config variable=%s", v.Name))
			continue
		}
		class, err := registry.ParseRateClass(v.Rate)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "config variable=%s", v.Name))
			continue
		}
		if err = r.RegisterNamed(registry.VarID(v.ID), v.Name, t, class); err != nil {
			errs = append(errs, errors.Annotatef(err, "config variable=%s", v.Name))
		}
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Config) Source(counter clock.Counter) (*clock.Source, error) {
	s, err := clock.NewSource(counter, c.Counter.WidthBits, c.Resolution())
	return s, errors.Annotate(err, "config counter")
}

func (c *Config) UartConfig() uart.Config {
	return uart.Config{
		Device:      c.Uart.Device,
		Baud:        c.Uart.Baud,
		ReadTimeout: helpers.IntMillisecondDefault(c.Uart.ReadTimeoutMs, uart.DefaultReadTimeout),
	}
}

func (c *Config) ReopenDelay() time.Duration {
	return helpers.IntSecondDefault(c.Uart.ReopenSec, DefaultReopenDelay)
}

func (c *Config) SnapshotDelay() time.Duration {
	return helpers.IntSecondDefault(c.Persist.SnapshotSec, DefaultSnapshotDelay)
}

// Scheduler wires registry and time source into emitter transmitting with tx.
func (c *Config) Scheduler(reg *registry.Registry, src scheduler.Clock, tx scheduler.Transmitter, log *log2.Log) (*scheduler.Scheduler, error) {
	codec, err := c.Codec()
	if err != nil {
		return nil, err
	}
	intervals, err := c.Intervals()
	if err != nil {
		return nil, err
	}
	return scheduler.New(reg, src, tx, scheduler.Options{
		Intervals: intervals,
		Codec:     codec,
		Log:       log,
	})
}

// DriverEnable opens RS-485 direction pin, nil when uart.de_chip is not set.
func (c *Config) DriverEnable() (*uart.DriverEnable, error) {
	if c.Uart.DEChip == "" {
		return nil, nil
	}
	if c.Uart.DELine < 0 {
		return nil, errors.NotValidf("config uart.de_line=%d", c.Uart.DELine)
	}
	de, err := uart.OpenDriverEnable(c.Uart.DEChip, uint32(c.Uart.DELine))
	return de, errors.Annotate(err, "config uart.de_chip")
}
