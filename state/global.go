package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	"github.com/temoto/easyuart/state/persist"
	"github.com/temoto/easyuart/tele"
)

type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Codec    frame.Codec
	Log      *log2.Log
	Registry *registry.Registry
	Tele     tele.Teler
	// last received values snapshot
	Persist persist.Persist
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

func NewContext(log *log2.Log, teler tele.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.SetLevel(cfg.LogLevel())

	var err error
	if g.Codec, err = cfg.Codec(); err != nil {
		return err
	}
	if g.Registry, err = cfg.Registry(); err != nil {
		return err
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if cfg.Tele.SpoolPath == "" && cfg.Persist.Root != "" {
		cfg.Tele.SpoolPath = filepath.Join(cfg.Persist.Root, "tele")
	}
	if err = g.Tele.Init(ctx, g.Log, cfg.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}

	err = g.Persist.Init("registry", g.Registry, cfg.Persist.Root, cfg.Persist.Enable, g.Log)
	if err == nil {
		err = g.Persist.Load()
	}
	if err != nil {
		g.Error(err)
		return err
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
		g.Tele.Error(err)
	}
}
