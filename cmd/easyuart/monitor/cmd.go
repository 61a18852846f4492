package monitor

import (
	"context"
	"flag"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/cmd/easyuart/subcmd"
	relay_api "github.com/temoto/easyuart/relay"
	"github.com/temoto/easyuart/state"
	"github.com/temoto/easyuart/tele"
)

var flagRemote = flag.Bool("remote", false, "monitor: subscribe to MQTT frames instead of reading UART")

var Mod = subcmd.Mod{Name: "monitor", Usage: "print decoded values from UART or MQTT (-remote)", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	// read-only observer must not compete with relay for spool and snapshot
	teleConfig := config.Tele
	config.Tele.Enabled = false
	config.Persist.Enable = false
	g.Tele = tele.NewStub()
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "monitor init")
	}
	printFn := relay_api.PrintFunc(os.Stdout, g.Registry)

	if *flagRemote {
		m, err := tele.NewMonitor(g.Log, teleConfig, g.Codec, g.Registry, printFn)
		if err != nil {
			return err
		}
		g.Log.Infof("monitor subscribe topic=%s", teleConfig.TopicFrame())
		return m.Run(ctx)
	}

	r := relay_api.New(g, relay_api.Options{OnFrame: printFn})
	g.Log.Infof("monitor device=%s", config.Uart.Device)
	return r.Run(ctx)
}
