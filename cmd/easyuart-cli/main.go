package main

import (
	"flag"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/helpers/cli"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/relay"
	"github.com/temoto/easyuart/state"
	"github.com/temoto/easyuart/tele"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := cmdline.String("config", "easyuart.hcl", "")
	devicePath := cmdline.String("device", "", "override uart.device, - writes frames to stdout")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *configPath)
	if *devicePath != "" {
		config.Uart.Device = *devicePath
	}
	// emitter side has no uplink
	config.Tele.Enabled = false
	config.Persist.Enable = false

	ctx, g := state.NewContext(log, tele.NewStub())
	g.MustInit(ctx, config)
	link, err := relay.OpenUart(g)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer link.Close()

	sh, err := newHostShell(g, link, os.Stdout)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	cli.MainLoop("easyuart-cli", sh.executor(ctx), sh.completer())
}
