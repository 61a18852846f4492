package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/cmd/easyuart/monitor"
	"github.com/temoto/easyuart/cmd/easyuart/relay"
	"github.com/temoto/easyuart/cmd/easyuart/subcmd"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/state"
	"github.com/temoto/easyuart/tele"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	relay.Mod,
	monitor.Mod,
}

func main() {
	flagConfig := flag.String("config", "easyuart.hcl", "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] command\n\nCommands:\n%s\n\nOptions:\n", os.Args[0], subcmd.Usage(modules))
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFlags(log2.LInteractiveFlags)
	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)

	ctx, g := state.NewContext(log, new(tele.Tele))
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigch:
			log.Infof("signal=%v stopping", sig)
			g.Alive.Stop()
		case <-g.Alive.StopChan():
		}
		cancel()
	}()

	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	g.Alive.Stop()
	g.Alive.Wait()
}
