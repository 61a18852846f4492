package relay

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/cmd/easyuart/subcmd"
	"github.com/temoto/easyuart/registry"
	relay_api "github.com/temoto/easyuart/relay"
	"github.com/temoto/easyuart/state"
	"github.com/temoto/easyuart/wsfeed"
	"golang.org/x/sync/errgroup"
)

const statInterval = time.Minute

var Mod = subcmd.Mod{Name: "relay", Usage: "read UART frames, publish to MQTT and websocket feed", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "relay init")
	}
	defer g.Tele.Close()
	g.Log.Debugf("config=%+v", config)

	var r *relay_api.Relay
	var feed *wsfeed.Hub
	if config.Feed.Listen != "" {
		feed = wsfeed.NewHub(g.Log, func() []registry.Record { return r.Snapshot() })
	}
	r = relay_api.New(g, relay_api.Options{Feed: feed})

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return r.Run(gctx) })
	if feed != nil {
		grp.Go(func() error { return feed.Run(gctx, config.Feed.Listen) })
	}
	if g.Persist.Enabled() {
		grp.Go(func() error { return g.Persist.Run(gctx, config.SnapshotDelay()) })
	}
	grp.Go(func() error {
		statLoop(gctx, g, r, feed)
		return nil
	})

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("relay init complete, running")
	err := grp.Wait()
	subcmd.SdNotify(daemon.SdNotifyStopping)
	return err
}

func statLoop(ctx context.Context, g *state.Global, r *relay_api.Relay, feed *wsfeed.Hub) {
	tmr := time.NewTicker(statInterval)
	defer tmr.Stop()
	for {
		select {
		case <-tmr.C:
			s := r.Stats()
			g.Log.Infof("relay frames=%d errors=%d skipped=%d reopens=%d last_frame=%s",
				s.Frames, s.Errors, s.Skipped, s.Reopens, s.LastFrame.Format(time.RFC3339))
			if feed != nil {
				g.Log.Infof("relay feed clients=%d dropped=%d", feed.Len(), feed.Dropped())
			}
		case <-ctx.Done():
			return
		}
	}
}
