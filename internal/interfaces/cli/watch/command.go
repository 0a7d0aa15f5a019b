package watch

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orris-inc/soundmesh/internal/application/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/infrastructure/config"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/infrastructure/pubsub"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

type options struct {
	local  bool
	remote bool
	stats  bool
}

func NewCommand(flags *bootstrap.Flags) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the nodes and print fleet events as they happen",
		Long: `Connect to every configured node and print status changes, stats and
failovers. With --remote, events published by other instances over Redis are
printed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.local, "local", true, "Connect to the configured nodes")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Print events published by other instances")
	cmd.Flags().BoolVar(&opts.stats, "stats", true, "Print node stats updates")

	return cmd
}

func run(cmd *cobra.Command, flags *bootstrap.Flags, opts options) error {
	if !opts.local && !opts.remote {
		return fmt.Errorf("nothing to watch: enable --local or --remote")
	}

	cfg, log, err := bootstrap.Init(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPrinter(cmd.OutOrStdout(), fleet.OptionsFromConfig(cfg.Client).Penalty)

	if opts.remote {
		if err := watchRemote(ctx, cfg, p, log); err != nil {
			return err
		}
	}

	if opts.local {
		// A watcher observes only; it must not publish or cache on behalf
		// of the fleet.
		local := *cfg
		local.Redis.Enabled = false

		fl, err := bootstrap.NewFleet(ctx, &local, nil, log)
		if err != nil {
			return err
		}
		defer fl.Close()

		attach(fl.Client, p, opts.stats)
		if err := fl.Client.Start(ctx); err != nil {
			log.Warnw("not every node connected", "error", err)
		}
	}

	<-ctx.Done()
	return nil
}

func watchRemote(ctx context.Context, cfg *config.Config, p *printer, log logger.Interface) error {
	if !cfg.Redis.Enabled {
		return fmt.Errorf("--remote needs redis.enabled")
	}

	client, err := bootstrap.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	bus := pubsub.NewRedisFleetEventBus(client, log)

	goroutine.SafeGo(log, "watch-remote-events", func() {
		defer client.Close()
		err := bus.Subscribe(ctx, p.remote)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("remote event subscription ended", "error", err)
		}
	})
	return nil
}

func attach(c *fleet.Client, p *printer, withStats bool) {
	for _, l := range c.Links() {
		name := l.Node().Name()
		l.OnStatusChange(func(change nodelink.StatusChange) {
			p.status(name, change)
		})
	}

	c.OnDisconnect(func(ev fleet.LinkEvent[nodelink.DisconnectEvent]) {
		p.disconnect(ev.Link.Node().Name(), ev.Data)
	})
	c.OnError(func(ev fleet.LinkEvent[error]) {
		p.error(ev.Link.Node().Name(), ev.Data)
	})
	c.OnFailover(func(ev fleet.FailoverEvent) {
		to := ""
		if l := ev.Player.Link(); l != nil {
			to = l.Node().Name()
		}
		p.failover(ev.From.Node().Name(), to, ev.Player.GuildID())
	})
	if withStats {
		c.OnStats(func(ev fleet.LinkEvent[node.StatsSnapshot]) {
			p.stats(ev.Link.Node().Name(), ev.Data)
		})
	}
}
