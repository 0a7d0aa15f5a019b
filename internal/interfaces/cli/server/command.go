package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/application/fleet"
	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/infrastructure/config"
	"github.com/orris-inc/soundmesh/internal/infrastructure/database"
	"github.com/orris-inc/soundmesh/internal/infrastructure/migration"
	httpRouter "github.com/orris-inc/soundmesh/internal/interfaces/http"
	fleetHandlers "github.com/orris-inc/soundmesh/internal/interfaces/http/handlers/fleet"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
	"github.com/orris-inc/soundmesh/internal/shared/version"
)

const (
	startTimeout    = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func NewCommand(flags *bootstrap.Flags) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"run"},
		Short:   "Run the fleet client and its status API",
		Long:    `Connect to every configured node, keep sessions alive across node failures and serve the status API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags, autoMigrate)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Apply pending database migrations on startup")

	return cmd
}

func run(flags *bootstrap.Flags, autoMigrate bool) error {
	cfg, log, err := bootstrap.Init(flags)
	if err != nil {
		return err
	}

	log.Infow("starting soundmesh",
		"version", version.String(),
		"mode", cfg.Server.Mode,
		"nodes", len(cfg.Nodes))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	if cfg.Database.Enabled {
		if err := database.Init(&cfg.Database); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.Close()
		db = database.Get()

		if err := handleMigrations(cfg, db, autoMigrate, log); err != nil {
			return err
		}
	}

	fl, err := bootstrap.NewFleet(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := fl.Close(); err != nil {
			log.Warnw("fleet shutdown reported errors", "error", err)
		}
	}()

	watchFleet(fl.Client, log)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	if err := fl.Client.Start(startCtx); err != nil {
		// Links that failed keep retrying on their own.
		log.Warnw("not every node connected on startup", "error", err)
	}
	cancel()

	if fl.Bus != nil {
		goroutine.SafeGo(log, "fleet-event-subscriber", func() {
			err := fl.Bus.Subscribe(ctx, func(ev fleetdomain.Event) {
				log.Infow("fleet event from another instance",
					"type", ev.Type,
					"node", ev.NodeName,
					"target", ev.TargetNode,
					"guild_id", ev.GuildID,
					"instance", ev.InstanceID)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("fleet event subscription ended", "error", err)
			}
		})
	}

	if fl.StatsSamples != nil {
		pruner := fleet.NewStatsPruner(fl.StatsSamples, cfg.Database.StatsRetention, 0, log)
		goroutine.SafeGo(log, "stats-pruner", func() {
			pruner.Run(ctx)
		})
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = startHTTPServer(cfg, fl, log)
	}

	<-ctx.Done()
	log.Infow("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("server forced to shutdown", "error", err)
		}
	}

	log.Infow("soundmesh exited gracefully")
	return nil
}

func handleMigrations(cfg *config.Config, db *gorm.DB, autoMigrate bool, log logger.Interface) error {
	manager, err := migration.NewManager(cfg.Database.Migration, cfg.Database.Driver, log)
	if err != nil {
		return err
	}

	if autoMigrate {
		return manager.Migrate(db)
	}

	if gs, ok := manager.GetStrategy().(*migration.GooseStrategy); ok {
		v, err := gs.GetVersion(db)
		if err != nil {
			log.Warnw("failed to check migration status", "error", err)
			return nil
		}
		log.Infow("current migration version", "version", v)
	}
	return nil
}

func watchFleet(c *fleet.Client, log logger.Interface) {
	c.OnError(func(ev fleet.LinkEvent[error]) {
		log.Warnw("node link error", "node", ev.Link.Node().Name(), "error", ev.Data)
	})
	c.OnFailover(func(ev fleet.FailoverEvent) {
		to := ""
		if l := ev.Player.Link(); l != nil {
			to = l.Node().Name()
		}
		log.Infow("session failed over",
			"guild_id", ev.Player.GuildID(),
			"from", ev.From.Node().Name(),
			"to", to)
	})
}

func startHTTPServer(cfg *config.Config, fl *bootstrap.Fleet, log logger.Interface) *http.Server {
	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard

	// Typed nils must not reach the handler's interface fields.
	var failovers fleetdomain.FailoverRepository
	if fl.Failovers != nil {
		failovers = fl.Failovers
	}
	var stats fleetHandlers.StatsReader
	if fl.StatsCache != nil {
		stats = fl.StatsCache
	}
	handler := fleetHandlers.NewHandler(fl.Client, failovers, stats, log)

	router := httpRouter.NewRouter(handler, log)
	router.SetupRoutes()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	goroutine.SafeGo(log, "http-server", func() {
		log.Infow("status API listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("status API stopped", "error", err)
		}
	})

	return srv
}
