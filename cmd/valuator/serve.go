package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/valuation/internal/activity"
	"github.com/matthewbaird/valuation/internal/config"
	"github.com/matthewbaird/valuation/internal/database"
	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/event"
	"github.com/matthewbaird/valuation/internal/eventbus"
	"github.com/matthewbaird/valuation/internal/handler"
	"github.com/matthewbaird/valuation/internal/logging"
	"github.com/matthewbaird/valuation/internal/seed"
	"github.com/matthewbaird/valuation/internal/server"
	"github.com/matthewbaird/valuation/internal/session"
	"github.com/matthewbaird/valuation/internal/store"
	"github.com/matthewbaird/valuation/internal/worker"
)

var (
	serveMemory bool
	serveSeed   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "keep everything in memory instead of SQLite")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "load demo valuations before serving")
}

// stores are the three persistence backends the service runs on.
type stores struct {
	valuations store.Store
	drafts     draft.Store
	activity   activity.Store
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, func(), error) {
	if serveMemory || cfg.Database.DSN == "" {
		log.Info("using in-memory stores")
		return stores{
			valuations: store.NewMemoryStore(),
			drafts:     draft.NewMemoryStore(),
			activity:   activity.NewMemoryStore(),
		}, func() {}, nil
	}

	db, err := database.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return stores{}, nil, err
	}
	log.Info("database migrated successfully")
	return sqlStores(db), func() { db.Close() }, nil
}

func sqlStores(db *sqlx.DB) stores {
	return stores{
		valuations: store.NewSQLStore(db),
		drafts:     draft.NewSQLStore(db),
		activity:   activity.NewSQLStore(db),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	if serveSeed {
		if _, err := seed.Valuations(ctx, st.valuations, log); err != nil {
			return err
		}
	}

	bus := eventbus.New(cfg.EventBus.BufferSize, log)
	stats := eventbus.NewStatsConsumer()
	bus.Subscribe("log", eventbus.NewLogConsumer(log))
	bus.Subscribe("stats", stats)

	recorder := event.NewActivityRecorder(st.activity)
	recorder.SetPublisher(bus)
	handler.SetRecorder(recorder)

	sessions := session.NewManager(&session.Backend{
		Valuations: st.valuations,
		Drafts:     st.drafts,
		Recorder:   recorder,
		Log:        log,
	}, cfg.SessionMaxAge(), cfg.SessionIdleTimeout())

	sweeper := worker.NewDraftSweeper(st.drafts, cfg.DraftTTL(), cfg.DraftSweepInterval(), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return sessions.Run(gctx, cfg.SessionIdleTimeout()/2) })
	g.Go(func() error {
		return server.Run(gctx, server.Config{
			Port:            cfg.Server.Port,
			ShutdownTimeout: cfg.ShutdownTimeout(),
			Deps: server.Deps{
				Valuations: st.valuations,
				Drafts:     st.drafts,
				Activity:   st.activity,
				Sessions:   sessions,
				Stats:      stats,
				Log:        log,
			},
		})
	})
	return g.Wait()
}
