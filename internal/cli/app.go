package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emiliopalmerini/salespulse/internal/adapters/otel"
	promexporter "github.com/emiliopalmerini/salespulse/internal/adapters/prometheus"
	"github.com/emiliopalmerini/salespulse/internal/adapters/turso"
	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/config"
	"github.com/emiliopalmerini/salespulse/internal/eventbus"
	"github.com/emiliopalmerini/salespulse/internal/extract"
	"github.com/emiliopalmerini/salespulse/internal/flatten"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/logging"
	"github.com/emiliopalmerini/salespulse/internal/pipeline"
	"github.com/emiliopalmerini/salespulse/internal/ports"
	"github.com/emiliopalmerini/salespulse/internal/reconcile"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config     *config.Config
	DB         *sql.DB
	Store      *turso.Store
	Logger     *slog.Logger
	Exporter   ports.MetricsExporter
	Bus        *eventbus.Bus
	Engine     *aggregation.Engine
	Households *household.Service
	Flattener  *flatten.Flattener
	Processor  *pipeline.Processor
	Reconciler *reconcile.Reconciler
	async      bool
}

type appOptions struct {
	// async starts a queued event bus instead of dispatching inline.
	async bool
	// registry, when set, receives the pipeline counters unless OTLP
	// export is enabled.
	registry *prometheus.Registry
}

// NewAppContext loads configuration, connects to the database and wires
// the services. Logs go to logOut.
func NewAppContext(ctx context.Context, logOut io.Writer, opts appOptions) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}

	db, err := turso.Open(ctx, cfg.Database.URL, cfg.Database.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	exporter, err := newExporter(ctx, cfg.OTel, opts.registry, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	bus := eventbus.NewSync(logger)
	if opts.async {
		bus = eventbus.New(cfg.Pipeline.EventBuffer, logger)
	}

	store := turso.NewStore(db)
	engine := aggregation.NewEngine(store, exporter, logger, cfg.Pipeline.StreakWindowDays)
	households := household.NewService(store, bus, exporter, logger)
	resolver := extract.NewResolver(nil, logger)
	flattener := flatten.New(store, households, resolver, logger)

	bus.Subscribe("household-promotion", household.NewPromotionHandler(households))
	bus.Subscribe("metrics-credit", household.NewMetricsCreditHandler(engine, logger))
	bus.Subscribe("event-log", eventbus.NewLogConsumer(logger))
	if opts.async {
		bus.Start(ctx)
	}

	return &AppContext{
		Config:     cfg,
		DB:         db,
		Store:      store,
		Logger:     logger,
		Exporter:   exporter,
		Bus:        bus,
		Engine:     engine,
		Households: households,
		Flattener:  flattener,
		Processor:  pipeline.NewProcessor(store, resolver, engine, flattener, bus, exporter, logger),
		Reconciler: reconcile.New(store, households, exporter, logger),
		async:      opts.async,
	}, nil
}

func newExporter(ctx context.Context, cfg config.OTel, reg *prometheus.Registry, logger *slog.Logger) (ports.MetricsExporter, error) {
	if cfg.Enabled {
		exp, err := otel.NewExporter(ctx, otel.Config{
			Endpoint: cfg.Endpoint,
			Enabled:  cfg.Enabled,
			Insecure: cfg.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start OTEL exporter: %w", err)
		}
		logger.Debug("exporting metrics over OTLP", slog.String("endpoint", cfg.Endpoint))
		return exp, nil
	}
	if reg != nil {
		exp, err := promexporter.NewExporter(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
		}
		return exp, nil
	}
	return otel.NewNoOpExporter(), nil
}

// Close drains the event bus, flushes the exporter and closes the database.
func (a *AppContext) Close(ctx context.Context) error {
	if a.async {
		a.Bus.Stop()
	}
	if err := a.Exporter.Close(ctx); err != nil {
		a.Logger.Warn("failed to flush metrics", slog.String("error", err.Error()))
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// openDB connects using only the database settings, for commands that do
// not need the services.
func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := turso.Open(ctx, cfg.URL, cfg.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// withApp runs fn with a synchronous AppContext.
func withApp(ctx context.Context, logOut io.Writer, fn func(app *AppContext) error) error {
	app, err := NewAppContext(ctx, logOut, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()
	return fn(app)
}
