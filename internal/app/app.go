// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/api"
	"github.com/JakeFAU/sellerguard/internal/clock/system"
	"github.com/JakeFAU/sellerguard/internal/config"
	"github.com/JakeFAU/sellerguard/internal/hash/sha256"
	"github.com/JakeFAU/sellerguard/internal/id/uuid"
	"github.com/JakeFAU/sellerguard/internal/logging"
	"github.com/JakeFAU/sellerguard/internal/metrics"
	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/notify"
	"github.com/JakeFAU/sellerguard/internal/notify/logmail"
	"github.com/JakeFAU/sellerguard/internal/notify/resend"
	"github.com/JakeFAU/sellerguard/internal/pipeline"
	"github.com/JakeFAU/sellerguard/internal/scheduler"
	"github.com/JakeFAU/sellerguard/internal/scrape"
	collyscrape "github.com/JakeFAU/sellerguard/internal/scrape/colly"
	"github.com/JakeFAU/sellerguard/internal/scrape/firecrawl"
	"github.com/JakeFAU/sellerguard/internal/scrape/ratelimit"
	"github.com/JakeFAU/sellerguard/internal/storage/memory"
	"github.com/JakeFAU/sellerguard/internal/storage/postgres"
	"github.com/JakeFAU/sellerguard/internal/targets"
)

// Stores groups the three repositories the pipeline needs.
type Stores struct {
	Targets   monitor.TargetStore
	Snapshots monitor.SnapshotStore
	Events    monitor.ChangeEventStore
}

// Options overrides pieces of the wiring, primarily for tests. Zero values
// build everything from Config.
type Options struct {
	Stores   *Stores
	Scraper  scrape.Attempter
	Sender   notify.Sender
	Registry *prometheus.Registry
	Clock    monitor.Clock
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     monitor.Clock
	sink      *metrics.Sink
	db        *postgres.DB
	stores    Stores
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	server    *api.Server
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetScheduler exposes the run scheduler.
func (a *App) GetScheduler() *scheduler.Scheduler { return a.scheduler }

// GetSink exposes the observability counters.
func (a *App) GetSink() *metrics.Sink { return a.sink }

// GetStores exposes the configured repositories.
func (a *App) GetStores() Stores { return a.stores }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// New creates and initializes an App from cfg. It fails fast if any
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: opts.Clock}
	if a.clock == nil {
		a.clock = system.New()
	}
	a.sink = metrics.New(opts.Registry)

	logger.Info("initializing application services",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("scrape_provider", cfg.Scrape.Provider),
		zap.String("email_provider", cfg.Email.Provider),
	)

	if err := a.initStores(ctx, opts.Stores); err != nil {
		return nil, err
	}
	if err := a.seedTargets(ctx); err != nil {
		a.Close()
		return nil, err
	}

	scraper, err := a.buildScraper(opts.Scraper)
	if err != nil {
		a.Close()
		return nil, err
	}
	notifier, err := a.buildNotifier(opts.Sender)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Targets:   a.stores.Targets,
		Snapshots: a.stores.Snapshots,
		Events:    a.stores.Events,
		Scraper:   scraper,
		Notifier:  notifier,
		Hasher:    sha256.New(),
		Clock:     a.clock,
		Logger:    logging.Component(logger, "pipeline"),
	}, pipeline.Options{
		FailFast:         cfg.Pipeline.FailFast,
		RedeliverPending: cfg.Pipeline.RedeliverPending,
		PendingLimit:     cfg.Pipeline.PendingLimit,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	a.scheduler, err = scheduler.New(scheduler.Config{
		IntervalMinutes: cfg.Schedule.IntervalMinutes,
		Run:             a.pipeline.RunOnce,
		Counters:        a.sink,
		Logger:          logging.Component(logger, "scheduler"),
		Clock:           a.clock,
		IDs:             uuid.New("run-"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	deps := api.Deps{
		Runner: a.scheduler,
		Sink:   a.sink,
		Clock:  a.clock,
		Logger: logging.Component(logger, "api"),
		Auth:   cfg.Auth,
	}
	if a.db != nil {
		deps.Ready = a.db
	}
	a.server, err = api.NewServer(deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init api: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStores(ctx context.Context, override *Stores) error {
	if override != nil {
		a.stores = *override
		return nil
	}
	switch a.cfg.DB.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, postgres.Config{DSN: a.cfg.DB.DSN, MaxConns: a.cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		a.db = db
		if a.cfg.DB.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				a.db = nil
				return fmt.Errorf("migrate database: %w", err)
			}
			a.logger.Info("database schema applied")
		}
		a.stores = Stores{Targets: db.Targets(), Snapshots: db.Snapshots(), Events: db.Events()}
	default:
		a.logger.Warn("using in-memory stores; snapshots and change events are lost on restart")
		a.stores = Stores{
			Targets:   memory.NewTargetStore(a.clock),
			Snapshots: memory.NewSnapshotStore(a.clock),
			Events:    memory.NewChangeEventStore(a.clock),
		}
	}
	return nil
}

func (a *App) seedTargets(ctx context.Context) error {
	if a.cfg.Targets.SeedFile == "" {
		return nil
	}
	list, err := targets.LoadFile(a.cfg.Targets.SeedFile)
	if err != nil {
		return fmt.Errorf("load target seed file: %w", err)
	}
	if _, err := targets.Seed(ctx, a.stores.Targets, list, logging.Component(a.logger, "targets")); err != nil {
		return fmt.Errorf("seed targets: %w", err)
	}
	return nil
}

func (a *App) buildScraper(override scrape.Attempter) (*scrape.Retrying, error) {
	attempter := override
	if attempter == nil {
		switch a.cfg.Scrape.Provider {
		case config.ScrapeFirecrawl:
			client, err := firecrawl.New(firecrawl.Config{
				APIKey:  a.cfg.Scrape.Firecrawl.APIKey,
				BaseURL: a.cfg.Scrape.Firecrawl.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("init firecrawl: %w", err)
			}
			attempter = client
		default:
			onFallback := func(host string) {
				a.logger.Warn("robots.txt timed out; fetching as allowed", zap.String("host", host))
			}
			attempter = collyscrape.New(collyscrape.Config{
				UserAgent:        a.cfg.Scrape.UserAgent,
				RespectRobots:    a.cfg.Scrape.RespectRobots,
				Timeout:          a.cfg.ScrapeTimeout(),
				OnRobotsFallback: onFallback,
			})
		}
	}
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.Scrape.RateLimitRPS,
		Burst: a.cfg.Scrape.RateLimitBurst,
	}, a.sink.ObserveRateLimitDelay)
	retrying, err := scrape.NewRetrying(
		a.sink.InstrumentAttempter(limiter.Wrap(attempter)),
		a.cfg.RetryPolicy(),
		a.cfg.ScrapeTimeout(),
		logging.Component(a.logger, "scrape"),
	)
	if err != nil {
		return nil, fmt.Errorf("init scraper: %w", err)
	}
	return retrying, nil
}

// buildNotifier returns nil when email is disabled.
func (a *App) buildNotifier(override notify.Sender) (monitor.Notifier, error) {
	sender := override
	if sender == nil {
		switch a.cfg.Email.Provider {
		case config.EmailNone:
			a.logger.Warn("email delivery disabled; change events stay pending")
			return nil, nil
		case config.EmailResend:
			s, err := resend.New(resend.Config{
				APIKey:  a.cfg.Email.Resend.APIKey,
				BaseURL: a.cfg.Email.Resend.BaseURL,
				From:    a.cfg.Email.Resend.From,
				To:      a.cfg.Email.Resend.To,
				Timeout: a.cfg.EmailTimeout(),
				Clock:   a.clock,
			})
			if err != nil {
				return nil, fmt.Errorf("init resend: %w", err)
			}
			sender = s
		default:
			sender = logmail.New(logging.Component(a.logger, "mail"), a.clock)
		}
	}
	svc, err := notify.NewService(sender, a.cfg.RetryPolicy(), logging.Component(a.logger, "notify"))
	if err != nil {
		return nil, fmt.Errorf("init notifier: %w", err)
	}
	return svc, nil
}

// RunOnce executes a single pipeline pass through the scheduler so the
// outcome is logged and counted like any other run.
func (a *App) RunOnce(ctx context.Context) (scheduler.Outcome, error) {
	out, err := a.scheduler.RunNow(ctx)
	if err != nil {
		return out, fmt.Errorf("pipeline run: %w", err)
	}
	return out, nil
}

// Serve starts the HTTP server and the scheduler and blocks until ctx is
// canceled or the server fails. On return the scheduler is stopped and
// in-flight runs have been given ShutdownTimeout to finish.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.scheduler.Start(ctx)
	if a.cfg.Schedule.RunOnStart {
		a.scheduler.RunInBackground(ctx, scheduler.TriggerStartup)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case err, ok := <-errCh:
		if ok {
			a.logger.Error("http server error", zap.Error(err))
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	a.scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		a.scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("in-flight pipeline run did not finish before shutdown timeout")
	}
	a.logger.Info("shutdown complete")
	return serveErr
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// Migrate applies the Postgres schema. It is an error to call it with the
// memory driver.
func Migrate(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.DB.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires db.driver=%s, got %q", config.DriverPostgres, cfg.DB.Driver)
	}
	db, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database schema applied")
	return nil
}
