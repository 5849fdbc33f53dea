package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"booking-bot/internal/boltdb"
	"booking-bot/internal/bot"
	"booking-bot/internal/config"
	"booking-bot/internal/database"
	"booking-bot/internal/flows"
	"booking-bot/internal/handlers"
	"booking-bot/internal/metrics"
	"booking-bot/internal/ops"
	"booking-bot/internal/reminders"
	"booking-bot/internal/router"
	"booking-bot/internal/session"
	"booking-bot/internal/stats"
	"booking-bot/internal/store"
	"booking-bot/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	zapLogger, err := logger.New(&cfg.Logger, logger.DefaultServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		zap.L().Fatal("Bot stopped with error", zap.Error(err))
	}
	zap.L().Info("Bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	backend, health, closer, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closer.Close()

	s := store.WithRetry(backend, store.RetryPolicy{
		Retries: cfg.RetryAttempts,
		Base:    cfg.RetryBase,
		Max:     cfg.RetryMax,
	}, log)

	if err := config.EnsureOwner(ctx, s, cfg.OwnerID); err != nil {
		return err
	}
	if cfg.CatalogFile != "" {
		catalog, err := config.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}
		n, err := catalog.Seed(ctx, s, log)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("Seeded service catalog", zap.Int("services", n))
		}
	}

	m := metrics.New()
	sessions := session.NewMemory()
	validator := flows.NewLayoutValidator(cfg.DateLayout, cfg.TimeLayout, cfg.RequireFutureDate)

	r := router.New(router.Config{
		Store:            s,
		Sessions:         sessions,
		Handlers:         handlers.New(s, stats.New(s), log),
		Booking:          flows.NewBooking(s, validator, log),
		ServiceAuthoring: flows.NewServiceAuthoring(s, log),
		RoleAssignment:   flows.NewRoleAssignment(s, log),
		Logger:           log,
	})

	b, err := bot.New(cfg.BotToken, cfg.BotAPIEndpoint, log)
	if err != nil {
		return err
	}

	d := router.NewDispatcher(r, b, router.DispatcherConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		RateLimit: rate.Limit(cfg.RateLimit),
		Burst:     cfg.RateLimitBurst,
	}, log, m)

	sched := reminders.NewScheduler(time.Local, log, m)
	digest := &reminders.DailyDigest{Store: s, Sender: b, DateLayout: cfg.DateLayout, Log: log}
	if err := sched.Add("daily_digest", cfg.ReminderSchedule, digest.Run); err != nil {
		return err
	}
	sweep := &reminders.Sweep{Sessions: sessions, TTL: cfg.SessionTTL, Limiters: d, Metrics: m, Log: log}
	if err := sched.Add("sweep", cfg.SweepSchedule, sweep.Run); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		once sync.Once
		ferr error
	)
	// Any component returning brings the others down with it.
	fail := func(err error) {
		if err != nil {
			once.Do(func() { ferr = err })
		}
		cancel()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		fail(d.Run(ctx))
	}()
	go func() {
		defer wg.Done()
		if cfg.MetricsAddr == "" {
			return
		}
		fail(ops.Serve(ctx, cfg.MetricsAddr, ops.NewRouter(m.Handler(), health), log))
	}()
	go func() {
		defer wg.Done()
		fail(b.Run(ctx, d))
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	wg.Wait()
	return ferr
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, ops.HealthFunc, io.Closer, error) {
	switch cfg.Storage {
	case config.StorageBolt:
		bs, err := boltdb.Open(cfg.BoltPath, 5*time.Second)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("Using bolt store", zap.String(logger.FieldBackend, cfg.Storage), zap.String("path", cfg.BoltPath))
		return bs, listServices(bs), bs, nil

	case config.StoragePostgres:
		db, err := database.New(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("Running database migrations...")
		if err := db.RunMigrations(); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return db, db.PingContext, db, nil

	case config.StorageMemory:
		log.Warn("Using in-memory store, data is lost on restart")
		ms := store.NewMemory()
		return ms, listServices(ms), closerFunc(func() error { return nil }), nil
	}
	return nil, nil, nil, errors.New("unknown storage backend: " + cfg.Storage)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func listServices(s store.Store) ops.HealthFunc {
	return func(ctx context.Context) error {
		_, err := s.ListServices(ctx)
		return err
	}
}
