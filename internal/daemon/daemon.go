package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/breathe-app/breathe/internal/api"
	"github.com/breathe-app/breathe/internal/app/engagement"
	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/health"
	"github.com/breathe-app/breathe/internal/infra/firestore"
	_ "github.com/breathe-app/breathe/internal/infra/metrics" // Register Prometheus metrics
	"github.com/breathe-app/breathe/internal/infra/postgres"
	"github.com/breathe-app/breathe/internal/infra/push"
	"github.com/breathe-app/breathe/internal/infra/sqlite"
	"github.com/breathe-app/breathe/internal/logger"
)

// Daemon is the Breathe runtime. It wires together all services.
type Daemon struct {
	Config Config
	Store  domain.Store
	Engine *engagement.Engine
	Server *api.Server
	Health *health.Checker
	Push   *push.RedisPublisher // nil when push is not configured
	Retry  *push.RetryQueue     // wraps Push; nil with it
	cancel context.CancelFunc
	closed sync.Once
}

// New creates and initializes a Daemon from the config file.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	if err := logger.Init(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	d := &Daemon{Config: cfg, Store: store}

	var pusher domain.Pusher
	if cfg.Push.RedisURL != "" {
		pub, err := push.NewRedisPublisher(cfg.Push.RedisURL, cfg.Push.Stream, cfg.Push.MaxLen)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("push publisher: %w", err)
		}
		retryCfg := push.DefaultRetryConfig()
		retryCfg.MaxRetries = cfg.Push.MaxRetries
		d.Push = pub
		d.Retry = push.NewRetryQueue(pub, retryCfg)
		pusher = d.Retry
	}

	d.Engine = engagement.New(store, engagement.Options{
		Location:   loc,
		RankWindow: cfg.Engagement.RankWindow,
		Policy:     cfg.Policy(),
		Currency:   cfg.Engagement.Currency,
		Pusher:     pusher,
		OutboxSize: cfg.Engagement.OutboxSize,
	})

	var pushProbe health.Pinger
	if d.Push != nil {
		pushProbe = d.Push
	}
	d.Health = health.NewChecker(store, pushProbe, cfg.Store.Dir).
		WithInterval(parseDuration(cfg.Telemetry.HealthInterval, 60*time.Second))

	d.Server = api.NewServer(d.Engine)
	d.Server.SetHealthChecker(d.Health)
	if d.Retry != nil {
		d.Server.SetPushRetries(d.Retry)
	}
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	logger.Info("daemon initialized", "component", "daemon",
		"backend", cfg.Store.Backend, "push", d.Push != nil, "timezone", loc.String())
	return d, nil
}

// OpenStore opens the configured backend.
func OpenStore(ctx context.Context, cfg StoreConfig) (domain.Store, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		dir := cfg.Dir
		if dir == "" {
			dir = breatheHome()
		}
		db, err := sqlite.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case BackendPostgres:
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case BackendFirestore:
		fs, err := firestore.Open(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, cfg.Backend)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	if d.Retry != nil {
		go d.Retry.Run(ctx)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		d.Close()
	}()

	fmt.Printf("Breathe serving on http://%s\n", addr)
	fmt.Printf("  Store: %s\n", d.Config.Store.Backend)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}
	logger.Info("http server listening", "component", "daemon", "addr", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		cancel()
		d.Close()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

// Close shuts down all daemon resources. Safe to call more than once.
func (d *Daemon) Close() {
	d.closed.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		if d.Push != nil {
			_ = d.Push.Close()
		}
		if d.Store != nil {
			_ = d.Store.Close()
		}
	})
}
