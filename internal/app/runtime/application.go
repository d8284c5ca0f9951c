package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alfredchat/alfred/internal/app/auth"
	"github.com/alfredchat/alfred/internal/app/httpapi"
	"github.com/alfredchat/alfred/internal/app/services/chat"
	"github.com/alfredchat/alfred/internal/app/storage"
	"github.com/alfredchat/alfred/internal/app/storage/firestore"
	"github.com/alfredchat/alfred/internal/app/storage/memory"
	"github.com/alfredchat/alfred/internal/app/storage/postgres"
	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/internal/google"
	"github.com/alfredchat/alfred/internal/middleware"
	"github.com/alfredchat/alfred/pkg/logger"
)

// Idle limiter entries and expired revocations are swept on these schedules.
const (
	limiterSweepSpec    = "@every 5m"
	limiterMaxIdle      = 30 * time.Minute
	revocationSweepSpec = "@every 15m"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server
	scheduler  *cron.Cron
	store      storage.Store
	closers    []io.Closer
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})
}

// NewApplication constructs a new application instance with default wiring.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = NewLogger(cfg)
	}
	a := &Application{cfg: cfg, log: log, scheduler: cron.New(cron.WithLogger(cron.PrintfLogger(log.Named("cron"))))}

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	access, err := config.LoadAccessPolicy(cfg.AccessFile)
	if err != nil {
		log.WithError(err).Warnf("access policy %s unusable; only the default admin account can be created", cfg.AccessFile)
		access = config.DefaultAccessPolicy()
	}

	revoker, err := a.buildRevoker(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	deps := chat.Dependencies{
		Store:    store,
		Access:   access,
		Location: cfg.Location(),
		Logger:   log.Named("chat"),
	}
	if clients, err := google.NewClients(ctx, cfg.Google); err != nil {
		log.WithError(err).Error("Google AI clients unavailable; chat endpoints will answer 503")
	} else {
		a.closers = append(a.closers, clients)
		deps.Generator = clients.Gemini
		deps.Transcriber = clients.Speech
		deps.Synthesizer = clients.Voice
		log.WithField("model", clients.Gemini.Model()).Info("Google AI clients initialised")
	}
	chatSvc := chat.New(deps)

	sessions := auth.NewManager(cfg.Session, cfg.IsProduction(), revoker, log.Named("session"))

	loginLimiter := middleware.NewRateLimiter("login", cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst, cfg.IsProduction(), log)
	chatLimiter := middleware.NewRateLimiter("chat", cfg.RateLimit.ChatPerMinute, cfg.RateLimit.ChatBurst, cfg.IsProduction(), log)
	for _, rl := range []*middleware.RateLimiter{loginLimiter, chatLimiter} {
		rl := rl
		if _, err := a.scheduler.AddFunc(limiterSweepSpec, func() {
			if n := rl.Cleanup(limiterMaxIdle); n > 0 {
				log.Debugf("dropped %d idle rate limiter entries", n)
			}
		}); err != nil {
			a.closeAll()
			return nil, fmt.Errorf("schedule limiter sweep: %w", err)
		}
	}

	var auditSink httpapi.AuditSink
	if cfg.Audit.Path != "" {
		sink, err := httpapi.NewFileAuditSink(cfg.Audit.Path)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		auditSink = sink
		a.closers = append(a.closers, sink)
	}

	handler, err := httpapi.NewHandler(httpapi.Options{
		Chat:           chatSvc,
		Sessions:       sessions,
		Logger:         log.Named("http"),
		Location:       cfg.Location(),
		LoginLimiter:   loginLimiter,
		ChatLimiter:    chatLimiter,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AuditCapacity:  cfg.Audit.Capacity,
		AuditSink:      auditSink,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("build http handler: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return a, nil
}

// OpenStore returns the backend selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.Database)
	case config.StoreFirestore:
		return firestore.Open(ctx, cfg.Store.ProjectID)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *Application) buildRevoker(ctx context.Context) (auth.Revoker, error) {
	if a.cfg.Redis.URL != "" {
		r, err := auth.OpenRedisRevoker(ctx, a.cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("configure session revocation: %w", err)
		}
		a.closers = append(a.closers, r)
		return r, nil
	}

	r := auth.NewMemoryRevoker()
	if _, err := a.scheduler.AddFunc(revocationSweepSpec, func() { r.Sweep() }); err != nil {
		return nil, fmt.Errorf("schedule revocation sweep: %w", err)
	}
	return r, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	a.scheduler.Start()

	go func() {
		a.log.Infof("HTTP server listening on %s (env=%s, store=%s)", a.httpServer.Addr, a.cfg.Env, a.cfg.Store.Driver)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)

	select {
	case <-a.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}

	a.closeAll()
	return err
}

func (a *Application) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("error closing resource")
		}
	}
	a.closers = nil
}
