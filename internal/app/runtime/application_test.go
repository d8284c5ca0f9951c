package runtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:        config.EnvDevelopment,
		AccessFile: "testdata/missing.yaml",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            18080,
			ShutdownTimeout: time.Second,
		},
		Session: config.SessionConfig{Secret: "test", CookieName: "sid", TTL: time.Hour},
		Store:   config.StoreConfig{Driver: config.StoreMemory},
		Google: config.GoogleConfig{
			APIKey:         "test-key",
			GeminiModel:    "gemini-2.5-flash-lite",
			GeminiURL:      "http://127.0.0.1:1",
			SpeechEndpoint: "127.0.0.1:1",
			VoiceEndpoint:  "127.0.0.1:1",
		},
		RateLimit: config.RateLimitConfig{LoginPerMinute: 10, LoginBurst: 5, ChatPerMinute: 10, ChatBurst: 5},
	}
}

func quietLogger() *logger.Logger {
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)
	return log
}

func TestNewApplication_MemoryStore(t *testing.T) {
	app, err := NewApplication(context.Background(), testConfig(), quietLogger())
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	defer app.Shutdown(context.Background())

	if app.httpServer.Addr != "127.0.0.1:18080" {
		t.Errorf("Addr = %q", app.httpServer.Addr)
	}

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Two limiter sweeps and the revocation sweep.
	if n := len(app.scheduler.Entries()); n != 3 {
		t.Errorf("scheduled jobs = %d, want 3", n)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "sqlite"
	if _, err := OpenStore(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNewApplication_BadRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "not-a-url"
	if _, err := NewApplication(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for invalid REDIS_URL")
	}
}

func TestRunAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0
	app, err := NewApplication(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
