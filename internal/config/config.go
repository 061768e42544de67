package config

import (
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"log/slog"
)

// TenantEnforcement controls how strictly C8 enforces tenant scoping.
type TenantEnforcement string

const (
	EnforcementStrict     TenantEnforcement = "strict"
	EnforcementPermissive TenantEnforcement = "permissive"
)

// Config holds every recognized environment option from §6. It is built
// once at startup and is read-only thereafter; a SIGHUP triggers a fresh
// Load() whose result atomically replaces the process-wide pointer held
// by Store (see Store below) — no field is ever mutated in place.
type Config struct {
	DBDSN    string
	CacheURL string
	SMTPURL  string

	ScheduleInterval     time.Duration
	WebhookRatePerSecond float64
	ShutdownGrace        time.Duration
	TenantEnforcement    TenantEnforcement
}

// Load reads configuration from the environment, applying the defaults
// documented in §6.
func Load() Config {
	return Config{
		DBDSN:                os.Getenv("DB_DSN"),
		CacheURL:             os.Getenv("CACHE_URL"),
		SMTPURL:              os.Getenv("SMTP_URL"),
		ScheduleInterval:     envDuration("SCHEDULE_INTERVAL_SECONDS", DefaultScheduleInterval),
		WebhookRatePerSecond: envFloat("WEBHOOK_RATE_PER_SECOND", DefaultWebhookRatePerS),
		ShutdownGrace:        envDuration("SHUTDOWN_GRACE_SECONDS", DefaultShutdownGrace),
		TenantEnforcement:    envEnforcement("TENANT_ENFORCEMENT", EnforcementStrict),
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envEnforcement(key string, def TenantEnforcement) TenantEnforcement {
	v := os.Getenv(key)
	switch TenantEnforcement(v) {
	case EnforcementStrict, EnforcementPermissive:
		return TenantEnforcement(v)
	default:
		return def
	}
}

// Store holds the current Config behind an atomic pointer and refreshes
// it on SIGHUP, per the Design Notes: "configuration is read-only after
// startup; SIGHUP triggers a re-read that atomically swaps the config
// pointer."
type Store struct {
	ptr    atomic.Pointer[Config]
	logger *slog.Logger
}

// NewStore builds a Store from the current environment and begins
// watching for SIGHUP. The returned stop function cancels the watch.
func NewStore(logger *slog.Logger) (*Store, func()) {
	s := &Store{logger: logger.With("component", "config_store")}
	cfg := Load()
	s.ptr.Store(&cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				next := Load()
				s.ptr.Store(&next)
				s.logger.Info("configuration reloaded on SIGHUP")
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		signal.Stop(sigCh)
		close(done)
	}
	return s, stop
}

// Get returns the current configuration snapshot.
func (s *Store) Get() Config {
	return *s.ptr.Load()
}
