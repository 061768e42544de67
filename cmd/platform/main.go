// Command platform runs the IIoT telemetry ingestion, rule evaluation,
// and alert distribution pipeline as a single process: ingestion
// adapters, the rule engine, the alert core, the escalation scheduler,
// and notification dispatch are all started and stopped from here
// (the teacher ran separate cmd/server and cmd/agent binaries; this
// system is one composed process instead).
//
// # Configuration
//
// Configured entirely from the environment; see internal/config for
// the full list. DB_DSN is required, everything else degrades
// gracefully when unset (no CACHE_URL => cache disabled, slow path only, no
// SMTP_URL => email dispatch fails at send time only, no per-protocol
// *_ADDR => that ingestion adapter is not started).
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iiot-platform/core/internal/alertcore"
	"github.com/iiot-platform/core/internal/cache"
	"github.com/iiot-platform/core/internal/config"
	"github.com/iiot-platform/core/internal/escalation"
	"github.com/iiot-platform/core/internal/health"
	"github.com/iiot-platform/core/internal/ingestion"
	"github.com/iiot-platform/core/internal/notify"
	"github.com/iiot-platform/core/internal/rules"
	"github.com/iiot-platform/core/internal/secrets"
	"github.com/iiot-platform/core/internal/store"

	"github.com/iiot-platform/core/db/migrate"
)

func main() {
	var (
		debug   = flag.Bool("debug", false, "Enable debug logging")
		version = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("iiot-platform v0.1.0")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfgStore, stopCfgWatch := config.NewStore(logger)
	defer stopCfgWatch()
	cfg := cfgStore.Get()

	if cfg.DBDSN == "" {
		logger.Error("DB_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.NewStoreFromURL(ctx, cfg.DBDSN)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.Ping(pingCtx)
	pingCancel()
	if err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	migCtx, migCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	err = migrate.Run(migCtx, db.Pool(), logger)
	migCancel()
	if err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	var c cache.Cache
	if cfg.CacheURL != "" {
		redisCache, err := cache.New(cfg.CacheURL, logger)
		if err != nil {
			logger.Warn("redis cache disabled - connection failed, falling back to in-process LRU", "error", err)
			c = cache.NewLRU(0)
		} else {
			c = redisCache
			logger.Info("redis cache enabled")
		}
	} else {
		logger.Info("cache disabled - CACHE_URL not set, slow path only")
		c = cache.NullCache{}
	}

	secretResolver := buildSecretResolver(logger)

	emailDispatcher, err := notify.NewEmailDispatcher(cfg.SMTPURL, emailFrom(), logger)
	if err != nil {
		logger.Error("invalid SMTP_URL", "error", err)
		os.Exit(1)
	}
	webhookDispatcher := notify.NewWebhookDispatcherWithRate(webhookAllowlist(), cfg.WebhookRatePerSecond, logger)
	pushHub := notify.NewPushHub(logger)
	hub := notify.NewHub(db, secretResolver, emailDispatcher, webhookDispatcher, pushHub, logger)

	escalationSvc := escalation.NewService(db, db, db, hub, logger)
	escalationSvc.Start(context.Background())
	defer escalationSvc.Stop()
	logger.Info("escalation scheduler started")

	alertSvc := alertcore.NewService(db, escalationSvc, hub, hub, nil, logger)

	slaSweeper := alertcore.NewSLASweeper(db, hub, config.SLASweepInterval, logger)
	slaSweeper.Start(context.Background())
	defer slaSweeper.Stop()
	logger.Info("sla sweeper started")

	telemetrySource := rules.NewCachedSource(db, c)
	ruleEngine := rules.NewEngine(db, db, telemetrySource, db, alertSvc, rules.Config{
		Interval:          cfg.ScheduleInterval,
		WorkerPoolSize:    config.DefaultWorkerPoolSize,
		AutoDisableErrors: config.RuleAutoDisableThreshold,
	}, logger)
	ruleEngine.Start(context.Background())
	defer ruleEngine.Stop()
	logger.Info("rule engine started", "interval", cfg.ScheduleInterval)

	adapters := buildIngestionAdapters(db, c, logger)
	for _, a := range adapters {
		a.Start(context.Background())
		defer a.Stop()
	}
	logger.Info("ingestion adapters started", "count", len(adapters))

	reporter := health.NewReporter(db, cachePinger(c))
	healthSrv := startHealthServer(reporter, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down", "grace_period", cfg.ShutdownGrace)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

// emailFrom returns the From address for outbound alert email.
func emailFrom() string {
	if v := os.Getenv("SMTP_FROM"); v != "" {
		return v
	}
	return "alerts@iiot-platform.local"
}

// webhookAllowlist returns the hosts permitted to receive plain-HTTP
// or private-address webhooks, per §4.7's narrow test-receiver
// exception.
func webhookAllowlist() []string {
	v := os.Getenv("WEBHOOK_PRIVATE_ALLOWLIST")
	if v == "" {
		return nil
	}
	var hosts []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				hosts = append(hosts, v[start:i])
			}
			start = i + 1
		}
	}
	return hosts
}

// buildSecretResolver wires the 1Password Connect-backed resolver when
// configured, falling back to the inline-secret StaticResolver
// otherwise (§4.7's optional vault integration).
func buildSecretResolver(logger *slog.Logger) secrets.Resolver {
	host := os.Getenv("OP_CONNECT_HOST")
	token := os.Getenv("OP_CONNECT_TOKEN")
	vault := os.Getenv("OP_VAULT_ID")
	if host == "" || token == "" || vault == "" {
		logger.Info("1Password secrets backend not configured, using inline webhook secrets")
		return secrets.StaticResolver{}
	}
	resolver, err := secrets.NewOnePasswordResolver(secrets.OnePasswordConfig{
		Host: host, Token: token, VaultID: vault,
	}, logger)
	if err != nil {
		logger.Warn("1Password resolver init failed, using inline webhook secrets", "error", err)
		return secrets.StaticResolver{}
	}
	logger.Info("1Password secrets backend enabled")
	return resolver
}

// buildIngestionAdapters constructs one ingestion.Adapter per
// configured protocol (§4.3): MQTT, CoAP, AMQP, OPC-UA. A protocol is
// skipped entirely when its listen address is unset, so a deployment
// only runs the transports it actually needs.
func buildIngestionAdapters(db *store.Store, c cache.Cache, logger *slog.Logger) []*ingestion.Adapter {
	var out []*ingestion.Adapter
	dl := ingestion.NewLogSink(logger)
	parser := ingestion.JSONParser{}
	validator := ingestion.Validator{}
	icfg := ingestion.DefaultConfig()

	if addr := os.Getenv("MQTT_ADDR"); addr != "" {
		creds := ingestion.NewBcryptCredentials(nil)
		t := ingestion.NewMQTTTransport(addr, creds)
		out = append(out, ingestion.NewAdapter(t, db, parser, validator, db, c, dl, icfg, logger))
	}
	if addr := os.Getenv("COAP_ADDR"); addr != "" {
		t := ingestion.NewCoAPTransport(addr, nil)
		out = append(out, ingestion.NewAdapter(t, db, parser, validator, db, c, dl, icfg, logger))
	}
	if addr := os.Getenv("AMQP_ADDR"); addr != "" {
		creds := ingestion.NewBcryptCredentials(nil)
		t := ingestion.NewAMQPTransport(addr, creds)
		out = append(out, ingestion.NewAdapter(t, db, parser, validator, db, c, dl, icfg, logger))
	}
	if addr := os.Getenv("OPCUA_ADDR"); addr != "" {
		certFile := os.Getenv("OPCUA_CERT_FILE")
		keyFile := os.Getenv("OPCUA_KEY_FILE")
		if certFile == "" || keyFile == "" {
			logger.Warn("OPCUA_ADDR set but OPCUA_CERT_FILE/OPCUA_KEY_FILE missing, skipping opcua adapter")
		} else {
			cert, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				logger.Warn("opcua adapter disabled - failed to load TLS certificate", "error", err)
			} else {
				tlsConf := &tls.Config{
					Certificates: []tls.Certificate{cert},
					ClientAuth:   tls.RequireAnyClientCert,
				}
				t := ingestion.NewOPCUATransport(addr, tlsConf)
				out = append(out, ingestion.NewAdapter(t, db, parser, validator, db, c, dl, icfg, logger))
			}
		}
	}
	return out
}

// cachePinger narrows c to the health.Pinger health checks actually
// need, reporting the cache as unavailable (rather than panicking) when
// Redis is not in use (the LRU fallback or NullCache), since neither has
// anything to ping.
func cachePinger(c cache.Cache) health.Pinger {
	if rc, ok := c.(*cache.RedisCache); ok {
		return rc
	}
	return nil
}

// startHealthServer exposes /healthz (liveness) and /readyz (readiness,
// including dependency pings) for an orchestrator's probes — the one
// piece of HTTP surface this process owns; CRUD on devices/users/rules
// is out of scope (§ Non-goals).
func startHealthServer(reporter *health.Reporter, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if reporter.Live(r.Context()) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		rep := reporter.Ready(r.Context())
		status := http.StatusOK
		if rep.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"database_ok":%v,"cache_ok":%v,"cache_enabled":%v}`,
			rep.Status, rep.DatabaseOK, rep.CacheOK, rep.CacheEnabled)
	})

	port := os.Getenv("HEALTH_PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		logger.Info("health server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()
	return srv
}
