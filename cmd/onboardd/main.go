// Command onboardd serves the onboarding HTTP API.
//
// Configuration comes from an optional YAML file (-config) overridden by
// ONBOARD_* environment variables. Sessions live in Redis or SQLite; the
// rate limiter always uses Redis when enabled. With the SQLite store a
// background sweep clears expired codes and purges abandoned sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/httpapi"
	"github.com/MrEthical07/goOnboard/internal/appconfig"
	"github.com/MrEthical07/goOnboard/mail"
	"github.com/MrEthical07/goOnboard/metrics/export/prometheus"
	"github.com/MrEthical07/goOnboard/session/sqlite"
	"github.com/MrEthical07/goOnboard/ticket"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", os.Getenv("ONBOARD_CONFIG"), "path to YAML config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := setupLogging(log, cfg.Log); err != nil {
		log.WithError(err).Fatal("invalid log configuration")
	}

	if err := run(log, cfg); err != nil {
		log.WithError(err).Fatal("onboardd stopped")
	}
	log.Info("server exited gracefully")
}

func setupLogging(log *logrus.Logger, cfg appconfig.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func run(log *logrus.Logger, cfg appconfig.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb redis.UniversalClient
	if cfg.Store.Backend == "redis" || cfg.RateLimit.Enabled {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	mailer, err := newMailer(log, cfg.Mail)
	if err != nil {
		return err
	}

	builder := goOnboard.New().
		WithConfig(cfg.Engine()).
		WithMailer(mailer).
		WithLogger(log)
	if cfg.Audit.Enabled {
		sink, closeSink, err := newAuditSink(log, cfg.Audit)
		if err != nil {
			return err
		}
		defer closeSink()
		builder = builder.WithAuditSink(sink)
	}
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}

	var sweeper *sqlite.Store
	if cfg.Store.Backend == "sqlite" {
		store, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		builder = builder.WithStore(store)
		sweeper = store
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	engineCfg := engine.Config()
	for _, w := range engineCfg.Lint() {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	tickets, err := ticket.NewManager(ticket.Config{
		TTL:           cfg.Ticket.TTL,
		SigningMethod: ticket.MethodHS256,
		PrivateKey:    []byte(cfg.Ticket.Secret),
		Issuer:        cfg.Ticket.Issuer,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	opts := httpapi.Options{
		Service:        engine,
		Tickets:        tickets,
		Logger:         log,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = prometheus.NewExporter(engine).Handler()
	}
	router, err := httpapi.NewRouter(opts)
	if err != nil {
		return err
	}

	if sweeper != nil {
		go sweep(ctx, log, sweeper, cfg.Store)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "store": cfg.Store.Backend}).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newMailer(log logrus.FieldLogger, cfg appconfig.MailConfig) (goOnboard.Mailer, error) {
	if cfg.Transport == "smtp" {
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			Subject:  cfg.Subject,
		})
	}
	log.Warn("log mail transport enabled; verification codes are written to the log")
	return mail.NewLogMailer(log), nil
}

// newAuditSink writes audit events as JSON lines to cfg.Path, or to the
// log when no path is set.
func newAuditSink(log logrus.FieldLogger, cfg appconfig.AuditConfig) (goOnboard.AuditSink, func(), error) {
	if cfg.Path == "" {
		return goOnboard.NewLogSink(log.WithField("component", "audit")), func() {}, nil
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return goOnboard.NewJSONWriterSink(f), func() { _ = f.Close() }, nil
}

// sweep clears expired codes and purges abandoned sessions until ctx ends.
func sweep(ctx context.Context, log logrus.FieldLogger, store *sqlite.Store, cfg appconfig.StoreConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cleared, err := store.SweepExpired(ctx, now)
			if err != nil {
				log.WithError(err).Warn("expired code sweep failed")
				continue
			}
			purged, err := store.PurgeAbandoned(ctx, now.Add(-cfg.AbandonAfter))
			if err != nil {
				log.WithError(err).Warn("abandoned session purge failed")
				continue
			}
			if cleared > 0 || purged > 0 {
				log.WithFields(logrus.Fields{"codes_cleared": cleared, "sessions_purged": purged}).Info("sweep complete")
			}
		}
	}
}
