package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/cache"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/config"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/events"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/httpapi"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/lock"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/logging"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/service"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store/memory"
	pgstore "github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	log := logging.Module(logger, "main")

	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Stdout, cfg, os.Args[2:]); err != nil {
			log.WithError(err).Fatal("issue token")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.LockWaitTimeout)
		if err != nil {
			log.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.WithError(err).Fatal("migrate")
			}
			log.Info("schema applied")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	guard := lock.Guard(lock.NoopGuard{})
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using noop report cache and settlement guard")
		} else {
			reports = cache.NewRedisReportCache(client)
			redisGuard := lock.NewRedisGuard(client, cfg.SettlementLockTTL)
			redisGuard.OnReleaseError(func(key string, err error) {
				log.WithField("key", key).WithError(err).Warn("failed to release settlement guard")
			})
			guard = redisGuard
			closers = append(closers, client.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	publisher := events.Publisher(events.NoopPublisher{})
	if cfg.KafkaBrokers != "" {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.WithField("topic", cfg.KafkaTopic).Info("events: kafka")
	} else {
		log.Info("events: noop")
	}
	closers = append(closers, publisher.Close)

	svc := service.New(repo, service.Options{
		CommissionRate: cfg.CommissionRate,
		Reports:        reports,
		ReportTTL:      cfg.ReportCacheTTL,
		Guard:          guard,
		Publisher:      publisher,
		Logger:         logger,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("ledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if err := cfg.ValidateCommission(); err != nil {
		return err
	}
	if cfg.LockWaitTimeout <= 0 {
		return fmt.Errorf("LOCK_WAIT_TIMEOUT_MS must be positive")
	}
	return nil
}

// issueToken prints a bearer token for operators wiring a client before the
// identity service is in place.
func issueToken(out io.Writer, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("user", "", "username to embed")
	role := fs.String("role", domain.RoleSales, "admin, accountant or sales")
	if err := fs.Parse(args); err != nil {
		return err
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL)
	token, expiresAt, err := auth.IssueToken(domain.Actor{Username: *username, Role: *role})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", token)
	if err == nil {
		_, err = fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	}
	return err
}
