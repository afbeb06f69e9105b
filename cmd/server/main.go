// Command server runs the fleet access HTTP API.
//
// @title           Fleet Access API
// @version         1.0
// @description     Identity and access management for the fleet management platform.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	_ "github.com/vamosfrotas/fleet-access/docs"
	"github.com/vamosfrotas/fleet-access/internal/api"
	"github.com/vamosfrotas/fleet-access/internal/api/handler"
	"github.com/vamosfrotas/fleet-access/internal/api/session"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
	"github.com/vamosfrotas/fleet-access/internal/core/service"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/config"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/db/file"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/db/mongo"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/db/redis"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/mail"
	"github.com/vamosfrotas/fleet-access/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "fleet-access",
	})

	checks := map[string]handler.Check{}
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	// Redis backs the reset throttle whenever it is reachable, and the store
	// when STORE_DRIVER=redis.
	var rdb *goredis.Client
	if cfg.Store.Driver == config.StoreRedis || cfg.Password.ResetThrottle > 0 {
		rdb, err = redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		switch {
		case err == nil:
			cleanups = append(cleanups, func() { _ = rdb.Close() })
			checks["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, rdb) }
		case cfg.Store.Driver == config.StoreRedis:
			return err
		default:
			log.Warn().Err(err).Msg("redis unavailable, reset throttling disabled")
			rdb = nil
		}
	}

	store, err := openStore(ctx, cfg, rdb, checks, &cleanups)
	if err != nil {
		return err
	}
	checks["store"] = func(ctx context.Context) error {
		_, err := store.Load(ctx)
		return err
	}

	notifier, err := openNotifier(cfg, log, &cleanups)
	if err != nil {
		return err
	}

	settings := cfg.Access()
	if err := service.NewSeeder(store, settings, logger.For("bootstrap")).Run(ctx, time.Now()); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	access, err := service.NewAccessService(store, notifier, settings, logger.For("access"))
	if err != nil {
		return err
	}
	if rdb != nil && cfg.Password.ResetThrottle > 0 {
		access.WithResetThrottle(redis.NewResetThrottle(rdb, cfg.Password.ResetThrottle))
	}

	e := api.NewRouter(api.Deps{
		Access:   access,
		Sessions: session.NewManager(cfg.JWTSecret, cfg.SessionTTL),
		Checks:   checks,
		Log:      logger.For("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store.Driver).Str("mail", cfg.Mail.Driver).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, rdb *goredis.Client, checks map[string]handler.Check, cleanups *[]func()) (ports.RecordStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		*cleanups = append(*cleanups, func() { _ = client.Disconnect(context.Background()) })
		checks["mongo"] = func(ctx context.Context) error { return mongo.Ping(ctx, client) }
		return mongo.NewRecordStore(db), nil
	case config.StoreRedis:
		return redis.NewRecordStore(rdb, ""), nil
	default:
		return file.NewRecordStore(cfg.Store.Path), nil
	}
}

func openNotifier(cfg *config.Config, log zerolog.Logger, cleanups *[]func()) (ports.Notifier, error) {
	switch cfg.Mail.Driver {
	case config.MailSMTP:
		return mail.NewSMTPGateway(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.SMTPFrom,
		}), nil
	case config.MailAMQP:
		conn, err := amqp.Dial(cfg.Mail.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		pub, err := mail.NewPublisher(conn, cfg.Mail.Queue)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		*cleanups = append(*cleanups, func() {
			_ = pub.Close()
			_ = conn.Close()
		})
		return pub, nil
	default:
		log.Warn().Msg("MAIL_DRIVER=none: outgoing mail is logged, not delivered")
		return mail.NewLogGateway(logger.For("mail")), nil
	}
}
