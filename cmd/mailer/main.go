// Command mailer drains the outbound mail queue and delivers each message
// over SMTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vamosfrotas/fleet-access/internal/infrastructure/config"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/mail"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/queue"
	"github.com/vamosfrotas/fleet-access/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mailer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.Mail.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "fleet-access-mailer",
	})

	conn, err := amqp.Dial(cfg.Mail.AMQPURL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	gateway := mail.NewSMTPGateway(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.SMTPFrom,
	})

	dispatcher := queue.NewDispatcher(cfg.Mail.Workers, gateway, logger.For("dispatcher"))
	dispatcher.Start(ctx)

	log.Info().Str("queue", cfg.Mail.Queue).Int("workers", cfg.Mail.Workers).Msg("mailer starting")
	return mail.NewConsumer(conn, cfg.Mail.Queue, dispatcher, logger.For("consumer")).Run(ctx)
}
