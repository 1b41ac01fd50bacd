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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/api"
	"github.com/sungwon/mailbridge/internal/archive"
	"github.com/sungwon/mailbridge/internal/auth"
	"github.com/sungwon/mailbridge/internal/config"
	"github.com/sungwon/mailbridge/internal/dispatch"
	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/provider"
	"github.com/sungwon/mailbridge/internal/request"
	"github.com/sungwon/mailbridge/internal/storage"
	"github.com/sungwon/mailbridge/internal/trigger"
	"github.com/sungwon/mailbridge/internal/webhook"
)

func main() {
	configPath := os.Getenv("MAILBRIDGE_CONFIG_PATH")
	if configPath == "" {
		configPath = "config"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bridge failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("trigger_mode", cfg.Trigger.Mode).Msg("starting mail bridge")

	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("database connection established")

	records := db.Records(cfg.Store.Collection)

	providerCfg := provider.Config{
		APIKey:   cfg.MailerSend.APIKey,
		Endpoint: cfg.MailerSend.Endpoint,
		Timeout:  cfg.MailerSend.Timeout,
	}
	if err := providerCfg.Validate(); err != nil {
		return err
	}
	mailer := provider.NewMailerSend(providerCfg, provider.NewHTTPClient(providerCfg.Timeout))

	validator := request.NewValidator(request.Defaults{
		FromEmail:    cfg.Defaults.FromEmail,
		FromName:     cfg.Defaults.FromName,
		ReplyToEmail: cfg.Defaults.ReplyToEmail,
		ReplyToName:  cfg.Defaults.ReplyToName,
		TemplateID:   cfg.Defaults.TemplateID,
	})
	orchestrator := dispatch.NewOrchestrator(validator, mailer, dispatch.RecordsLoader{Records: records}, log)
	reconciler := webhook.NewReconciler(records, log)

	deps := api.Deps{
		DB:          db,
		Emails:      records,
		Events:      reconciler,
		WebhookPath: cfg.Webhook.Path,
		Webhook: api.WebhookConfig{
			SigningSecret:   cfg.Webhook.SigningSecret,
			SignatureHeader: cfg.Webhook.SignatureHeader,
			MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
		},
		Log: log,
	}
	if cfg.Webhook.SigningSecret == "" {
		log.Warn().Msg("webhook signing secret is not set; webhook requests will be rejected")
	}
	if cfg.API.IntakeKeyHash != "" {
		verifier, err := auth.NewKeyVerifier(cfg.API.IntakeKeyHash)
		if err != nil {
			return fmt.Errorf("api.intake_key_hash: %w", err)
		}
		deps.IntakeAuth = verifier
	} else {
		log.Warn().Msg("intake API key not configured; /api/v1/emails is unauthenticated")
	}
	if cfg.MailerSend.HealthCheck {
		deps.Provider = mailer
	}

	arch, err := archive.New(ctx, archive.Config{
		Type:       cfg.Archive.Type,
		Path:       cfg.Archive.Path,
		S3Bucket:   cfg.Archive.S3Bucket,
		S3Prefix:   cfg.Archive.S3Prefix,
		S3Endpoint: cfg.Archive.S3Endpoint,
		S3Region:   cfg.Archive.S3Region,
	}, log)
	if err != nil {
		return fmt.Errorf("create webhook archive: %w", err)
	}
	if arch.Enabled() {
		deps.Archive = arch
	}

	source, closeSource, err := buildSource(ctx, cfg, db, log, &deps)
	if err != nil {
		return err
	}
	defer closeSource()

	srv := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("webhook_path", cfg.Webhook.Path).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sourceDone := make(chan struct{})
	go func() {
		defer close(sourceDone)
		if source == nil {
			log.Info().Msg("trigger source disabled")
			return
		}
		if err := source.Run(ctx, orchestrator); err != nil {
			errCh <- fmt.Errorf("%s trigger source: %w", source.Name(), err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("component failed, shutting down")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	select {
	case <-sourceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("trigger source did not stop before shutdown timeout")
	}

	log.Info().Msg("mail bridge stopped")
	return runErr
}

// buildSource creates the trigger source selected by trigger.mode. In stream
// mode it also wires the API intake to publish created records. The returned
// cleanup func is never nil.
func buildSource(ctx context.Context, cfg *config.Config, db *storage.DB, log zerolog.Logger, deps *api.Deps) (trigger.Source, func(), error) {
	noop := func() {}

	switch cfg.Trigger.Mode {
	case config.TriggerNotify:
		if cfg.Trigger.InstallTrigger {
			if err := db.Records(cfg.Store.Collection).EnsureNotifyTrigger(ctx, cfg.Trigger.Channel); err != nil {
				return nil, noop, err
			}
			log.Info().
				Str("collection", cfg.Store.Collection).
				Str("channel", cfg.Trigger.Channel).
				Msg("notify trigger installed")
		} else if cfg.Store.Collection != storage.DefaultCollection || cfg.Trigger.Channel != config.DefaultChannel {
			log.Warn().
				Str("collection", cfg.Store.Collection).
				Str("channel", cfg.Trigger.Channel).
				Msg("notify trigger not managed; ensure the table's insert trigger notifies this channel")
		}
		return trigger.NewNotifySource(db, cfg.Trigger.Channel, log), noop, nil

	case config.TriggerStream:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("connect to redis: %w", err)
		}

		consumer := cfg.Trigger.Consumer
		if consumer == "" {
			consumer, _ = os.Hostname()
		}
		deps.Publisher = trigger.NewStreamPublisher(client, cfg.Trigger.Stream)
		source := trigger.NewStreamSource(client, trigger.StreamConfig{
			Stream:       cfg.Trigger.Stream,
			Group:        cfg.Trigger.Group,
			Consumer:     consumer,
			BlockTimeout: cfg.Trigger.BlockTimeout,
		}, log)
		return source, func() { _ = client.Close() }, nil

	case config.TriggerSQS:
		source, err := trigger.NewSQSSource(ctx, trigger.SQSConfig{
			QueueURL: cfg.Trigger.SQSQueueURL,
			Region:   cfg.Trigger.SQSRegion,
			Endpoint: cfg.Trigger.SQSEndpoint,
			WaitTime: cfg.Trigger.SQSWaitTime,
		}, log)
		if err != nil {
			return nil, noop, err
		}
		return source, noop, nil

	case config.TriggerNone:
		return nil, noop, nil
	}

	return nil, noop, fmt.Errorf("unknown trigger mode %q", cfg.Trigger.Mode)
}
