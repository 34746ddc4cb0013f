package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	appchat "petchat/internal/app/chat"
	"petchat/internal/app/notifications"
	appoutbox "petchat/internal/app/outbox"
	"petchat/internal/infra/broker/kafka"
	"petchat/internal/infra/config"
	mongodb "petchat/internal/infra/db/mongo"
	ginserver "petchat/internal/infra/http/gin"
	"petchat/internal/infra/messaging"
	"petchat/internal/infra/obs"
	"petchat/internal/infra/outbox"
	"petchat/internal/infra/realtime"
	"petchat/internal/infra/security"
	"petchat/internal/infra/storage/memory"
	"petchat/internal/infra/storage/s3"
	"petchat/internal/infra/storage/scylla"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("dev").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: app.checks}, app.handlers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "chat_store", cfg.ChatStore)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.hub.Close()
		return server.Shutdown(shutdownCtx)
	})
	if app.worker != nil {
		g.Go(func() error {
			logger.Info("outbox worker starting", "interval", cfg.OutboxPollInterval)
			if err := app.worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("outbox worker: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	hub      *realtime.Hub
	worker   *outbox.Worker
	checks   map[string]func(context.Context) error
	closers  []func(context.Context) error
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{checks: map[string]func(context.Context) error{}}

	tokens, err := security.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}

	var (
		notesRepo notifications.Repository = memory.NewNotificationRepository()
		queue     appoutbox.Queue
		box       appoutbox.Outbox
	)
	if cfg.MongoURI != "" {
		client, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		app.checks["mongo"] = client.Ping
		if notesRepo, err = mongodb.NewNotificationRepository(ctx, client.DB); err != nil {
			return nil, err
		}
		store, err := mongodb.NewOutboxStore(ctx, client.DB)
		if err != nil {
			return nil, err
		}
		queue, box = store, store
		logger.Info("notifications and outbox on mongo", "db", cfg.MongoDB)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
		app.worker = &outbox.Worker{
			Queue:       queue,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
	} else {
		// nothing relays the outbox without a broker
		box = nil
	}

	msgs, err := buildMessaging(ctx, cfg, app, box, logger)
	if err != nil {
		return nil, err
	}

	notes := &notifications.Service{Repo: notesRepo, Logger: logger}
	delivery := &appchat.Delivery{Messaging: msgs, Notifier: notes, Logger: logger}
	app.hub = realtime.NewHub(delivery, logger)
	delivery.Broadcaster = app.hub

	var uploader s3.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(s3.Options{
			Endpoint:      cfg.S3Endpoint,
			UseSSL:        cfg.S3UseSSL,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicEndpoint,
		}, logger)
		if err != nil {
			return nil, err
		}
		app.checks["s3"] = client.Ping
		uploader = client
	}

	app.handlers = ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Messaging: delivery, Uploader: uploader, Logger: logger},
		Notifications:  ginserver.NotificationHandler{Service: notes},
		Live:           realtime.NewHandler(app.hub, tokens, cfg.CORSOrigins).Serve,
		AuthMiddleware: ginserver.AuthMiddleware{Tokens: tokens, Logger: logger}.Handle,
	}
	return app, nil
}

// buildMessaging selects the chat backend: in-process over memory or
// Scylla, or the remote messaging service over gRPC.
func buildMessaging(ctx context.Context, cfg config.Config, app *application, box appoutbox.Outbox, logger *slog.Logger) (appchat.Messaging, error) {
	if cfg.ChatStore == config.ChatStoreGRPC {
		client, err := messaging.NewClient(messaging.Config{
			Addr:        cfg.MessagingGRPCAddr,
			DialTimeout: cfg.MessagingGRPCDial,
			CallTimeout: cfg.MessagingGRPCTime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("messaging client: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return client.Close() })
		return client, nil
	}

	catalog, err := memory.LoadCatalogFile(cfg.CatalogFixtures)
	if err != nil {
		return nil, err
	}
	svc := &appchat.Service{
		Catalog: catalog,
		Outbox:  box,
		Encoder: appoutbox.JSONEventEncoder{Headers: requestHeaders},
		Logger:  logger,
	}
	switch cfg.ChatStore {
	case config.ChatStoreScylla:
		session, err := scylla.NewSession(ctx, cfg.Scylla, logger)
		if err != nil {
			return nil, fmt.Errorf("scylla: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error {
			session.Close()
			return nil
		})
		app.checks["scylla"] = func(ctx context.Context) error {
			return session.Query("SELECT now() FROM system.local").WithContext(ctx).Consistency(gocql.One).Exec()
		}
		svc.Repo = scylla.NewStore(session, logger)
	default:
		svc.Repo = memory.NewChatRepository()
	}
	return svc, nil
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// requestHeaders carries the originating request id onto outbox records.
func requestHeaders(ctx context.Context) map[string]string {
	if id := obs.RequestIDFromContext(ctx); id != "" {
		return map[string]string{obs.RequestIDHeader: id}
	}
	return nil
}
