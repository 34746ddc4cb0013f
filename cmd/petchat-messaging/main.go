package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	appchat "petchat/internal/app/chat"
	"petchat/internal/infra/config"
	"petchat/internal/infra/messaging"
	"petchat/internal/infra/obs"
	"petchat/internal/infra/storage/memory"
	"petchat/internal/infra/storage/scylla"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadMessaging()
	if err != nil {
		obs.NewLogger("dev").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	catalog, err := memory.LoadCatalogFile(cfg.CatalogFixtures)
	if err != nil {
		logger.Error("catalog load failed", "error", err, "path", cfg.CatalogFixtures)
		os.Exit(1)
	}
	svc := &appchat.Service{Catalog: catalog, Logger: logger}
	switch cfg.ChatStore {
	case config.ChatStoreScylla:
		session, err := scylla.NewSession(ctx, cfg.Scylla, logger)
		if err != nil {
			logger.Error("scylla init failed", "error", err)
			os.Exit(1)
		}
		defer session.Close()
		svc.Repo = scylla.NewStore(session, logger)
	default:
		svc.Repo = memory.NewChatRepository()
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(messaging.UnaryLogger(logger)))
	messaging.RegisterMessagingServer(grpcServer, &messaging.Server{Messaging: svc, Logger: logger})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "error", err, "addr", cfg.GRPCAddr)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down grpc server")
		grpcServer.GracefulStop()
	}()

	logger.Info("messaging service starting", "addr", cfg.GRPCAddr, "env", cfg.Env, "chat_store", cfg.ChatStore)
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("grpc server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("messaging service stopped")
}
