package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize MySQL
	db, err := cfg.OpenMySQL()
	if err != nil {
		logger.WithError(err).Fatal("failed to open mysql")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ping mysql")
	}
	logger.Info("connected to mysql")

	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, db); err != nil {
			logger.WithError(err).Fatal("failed to migrate schema")
		}
		logger.Info("schema migrated")
	}

	opts := []service.Option{service.WithMaxAttempts(cfg.MaxAttempts)}

	// Initialize Redis; the ledger runs without it, losing only request
	// dedup and the cross-instance allocation lock
	var rdb *redis.Client
	if client := cfg.RedisClient(); client != nil {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable; idempotency and allocation lock disabled")
			client.Close()
		} else {
			rdb = client
			defer rdb.Close()
			redisAdapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL, cfg.AllocationLockTTL)
			opts = append(opts,
				service.WithIdempotencyStore(redisAdapter),
				service.WithAllocationLocker(redisAdapter),
			)
			logger.Info("connected to redis")
		}
	}

	ledger := service.NewLedgerService(storage.NewMySQLAdapter(db), opts...)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryServerInterceptor(logger)))
	handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(ledger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.WithError(err).Fatal("failed to listen")
	}

	go func() {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.WithError(err).Error("gRPC server error")
		}
	}()

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(ledger, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server error")
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown")
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	logger.WithFields(logrus.Fields{"redis": rdb != nil}).Info("shutdown complete")
}
