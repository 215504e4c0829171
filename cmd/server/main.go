package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stockroom/internal/adapter/cache"
	"github.com/rl1809/stockroom/internal/adapter/handler"
	"github.com/rl1809/stockroom/internal/adapter/ingest"
	"github.com/rl1809/stockroom/internal/adapter/notify"
	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/logger"
	"github.com/rl1809/stockroom/internal/port"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}
	cfg := config.LoadEnv()

	zl, err := logger.New(cfg.Server.AppEnv, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sqlx.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		zl.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.MySQL.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		zl.Fatal("failed to ping mysql", zap.Error(err))
	}
	zl.Info("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if cfg.MySQL.EnsureSchema {
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			zl.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zl.Fatal("failed to connect redis", zap.Error(err))
	}
	zl.Info("connected to redis")

	redisAdapter := storage.NewRedisAdapter(rdb, time.Duration(cfg.Redis.IdempotencyTTL)*time.Hour, zl)

	// Initialize services
	ledgerService := service.NewLedgerService(mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter, redisAdapter, zl, cfg.Workers.QueueSize)
	itemService := service.NewItemService(mysqlAdapter, mysqlAdapter, redisAdapter, ledgerService, zl)
	orderService := service.NewOrderService(mysqlAdapter, redisAdapter, zl)

	snapshots, err := cache.NewSnapshotCache(cfg.Cache.Size, redisAdapter, zl)
	if err != nil {
		zl.Fatal("failed to create snapshot cache", zap.Error(err))
	}

	webhooks := ingest.NewWebhookProcessor(ledgerService, orderService, zl)

	// Start notification workers
	kafkaWriter := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.LowStockTopic)
	notifier := notify.NewFanout(zl,
		notify.NewStoreNotifier(mysqlAdapter, redisAdapter),
		notify.NewKafkaNotifier(kafkaWriter),
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, ledgerService.GetAlertQueue(), notifier, zl)
		}(i)
	}
	zl.Info("started notification workers", zap.Int("count", cfg.Workers.Count))

	var (
		listener     *ingest.ShippingListener
		listenerDone = make(chan struct{})
	)
	if cfg.Kafka.ListenerEnable {
		listener = ingest.NewShippingListener(
			ingest.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.ShippingTopic, cfg.Kafka.GroupID),
			webhooks, zl,
		)
		go func() {
			defer close(listenerDone)
			listener.Start(ctx)
		}()
	} else {
		close(listenerDone)
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(zl)))
	handler.NewGRPCHandler(ledgerService, itemService, snapshots).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCPort)
	if err != nil {
		zl.Fatal("failed to listen", zap.String("addr", cfg.Server.GRPCPort), zap.Error(err))
	}

	go func() {
		zl.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			zl.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Items:         itemService,
		Ledger:        ledgerService,
		Orders:        orderService,
		Forms:         ingest.NewFormAdapter(itemService, ledgerService),
		Simulation:    ingest.NewSimulationAdapter(ledgerService),
		Webhooks:      webhooks,
		Notifications: mysqlAdapter,
		Snapshots:     snapshots,
	}, zl)
	app := handler.NewApp(httpHandler, handler.NewAuth(cfg.JWT.SecretKey), cfg.Server.CORSOrigins)

	go func() {
		if err := snapshots.Run(ctx); err != nil && err != context.Canceled {
			zl.Error("snapshot cache stopped", zap.Error(err))
		}
	}()

	go func() {
		zl.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPPort))
		if err := app.Listen(cfg.Server.HTTPPort); err != nil {
			zl.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		zl.Error("HTTP shutdown failed", zap.Error(err))
	}
	zl.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	zl.Info("gRPC server stopped")

	// Stop producers of alerts before closing the queue
	cancel()
	<-listenerDone
	if listener != nil {
		if err := listener.Close(); err != nil {
			zl.Error("failed to close kafka reader", zap.Error(err))
		}
	}

	ledgerService.Close()
	wg.Wait()
	zl.Info("workers stopped")

	if err := kafkaWriter.Close(); err != nil {
		zl.Error("failed to close kafka writer", zap.Error(err))
	}
	rdb.Close()
	db.Close()
	zl.Info("connections closed")
}

func workerLoop(id int, queue <-chan domain.LowStockEvent, notifier port.Notifier, zl *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := notifier.Notify(ctx, event); err != nil {
			zl.Error("failed to deliver low-stock event",
				zap.Int("worker", id),
				zap.String("sku", event.SKU),
				zap.Error(err),
			)
		} else {
			zl.Info("low-stock event delivered",
				zap.Int("worker", id),
				zap.String("sku", event.SKU),
			)
		}

		cancel()
	}
}
