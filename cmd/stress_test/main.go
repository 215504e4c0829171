package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

const (
	initialStock  = 200
	totalRequests = 50
	perRequest    = 3
	queueSize     = 100
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()
	ctx := context.Background()

	db, err := sqlx.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	redisAdapter := storage.NewRedisAdapter(rdb, time.Hour, zap.NewNop())

	ledgerService := service.NewLedgerService(mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter, redisAdapter, zap.NewNop(), queueSize)
	defer ledgerService.Close()

	// Drain the alert queue in background
	go func() {
		for range ledgerService.GetAlertQueue() {
		}
	}()

	sku := "STRESS-" + uuid.NewString()[:8]
	_, err = ledgerService.Apply(ctx, domain.Intent{
		Type:            domain.MovementReceive,
		SKU:             sku,
		Quantity:        initialStock,
		ToLocation:      "STRESS",
		UserID:          domain.UserSystem,
		CreateIfMissing: true,
		ItemName:        "Stress test item",
	})
	if err != nil {
		log.Fatalf("failed to seed item: %v", err)
	}

	var successCount, conflictCount, failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := ledgerService.Apply(ctx, domain.Intent{
				Type:     domain.MovementFulfillment,
				SKU:      sku,
				Quantity: perRequest,
				UserID:   fmt.Sprintf("picker-%d", n),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrCommitConflict):
				conflictCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("request %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	item, err := mysqlAdapter.GetItemBySKU(ctx, sku)
	if err != nil || item == nil {
		log.Fatalf("failed to read back item: %v", err)
	}
	movements, err := mysqlAdapter.ListMovements(ctx, domain.MovementFilter{SKU: sku, Type: domain.MovementFulfillment})
	if err != nil {
		log.Fatalf("failed to list movements: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("SKU:              %s\n", sku)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d x %d\n", totalRequests, perRequest)
	fmt.Printf("Applied:          %d\n", success)
	fmt.Printf("Gave up (race):   %d\n", conflictCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Quantity:   %d\n", item.Quantity)
	fmt.Println("==========================================")

	want := initialStock - int(success)*perRequest
	if item.Quantity == want {
		fmt.Printf("PASS: quantity %d matches %d applied fulfillments\n", item.Quantity, success)
	} else {
		fmt.Printf("FAIL: expected quantity %d, got %d (lost updates)\n", want, item.Quantity)
	}

	if len(movements) == int(success) {
		fmt.Println("PASS: one movement per applied fulfillment")
	} else {
		fmt.Printf("FAIL: expected %d movements, got %d\n", success, len(movements))
	}
}
