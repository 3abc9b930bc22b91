package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/station-pick/internal/adapter/storage"
	"github.com/rl1809/station-pick/internal/config"
	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/core/service"
)

const (
	trayID        = "stress-tray"
	material      = "stress-material"
	stations      = 5
	initialStock  = 20
	totalRequests = 50
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load(config.New())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Clear previous test data
	db.ExecContext(ctx, `UPDATE retrieval_orders SET status = ? WHERE tray_id = ?`, domain.OrderStatusCompleted, trayID)
	if _, err := db.ExecContext(ctx, `
		INSERT INTO trays (id, code, location, material, available_quantity, inbound_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE location = VALUES(location), available_quantity = VALUES(available_quantity)`,
		trayID, trayID, domain.LocationStorage, material, initialStock, time.Now(),
	); err != nil {
		log.Fatalf("failed to seed tray: %v", err)
	}

	backend := storage.NewMySQLAdapter(db)

	// Every station gets its own Station; redis, when configured, shares leases
	var lease *storage.RedisAdapter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		lease = storage.NewRedisAdapter(rdb)
	}

	fleet := make([]*service.Station, stations)
	for i := range fleet {
		opts := service.Options{
			CallTimeout: cfg.CallTimeout,
			Snapshots:   storage.NewMemorySnapshotStore(),
			Owner:       fmt.Sprintf("stress-station-%d", i),
		}
		if lease != nil {
			opts.Lease = lease
		}
		fleet[i] = service.NewStation(backend, opts)
	}

	tray := domain.Tray{ID: trayID, Code: trayID, Material: material}

	// Phase 1: every station requests the same tray at once
	var orderIDs sync.Map
	var ensureFailed atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(st *service.Station) {
			defer wg.Done()
			order, err := st.EnsureOrder(ctx, tray)
			if err != nil {
				ensureFailed.Add(1)
				return
			}
			orderIDs.Store(order.ID, struct{}{})
		}(fleet[i%stations])
	}
	wg.Wait()

	var distinct []string
	orderIDs.Range(func(k, _ any) bool {
		distinct = append(distinct, k.(string))
		return true
	})

	fmt.Println("========== ENSURE ORDER RESULTS ==========")
	fmt.Printf("Requests:         %d\n", totalRequests)
	fmt.Printf("Distinct orders:  %d\n", len(distinct))
	fmt.Printf("Failed:           %d\n", ensureFailed.Load())
	fmt.Printf("Duration:         %v\n", time.Since(start))
	fmt.Println("==========================================")

	if len(distinct) != 1 {
		fmt.Printf("FAIL: Expected exactly 1 order, got %d\n", len(distinct))
		return
	}
	fmt.Println("PASS: Exactly 1 retrieval order for the tray")
	orderID := distinct[0]

	if err := backend.Deliver(ctx, orderID, "Stress Station"); err != nil {
		log.Fatalf("failed to deliver order %s: %v", orderID, err)
	}

	// Phase 2: pick one unit per request until the tray is empty
	var picked, rejected, failed atomic.Int32
	start = time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(st *service.Station) {
			defer wg.Done()
			for {
				_, err := st.Pick(ctx, service.PickRequest{OrderID: orderID, Material: material, Quantity: 1, Tray: tray})
				switch {
				case err == nil:
					picked.Add(1)
				case errors.Is(err, domain.ErrSubmissionInFlight), errors.Is(err, domain.ErrTrayBusy):
					time.Sleep(10 * time.Millisecond)
					continue
				case errors.Is(err, domain.ErrValidation):
					rejected.Add(1)
				default:
					log.Printf("pick failed: %v", err)
					failed.Add(1)
				}
				return
			}
		}(fleet[i%stations])
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("============ PICK RESULTS ================")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Picked:           %d\n", picked.Load())
	fmt.Printf("Rejected:         %d\n", rejected.Load())
	fmt.Printf("Failed:           %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if picked.Load() == initialStock && rejected.Load() == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d picks succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d picked/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, picked.Load(), rejected.Load())
	}

	// Verify final tray quantity
	var remaining int
	db.QueryRowContext(ctx, `SELECT available_quantity FROM trays WHERE id = ?`, trayID).Scan(&remaining)
	fmt.Printf("Final Tray Stock: %d\n", remaining)
	if remaining == 0 {
		fmt.Println("PASS: Tray depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected tray stock 0, got %d\n", remaining)
	}

	if err := fleet[0].Release(ctx, orderID); err != nil {
		log.Printf("release: %v", err)
	}
}
