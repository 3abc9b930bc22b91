package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/rl1809/station-pick/internal/adapter/handler"
	"github.com/rl1809/station-pick/internal/adapter/nanostore"
	"github.com/rl1809/station-pick/internal/adapter/storage"
	"github.com/rl1809/station-pick/internal/config"
	"github.com/rl1809/station-pick/internal/core/service"
	"github.com/rl1809/station-pick/internal/port"
)

// Flags mirror config keys; env (STATION_*) and .env fill the rest.
var flagKeys = []string{
	config.KeyHTTPAddr, config.KeyGRPCAddr, config.KeyBackend, config.KeyNanostoreURL,
	config.KeyNanostoreToken, config.KeyMySQLDSN, config.KeyMigrate, config.KeyRedisAddr,
	config.KeyStationID, config.KeyCallTimeout, config.KeySyncInterval,
}

func main() {
	_ = godotenv.Load()

	v := config.New()
	root := &cobra.Command{
		Use:          "station-server",
		Short:        "Pick station orchestrator serving HTTP and gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := root.Flags()
	f.String(config.KeyHTTPAddr, ":8080", "HTTP listen address")
	f.String(config.KeyGRPCAddr, ":9090", "gRPC listen address")
	f.String(config.KeyBackend, config.BackendNanostore, "inventory backend (nanostore or mysql)")
	f.String(config.KeyNanostoreURL, "", "nanostore base URL")
	f.String(config.KeyNanostoreToken, "", "nanostore bearer token")
	f.String(config.KeyMySQLDSN, "", "MySQL DSN for the mysql backend")
	f.Bool(config.KeyMigrate, false, "apply schema migrations on start (mysql backend)")
	f.String(config.KeyRedisAddr, "", "redis address for shared tray leases and snapshots")
	f.String(config.KeyStationID, "", "lease owner id, random when empty")
	f.Duration(config.KeyCallTimeout, 5*time.Second, "per-call backend timeout")
	f.Duration(config.KeySyncInterval, 5*time.Second, "background refresh interval")
	bindFlags(root, v)

	if err := root.Execute(); err != nil {
		log.Fatalf("station-server: %v", err)
	}
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	for _, key := range flagKeys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(key))
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	opts := service.Options{
		CallTimeout: cfg.CallTimeout,
		LeaseTTL:    cfg.LeaseTTL,
		Owner:       cfg.StationID,
		Snapshots:   storage.NewMemorySnapshotStore(),
		Sync: service.SchedulerConfig{
			Interval:    cfg.SyncInterval,
			MaxFailures: cfg.SyncMaxFailures,
			MaxBackoff:  cfg.SyncMaxBackoff,
		},
	}

	// Redis shares tray leases and last-known snapshots across stations
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 20,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()
		log.Println("connected to redis")

		redisAdapter := storage.NewRedisAdapter(rdb)
		opts.Lease = redisAdapter
		opts.Snapshots = redisAdapter
	}

	station := service.NewStation(backend, opts)
	if err := station.Start(); err != nil {
		return fmt.Errorf("failed to start sync scheduler: %w", err)
	}
	defer station.Close()
	log.Printf("sync scheduler started, interval %s", cfg.SyncInterval)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterStationServer(grpcServer, handler.NewGRPCHandler(station))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(station).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	log.Println("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg config.Config) (port.InventoryBackend, func(), error) {
	switch cfg.Backend {
	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping mysql: %w", err)
		}
		log.Println("connected to mysql")

		if cfg.Migrate {
			if err := storage.Migrate(db); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Println("schema migrated")
		}
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil

	default:
		client := nanostore.New(cfg.NanostoreURL, cfg.NanostoreToken)
		client.UserID = cfg.NanostoreUserID
		client.AutoCompleteTime = cfg.AutoCompleteTime
		client.Timeout = cfg.CallTimeout
		log.Printf("using nanostore at %s", cfg.NanostoreURL)
		return client, func() {}, nil
	}
}
