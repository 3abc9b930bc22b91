package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendNanostore = "nanostore"
	BackendMySQL     = "mysql"
)

// Keys shared by flags, env (STATION_ prefix, dashes as underscores) and viper.
const (
	KeyHTTPAddr         = "http-addr"
	KeyGRPCAddr         = "grpc-addr"
	KeyBackend          = "backend"
	KeyNanostoreURL     = "nanostore-url"
	KeyNanostoreToken   = "nanostore-token"
	KeyNanostoreUserID  = "nanostore-user-id"
	KeyAutoCompleteTime = "auto-complete-time"
	KeyMySQLDSN         = "mysql-dsn"
	KeyMigrate          = "migrate"
	KeyRedisAddr        = "redis-addr"
	KeyStationID        = "station-id"
	KeyCallTimeout      = "call-timeout"
	KeyLeaseTTL         = "lease-ttl"
	KeySyncInterval     = "sync-interval"
	KeySyncMaxFailures  = "sync-max-failures"
	KeySyncMaxBackoff   = "sync-max-backoff"
	KeyShutdownTimeout  = "shutdown-timeout"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	Backend          string
	NanostoreURL     string
	NanostoreToken   string
	NanostoreUserID  string
	AutoCompleteTime int
	MySQLDSN         string
	Migrate          bool

	RedisAddr string // empty keeps leases in-process and snapshots in memory
	StationID string

	CallTimeout     time.Duration
	LeaseTTL        time.Duration
	SyncInterval    time.Duration
	SyncMaxFailures int
	SyncMaxBackoff  int
	ShutdownTimeout time.Duration
}

// New returns a viper instance reading STATION_* environment variables
// with defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("STATION")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyGRPCAddr, ":9090")
	v.SetDefault(KeyBackend, BackendNanostore)
	v.SetDefault(KeyNanostoreURL, "https://robotmanagerv1test.qikpod.com/nanostore")
	v.SetDefault(KeyNanostoreUserID, "1")
	v.SetDefault(KeyAutoCompleteTime, 10)
	v.SetDefault(KeyMySQLDSN, "root:root@tcp(localhost:3306)/stationpick?parseTime=true")
	v.SetDefault(KeyMigrate, false)
	v.SetDefault(KeyCallTimeout, 5*time.Second)
	v.SetDefault(KeyLeaseTTL, 30*time.Second)
	v.SetDefault(KeySyncInterval, 5*time.Second)
	v.SetDefault(KeySyncMaxFailures, 3)
	v.SetDefault(KeySyncMaxBackoff, 12)
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
}

// Load reads v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:         v.GetString(KeyHTTPAddr),
		GRPCAddr:         v.GetString(KeyGRPCAddr),
		Backend:          strings.ToLower(v.GetString(KeyBackend)),
		NanostoreURL:     v.GetString(KeyNanostoreURL),
		NanostoreToken:   v.GetString(KeyNanostoreToken),
		NanostoreUserID:  v.GetString(KeyNanostoreUserID),
		AutoCompleteTime: v.GetInt(KeyAutoCompleteTime),
		MySQLDSN:         v.GetString(KeyMySQLDSN),
		Migrate:          v.GetBool(KeyMigrate),
		RedisAddr:        v.GetString(KeyRedisAddr),
		StationID:        v.GetString(KeyStationID),
		CallTimeout:      v.GetDuration(KeyCallTimeout),
		LeaseTTL:         v.GetDuration(KeyLeaseTTL),
		SyncInterval:     v.GetDuration(KeySyncInterval),
		SyncMaxFailures:  v.GetInt(KeySyncMaxFailures),
		SyncMaxBackoff:   v.GetInt(KeySyncMaxBackoff),
		ShutdownTimeout:  v.GetDuration(KeyShutdownTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendNanostore:
		if c.NanostoreURL == "" {
			return fmt.Errorf("config: %s is required for the nanostore backend", KeyNanostoreURL)
		}
		if c.AutoCompleteTime <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", KeyAutoCompleteTime, c.AutoCompleteTime)
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("config: %s is required for the mysql backend", KeyMySQLDSN)
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, BackendNanostore, BackendMySQL)
	}

	if c.CallTimeout <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyCallTimeout)
	}
	if c.LeaseTTL < c.CallTimeout {
		return fmt.Errorf("config: %s (%s) must not be shorter than %s (%s)", KeyLeaseTTL, c.LeaseTTL, KeyCallTimeout, c.CallTimeout)
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("config: %s must be at least 1s, got %s", KeySyncInterval, c.SyncInterval)
	}
	if c.SyncMaxFailures <= 0 || c.SyncMaxBackoff <= 0 {
		return fmt.Errorf("config: %s and %s must be positive", KeySyncMaxFailures, KeySyncMaxBackoff)
	}
	return nil
}
