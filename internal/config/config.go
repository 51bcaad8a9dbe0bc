// internal/config/config.go
package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server Server
	Store  Store
	Engine Engine
	Report Report
	Notify Notify
}

type Server struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

// Store selects and configures the record store backend.
type Store struct {
	Driver   string // memory | redis | postgres
	Postgres Postgres
	Redis    Redis
}

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type Redis struct {
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
}

// Engine holds the orchestrator and stage tuning knobs. The struct is built
// once at startup and passed into the engine; stages never read env directly.
type Engine struct {
	WorkerCount      int
	TransientRetries int
	RetryBackoff     time.Duration
	ConflictRetries  int
	HorizonDays      int
	RunDeadline      time.Duration

	// Anomaly thresholds
	InventoryDeviationPct float64 // |current-forecast|/forecast
	DemandSpikePct        float64 // realized vs rolling average
	SupplierDegradationPP float64 // on-time rate drop, in rate points

	// Procurement scoring weights
	PriceWeight       float64
	LeadTimeWeight    float64
	ReliabilityWeight float64
}

type Report struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Notify struct {
	Enabled bool
	Channel string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("STORE_DRIVER", "memory")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "supplyengine")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("ENGINE_WORKER_COUNT", 4)
		viper.SetDefault("ENGINE_TRANSIENT_RETRIES", 3)
		viper.SetDefault("ENGINE_RETRY_BACKOFF_MS", 200)
		viper.SetDefault("ENGINE_CONFLICT_RETRIES", 5)
		viper.SetDefault("ENGINE_HORIZON_DAYS", 30)
		viper.SetDefault("ENGINE_RUN_DEADLINE_SECONDS", 120)
		viper.SetDefault("ENGINE_INVENTORY_DEVIATION_PCT", 0.20)
		viper.SetDefault("ENGINE_DEMAND_SPIKE_PCT", 0.30)
		viper.SetDefault("ENGINE_SUPPLIER_DEGRADATION_PP", 0.15)
		viper.SetDefault("ENGINE_PRICE_WEIGHT", 0.4)
		viper.SetDefault("ENGINE_LEAD_TIME_WEIGHT", 0.3)
		viper.SetDefault("ENGINE_RELIABILITY_WEIGHT", 0.3)
		viper.SetDefault("REPORT_SINK_ENABLED", false)
		viper.SetDefault("REPORT_SINK_ENDPOINT", "")
		viper.SetDefault("REPORT_SINK_ACCESS_KEY", "")
		viper.SetDefault("REPORT_SINK_SECRET_KEY", "")
		viper.SetDefault("REPORT_SINK_BUCKET", "supplyengine-reports")
		viper.SetDefault("REPORT_SINK_USE_SSL", true)
		viper.SetDefault("NOTIFY_ENABLED", false)
		viper.SetDefault("NOTIFY_CHANNEL", "supplyengine:anomalies")

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: Server{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Store: Store{
				Driver: viper.GetString("STORE_DRIVER"),
				Postgres: Postgres{
					Host:     viper.GetString("DB_HOST"),
					Port:     viper.GetString("DB_PORT"),
					User:     viper.GetString("DB_USER"),
					Password: viper.GetString("DB_PASSWORD"),
					DBName:   viper.GetString("DB_NAME"),
					SSLMode:  viper.GetString("DB_SSLMODE"),
				},
				Redis: Redis{
					URL:      viper.GetString("REDIS_URL"),
					Host:     viper.GetString("REDIS_HOST"),
					Port:     viper.GetString("REDIS_PORT"),
					Password: viper.GetString("REDIS_PASSWORD"),
					DB:       viper.GetInt("REDIS_DB"),
				},
			},
			Engine: Engine{
				WorkerCount:           viper.GetInt("ENGINE_WORKER_COUNT"),
				TransientRetries:      viper.GetInt("ENGINE_TRANSIENT_RETRIES"),
				RetryBackoff:          time.Duration(viper.GetInt("ENGINE_RETRY_BACKOFF_MS")) * time.Millisecond,
				ConflictRetries:       viper.GetInt("ENGINE_CONFLICT_RETRIES"),
				HorizonDays:           viper.GetInt("ENGINE_HORIZON_DAYS"),
				RunDeadline:           time.Duration(viper.GetInt("ENGINE_RUN_DEADLINE_SECONDS")) * time.Second,
				InventoryDeviationPct: viper.GetFloat64("ENGINE_INVENTORY_DEVIATION_PCT"),
				DemandSpikePct:        viper.GetFloat64("ENGINE_DEMAND_SPIKE_PCT"),
				SupplierDegradationPP: viper.GetFloat64("ENGINE_SUPPLIER_DEGRADATION_PP"),
				PriceWeight:           viper.GetFloat64("ENGINE_PRICE_WEIGHT"),
				LeadTimeWeight:        viper.GetFloat64("ENGINE_LEAD_TIME_WEIGHT"),
				ReliabilityWeight:     viper.GetFloat64("ENGINE_RELIABILITY_WEIGHT"),
			},
			Report: Report{
				Enabled:   viper.GetBool("REPORT_SINK_ENABLED"),
				Endpoint:  viper.GetString("REPORT_SINK_ENDPOINT"),
				AccessKey: viper.GetString("REPORT_SINK_ACCESS_KEY"),
				SecretKey: viper.GetString("REPORT_SINK_SECRET_KEY"),
				Bucket:    viper.GetString("REPORT_SINK_BUCKET"),
				UseSSL:    viper.GetBool("REPORT_SINK_USE_SSL"),
			},
			Notify: Notify{
				Enabled: viper.GetBool("NOTIFY_ENABLED"),
				Channel: viper.GetString("NOTIFY_CHANNEL"),
			},
		}
	})

	return instance
}

// DefaultEngine returns the engine tuning used when no config file or
// environment is present, primarily for tests and the seed CLI.
func DefaultEngine() Engine {
	return Engine{
		WorkerCount:           4,
		TransientRetries:      3,
		RetryBackoff:          200 * time.Millisecond,
		ConflictRetries:       5,
		HorizonDays:           30,
		RunDeadline:           2 * time.Minute,
		InventoryDeviationPct: 0.20,
		DemandSpikePct:        0.30,
		SupplierDegradationPP: 0.15,
		PriceWeight:           0.4,
		LeadTimeWeight:        0.3,
		ReliabilityWeight:     0.3,
	}
}
