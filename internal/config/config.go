package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketProofs string
	UseSSL       bool
	Region       string
	MaxProofSize int64
}

func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}

type SecurityConfig struct {
	JWTAccessSecret string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	MaxSessions     int
}

type RealtimeConfig struct {
	AuthTimeout time.Duration
	PingPeriod  time.Duration
	PongWait    time.Duration
	WriteWait   time.Duration
	SendBuffer  int
}

type PushConfig struct {
	Stream     string
	WebhookURL string
	Timeout    time.Duration
}

type WorkerConfig struct {
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	StaleAfter    time.Duration
	LogLevel      string
}

type JobsConfig struct {
	SweepSpec string
}

type AppConfig struct {
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Postgres    PostgresConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Security    SecurityConfig
	Realtime    RealtimeConfig
	Push        PushConfig
	Worker      WorkerConfig
	Jobs        JobsConfig

	CORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*AppConfig, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("dispatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: postgres.dsn required for postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Security.JWTAccessSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("config: security.jwtaccesssecret required in production")
		}
		c.Security.JWTAccessSecret = "dev-only-access-secret"
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Empty defaults register the keys so AutomaticEnv can fill them on Unmarshal.
	for _, key := range []string{
		"postgres.dsn", "redis.password", "storage.endpoint", "storage.accesskey",
		"storage.secretkey", "security.jwtaccesssecret", "push.webhookurl", "corsorigins",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 5000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("sqlite.path", "dispatch.db")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketproofs", "dispatch-proofs")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxproofsize", 5<<20)

	v.SetDefault("security.jwtaccessttl", "24h")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.maxsessions", 10)

	v.SetDefault("realtime.authtimeout", "5s")
	v.SetDefault("realtime.pingperiod", "30s")
	v.SetDefault("realtime.pongwait", "60s")
	v.SetDefault("realtime.writewait", "10s")
	v.SetDefault("realtime.sendbuffer", 64)

	v.SetDefault("push.stream", "dispatch:push")
	v.SetDefault("push.timeout", "5s")

	v.SetDefault("worker.group", "dispatch-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "10s")
	v.SetDefault("worker.staleafter", "30m")
	v.SetDefault("worker.loglevel", "info")

	v.SetDefault("jobs.sweepspec", "0 */5 * * * *")
}
