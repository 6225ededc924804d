package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var (
	config     = viper.New()
	configType = "yaml"
)

type TLSConfig struct {
	Enable   bool   `mapstructure:"ENABLE"`
	CertPath string `mapstructure:"CERT_PATH"`
	KeyPath  string `mapstructure:"KEY_PATH"`
}

type OtelConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Protocol string `mapstructure:"PROTOCOL"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"ADDR"`
	ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
}

type ConnectionPoolConfig struct {
	MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
	MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
}

type DatabaseConfig struct {
	Type           string               `mapstructure:"TYPE"`
	Host           string               `mapstructure:"HOST"`
	Port           string               `mapstructure:"PORT"`
	DBNAME         string               `mapstructure:"DBNAME"`
	User           string               `mapstructure:"USER"`
	Password       string               `mapstructure:"PASSWORD"`
	SSLMode        string               `mapstructure:"SSLMODE"`
	Timezone       string               `mapstructure:"TIMEZONE"`
	Debug          bool                 `mapstructure:"DEBUG"`
	Tracing        bool                 `mapstructure:"TRACING"`
	Metrics        bool                 `mapstructure:"METRICS"`
	ConnectionPool ConnectionPoolConfig `mapstructure:"CONNECTION_POOL"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"ADDR"`
	Password    string        `mapstructure:"PASSWORD"`
	DB          int           `mapstructure:"DB"`
	PoolSize    int           `mapstructure:"POOL_SIZE"`
	PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
}

type PyroscopeConfig struct {
	Addr string `mapstructure:"ADDR"`
}

type AdminConfig struct {
	APIKey string `mapstructure:"API_KEY"`
}

// AccrualConfig drives the earnings scheduler.
type AccrualConfig struct {
	TickPeriod      time.Duration `mapstructure:"TICK_PERIOD"`
	Concurrency     int           `mapstructure:"CONCURRENCY"`
	DistributedLock bool          `mapstructure:"DISTRIBUTED_LOCK"`
	LockTTL         time.Duration `mapstructure:"LOCK_TTL"`
}

type LedgerConfig struct {
	BaseCurrency string `mapstructure:"BASE_CURRENCY"`
}

// PriceFeedConfig configures the market data source. Map keys are lower-cased
// by viper, consumers upper-case them.
type PriceFeedConfig struct {
	URL       string            `mapstructure:"URL"`
	Timeout   time.Duration     `mapstructure:"TIMEOUT"`
	TTL       time.Duration     `mapstructure:"TTL"`
	Fallback  map[string]string `mapstructure:"FALLBACK"`
	SymbolIDs map[string]string `mapstructure:"SYMBOL_IDS"`
}

type BalanceConfig struct {
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
}

type WithdrawalConfig struct {
	DistributedLock bool          `mapstructure:"DISTRIBUTED_LOCK"`
	LockTTL         time.Duration `mapstructure:"LOCK_TTL"`
}

type TasksConfig struct {
	ExpirySpec       string `mapstructure:"EXPIRY_SPEC"`
	PriceRefreshSpec string `mapstructure:"PRICE_REFRESH_SPEC"`
	Concurrency      int    `mapstructure:"CONCURRENCY"`
}

type Config struct {
	AppEnv     string           `mapstructure:"APP_ENV"`
	AppName    string           `mapstructure:"APP_NAME"`
	AppVersion string           `mapstructure:"APP_VERSION"`
	NodeID     int64            `mapstructure:"NODE_ID"`
	TLS        TLSConfig        `mapstructure:"TLS"`
	Otel       OtelConfig       `mapstructure:"OTEL"`
	Server     ServerConfig     `mapstructure:"HTTP_SERVER"`
	Database   DatabaseConfig   `mapstructure:"DATABASE"`
	Redis      RedisConfig      `mapstructure:"REDIS"`
	Pyroscope  PyroscopeConfig  `mapstructure:"PYROSCOPE"`
	Admin      AdminConfig      `mapstructure:"ADMIN"`
	Accrual    AccrualConfig    `mapstructure:"ACCRUAL"`
	Ledger     LedgerConfig     `mapstructure:"LEDGER"`
	PriceFeed  PriceFeedConfig  `mapstructure:"PRICE_FEED"`
	Balance    BalanceConfig    `mapstructure:"BALANCE"`
	Withdrawal WithdrawalConfig `mapstructure:"WITHDRAWAL"`
	Tasks      TasksConfig      `mapstructure:"TASKS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "hashmine")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", "10s")
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", "10s")
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", "60s")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", "5m")
	v.SetDefault("ACCRUAL.TICK_PERIOD", "1s")
	v.SetDefault("ACCRUAL.CONCURRENCY", 8)
	v.SetDefault("ACCRUAL.LOCK_TTL", "30s")
	v.SetDefault("LEDGER.BASE_CURRENCY", "BTC")
	v.SetDefault("PRICE_FEED.TIMEOUT", "5s")
	v.SetDefault("PRICE_FEED.TTL", "30s")
	v.SetDefault("BALANCE.CACHE_TTL", "5s")
	v.SetDefault("WITHDRAWAL.LOCK_TTL", "10s")
	v.SetDefault("TASKS.EXPIRY_SPEC", "@every 1m")
	v.SetDefault("TASKS.PRICE_REFRESH_SPEC", "@every 30s")
	v.SetDefault("TASKS.CONCURRENCY", 5)
}

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := unmarshal(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to decode config: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// Parse decodes a yaml document on top of the defaults.
func Parse(in string) (*Config, error) {
	v := viper.New()
	v.SetConfigType(configType)
	setDefaults(v)
	if err := v.ReadConfig(strings.NewReader(in)); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Ledger.BaseCurrency = strings.ToUpper(cfg.Ledger.BaseCurrency)
	cfg.PriceFeed.Fallback = upperKeys(cfg.PriceFeed.Fallback)
	cfg.PriceFeed.SymbolIDs = upperKeys(cfg.PriceFeed.SymbolIDs)

	return &cfg, nil
}

func upperKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = v
	}
	return out
}
