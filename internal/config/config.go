// Package config loads runtime configuration from an optional YAML file,
// ROYALTY_* environment variables, a .env file and command-line flags.
//
// Precedence, highest first: changed flags, environment, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ROYALTY_POSTGRES_DSN.
const EnvPrefix = "ROYALTY"

// Config is the full runtime configuration.
type Config struct {
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	ClickHouse     ClickHouseConfig     `mapstructure:"clickhouse"`
	Solana         SolanaConfig         `mapstructure:"solana"`
	FeeSource      FeeSourceConfig      `mapstructure:"fee_source"`
	Accrual        AccrualConfig        `mapstructure:"accrual"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	OutputDir      string               `mapstructure:"output_dir"`
	UseMemory      bool                 `mapstructure:"use_memory"` // in-memory stores, no databases
	Verbose        bool                 `mapstructure:"verbose"`
}

// PostgresConfig holds the ledger database connection.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ClickHouseConfig holds the audit history connection. Empty DSN keeps
// audit history in Postgres.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SolanaConfig holds RPC endpoints used by the fee source and watcher.
type SolanaConfig struct {
	RPCEndpoint string  `mapstructure:"rpc_endpoint"`
	WSEndpoint  string  `mapstructure:"ws_endpoint"` // empty disables the account watcher
	RPCRPS      float64 `mapstructure:"rpc_rps"`     // 0 disables rate limiting
	RPCBurst    int     `mapstructure:"rpc_burst"`
	Commitment  string  `mapstructure:"commitment"`
	ProgramID   string  `mapstructure:"program_id"` // owner of fee vault PDAs
}

// FeeSourceConfig describes where the lifetime counter lives in account data.
type FeeSourceConfig struct {
	CounterOffset int `mapstructure:"counter_offset"`
}

// AccrualConfig controls accrual job runs.
type AccrualConfig struct {
	JobName     string        `mapstructure:"job_name"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

// ReconciliationConfig controls the auditor.
type ReconciliationConfig struct {
	ConfirmAfter int           `mapstructure:"confirm_after"`
	Interval     time.Duration `mapstructure:"interval"` // cmd/server audit loop, 0 disables
}

// HTTPConfig controls the reporting API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"verbose":        "verbose",
	"use-memory":     "use_memory",
	"postgres-dsn":   "postgres.dsn",
	"clickhouse-dsn": "clickhouse.dsn",
	"rpc-endpoint":   "solana.rpc_endpoint",
	"ws-endpoint":    "solana.ws_endpoint",
	"rpc-rps":        "solana.rpc_rps",
	"program-id":     "solana.program_id",
	"counter-offset": "fee_source.counter_offset",
	"job-name":       "accrual.job_name",
	"interval":       "accrual.interval",
	"concurrency":    "accrual.concurrency",
	"confirm-after":  "reconciliation.confirm_after",
	"audit-interval": "reconciliation.interval",
	"http-addr":      "http.addr",
	"output-dir":     "output_dir",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("solana.rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.ws_endpoint", "")
	v.SetDefault("solana.rpc_rps", 10.0)
	v.SetDefault("solana.rpc_burst", 5)
	v.SetDefault("solana.commitment", "finalized")
	v.SetDefault("solana.program_id", "")
	v.SetDefault("fee_source.counter_offset", 8)
	v.SetDefault("accrual.job_name", "fee_accrual")
	v.SetDefault("accrual.interval", 5*time.Minute)
	v.SetDefault("accrual.concurrency", 8)
	v.SetDefault("reconciliation.confirm_after", 2)
	v.SetDefault("reconciliation.interval", time.Duration(0))
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("output_dir", "reports")
	v.SetDefault("use_memory", false)
	v.SetDefault("verbose", false)
}

// RegisterFlags adds the shared flags to a command's flag set. Commands add
// their own flags alongside.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to YAML config file (or set ROYALTY_CONFIG env var)")
	flags.Bool("verbose", false, "enable verbose (debug) logging")
	flags.Bool("use-memory", false, "use in-memory stores instead of databases")
	flags.String("postgres-dsn", "", "PostgreSQL DSN (or set ROYALTY_POSTGRES_DSN env var)")
	flags.String("clickhouse-dsn", "", "ClickHouse DSN for audit history (or set ROYALTY_CLICKHOUSE_DSN env var)")
	flags.String("rpc-endpoint", "", "Solana JSON-RPC endpoint")
	flags.String("ws-endpoint", "", "Solana WebSocket endpoint")
	flags.Float64("rpc-rps", 0, "max Solana RPC requests per second")
	flags.String("program-id", "", "program owning fee vault accounts")
	flags.Int("counter-offset", 0, "byte offset of the lifetime fee counter in account data")
	flags.String("job-name", "", "accrual job name (also the run lock name)")
	flags.Duration("interval", 0, "accrual interval")
	flags.Int("concurrency", 0, "tokens processed in parallel per run")
	flags.Int("confirm-after", 0, "consecutive audits before a conservation mismatch is confirmed")
	flags.Duration("audit-interval", 0, "interval of persisted reconciliation audits in cmd/server (0 disables)")
	flags.String("http-addr", "", "HTTP listen address")
	flags.String("output-dir", "", "report output directory")
}

// Load builds the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv(EnvPrefix + "_CONFIG")
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and required settings.
func (c *Config) Validate() error {
	if !c.UseMemory && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required unless use_memory is set")
	}
	if c.Accrual.JobName == "" {
		return errors.New("accrual.job_name is required")
	}
	if c.Accrual.Interval <= 0 {
		return errors.New("accrual.interval must be greater than 0")
	}
	if c.Accrual.Concurrency < 1 {
		return errors.New("accrual.concurrency must be at least 1")
	}
	if c.Reconciliation.ConfirmAfter < 1 {
		return errors.New("reconciliation.confirm_after must be at least 1")
	}
	if c.Reconciliation.Interval < 0 {
		return errors.New("reconciliation.interval must not be negative")
	}
	if c.FeeSource.CounterOffset < 0 {
		return errors.New("fee_source.counter_offset must not be negative")
	}
	if c.Solana.RPCRPS < 0 {
		return errors.New("solana.rpc_rps must not be negative")
	}
	return nil
}
