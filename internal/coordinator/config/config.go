// Package config builds the coordinator's immutable configuration from defaults, an optional
// YAML file, .env, the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/trigg3rX/proof-coordinator/pkg/env"
	"github.com/trigg3rX/proof-coordinator/pkg/yaml"
)

const (
	StatusBackendMemory = "memory"
	StatusBackendRedis  = "redis"
)

type Config struct {
	DevMode bool   `yaml:"dev"`
	LogDir  string `yaml:"log_dir"`

	PrivateKey      string   `yaml:"private_key" validate:"required,private_key"`
	ContractAddress string   `yaml:"contract" validate:"required,eth_address"`
	RPCURLs         []string `yaml:"rpc" validate:"required,url"`
	ChainID         uint64   `yaml:"chain_id"`
	ProofMethod     string   `yaml:"proof_method" validate:"required"`
	GasLimit        uint64   `yaml:"gas_limit" validate:"min=21000"`
	HeightQuorum    int      `yaml:"height_quorum" validate:"min=1"`

	SchedulerURL string   `yaml:"scheduler" validate:"required,url"`
	ListenAddr   string   `yaml:"api" validate:"required,listen_addr"`
	CORSOrigins  []string `yaml:"cors_origins"`

	StartBlock        uint64        `yaml:"start_num"`
	BatchWidth        uint64        `yaml:"batch_width" validate:"min=1"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MonitorRetryDelay time.Duration `yaml:"monitor_retry_delay"`

	ProjectID       string        `yaml:"project_id" validate:"required"`
	SegmentCount    int           `yaml:"segment_count" validate:"min=1,max=1024"`
	Priority        string        `yaml:"priority" validate:"required"`
	DispatchRetries int           `yaml:"dispatch_retries" validate:"min=0,max=100"`
	DispatchBackoff time.Duration `yaml:"dispatch_backoff"`

	ReceiptPollAttempts int           `yaml:"receipt_poll_attempts" validate:"min=1"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	ExpiryOffset        uint64        `yaml:"expiry_offset" validate:"min=1"`

	StatusBackend string        `yaml:"status_backend" validate:"oneof=memory|redis"`
	RedisURL      string        `yaml:"redis_url"`
	StatusTTL     time.Duration `yaml:"status_ttl"`

	MirrorBackend  string   `yaml:"mirror_backend" validate:"oneof=postgres|scylla"`
	PostgresDSN    string   `yaml:"postgres_dsn"`
	ScyllaHosts    []string `yaml:"scylla_hosts"`
	ScyllaKeyspace string   `yaml:"scylla_keyspace"`

	RestartDelay    time.Duration `yaml:"restart_delay"`
	MaxRestartDelay time.Duration `yaml:"max_restart_delay"`
}

func Default() Config {
	return Config{
		LogDir:              "data",
		ProofMethod:         "proveTask",
		GasLimit:            1_000_000,
		HeightQuorum:        4,
		ListenAddr:          ":3030",
		BatchWidth:          10,
		PollInterval:        2 * time.Second,
		MonitorRetryDelay:   2 * time.Second,
		ProjectID:           "demo",
		SegmentCount:        4,
		Priority:            "1",
		DispatchRetries:     1,
		DispatchBackoff:     500 * time.Millisecond,
		ReceiptPollAttempts: 10,
		ReceiptPollInterval: 3 * time.Second,
		ExpiryOffset:        2000,
		StatusBackend:       StatusBackendMemory,
		StatusTTL:           7 * 24 * time.Hour,
		ScyllaKeyspace:      "proofs",
		RestartDelay:        time.Second,
		MaxRestartDelay:     30 * time.Second,
	}
}

// Load returns defaults overlaid with configFile (when non-empty), dotenvFile (when present)
// and the process environment. The result is not yet validated.
func Load(configFile, dotenvFile string) (Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := yaml.LoadYAML(configFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dotenvFile != "" {
		// godotenv never overrides variables that are already set
		if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("error loading %s: %w", dotenvFile, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DevMode = env.GetEnvBool("DEV_MODE", c.DevMode)
	c.LogDir = env.GetEnvString("LOG_DIR", c.LogDir)

	c.PrivateKey = env.GetEnvString("PRIVATE_KEY", c.PrivateKey)
	c.ContractAddress = env.GetEnvString("CONTRACT_ADDRESS", c.ContractAddress)
	c.RPCURLs = env.GetEnvStringSlice("RPC_URLS", c.RPCURLs)
	c.ChainID = env.GetEnvUint64("CHAIN_ID", c.ChainID)
	c.ProofMethod = env.GetEnvString("PROOF_METHOD", c.ProofMethod)
	c.GasLimit = env.GetEnvUint64("GAS_LIMIT", c.GasLimit)
	c.HeightQuorum = env.GetEnvInt("HEIGHT_QUORUM", c.HeightQuorum)

	c.SchedulerURL = env.GetEnvString("SCHEDULER_URL", c.SchedulerURL)
	c.ListenAddr = env.GetEnvString("API_ADDR", c.ListenAddr)
	c.CORSOrigins = env.GetEnvStringSlice("CORS_ORIGINS", c.CORSOrigins)

	c.StartBlock = env.GetEnvUint64("START_BLOCK", c.StartBlock)
	c.BatchWidth = env.GetEnvUint64("BATCH_WIDTH", c.BatchWidth)
	c.PollInterval = env.GetEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.MonitorRetryDelay = env.GetEnvDuration("MONITOR_RETRY_DELAY", c.MonitorRetryDelay)

	c.ProjectID = env.GetEnvString("PROJECT_ID", c.ProjectID)
	c.SegmentCount = env.GetEnvInt("SEGMENT_COUNT", c.SegmentCount)
	c.Priority = env.GetEnvString("TASK_PRIORITY", c.Priority)
	c.DispatchRetries = env.GetEnvInt("DISPATCH_RETRIES", c.DispatchRetries)
	c.DispatchBackoff = env.GetEnvDuration("DISPATCH_BACKOFF", c.DispatchBackoff)

	c.ReceiptPollAttempts = env.GetEnvInt("RECEIPT_POLL_ATTEMPTS", c.ReceiptPollAttempts)
	c.ReceiptPollInterval = env.GetEnvDuration("RECEIPT_POLL_INTERVAL", c.ReceiptPollInterval)
	c.ExpiryOffset = env.GetEnvUint64("EXPIRY_OFFSET", c.ExpiryOffset)

	c.StatusBackend = env.GetEnvString("STATUS_BACKEND", c.StatusBackend)
	c.RedisURL = env.GetEnvString("REDIS_URL", c.RedisURL)
	c.StatusTTL = env.GetEnvDuration("STATUS_TTL", c.StatusTTL)

	c.MirrorBackend = env.GetEnvString("MIRROR_BACKEND", c.MirrorBackend)
	c.PostgresDSN = env.GetEnvString("POSTGRES_DSN", c.PostgresDSN)
	c.ScyllaHosts = env.GetEnvStringSlice("SCYLLA_HOSTS", c.ScyllaHosts)
	c.ScyllaKeyspace = env.GetEnvString("SCYLLA_KEYSPACE", c.ScyllaKeyspace)

	c.RestartDelay = env.GetEnvDuration("RESTART_DELAY", c.RestartDelay)
	c.MaxRestartDelay = env.GetEnvDuration("MAX_RESTART_DELAY", c.MaxRestartDelay)
}

func (c Config) Validate() error {
	if err := yaml.Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	positive := map[string]time.Duration{
		"poll_interval":         c.PollInterval,
		"monitor_retry_delay":   c.MonitorRetryDelay,
		"dispatch_backoff":      c.DispatchBackoff,
		"receipt_poll_interval": c.ReceiptPollInterval,
		"restart_delay":         c.RestartDelay,
		"max_restart_delay":     c.MaxRestartDelay,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %v", name, d)
		}
	}
	if c.MaxRestartDelay < c.RestartDelay {
		return fmt.Errorf("invalid config: max_restart_delay %v is below restart_delay %v", c.MaxRestartDelay, c.RestartDelay)
	}

	if c.StatusBackend == StatusBackendRedis && c.RedisURL == "" {
		return fmt.Errorf("invalid config: status backend redis requires redis_url")
	}
	if c.StatusTTL < 0 {
		return fmt.Errorf("invalid config: status_ttl cannot be negative")
	}
	return nil
}

// Redacted is safe to log.
func (c Config) Redacted() Config {
	if c.PrivateKey != "" {
		c.PrivateKey = "<redacted>"
	}
	if c.PostgresDSN != "" {
		c.PostgresDSN = "<redacted>"
	}
	if c.RedisURL != "" {
		c.RedisURL = "<redacted>"
	}
	c.RPCURLs = redactAll(c.RPCURLs)
	return c
}

func redactAll(urls []string) []string {
	if len(urls) == 0 {
		return urls
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = "<redacted>"
	}
	return out
}
