package chain

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

var (
	ErrInvalidConfig = errors.New("invalid chain client configuration")
	ErrNoEndpoints   = errors.New("no chain RPC endpoints configured")
)

const (
	DefaultGasLimit       uint64 = 1_000_000
	DefaultHeightQuorum          = 4
	DefaultRequestTimeout        = 10 * time.Second

	// gas price headroom against price movement before inclusion
	gasPriceMultiplier = 2
)

type Config struct {
	RPCURLs         []string
	ContractAddress common.Address
	// PrivateKey is the hex ECDSA key of the coordinator, with or without 0x.
	PrivateKey string
	// ChainID of zero means ask the node once and cache the answer.
	ChainID        uint64
	GasLimit       uint64
	HeightQuorum   int
	ProofMethod    string
	RequestTimeout time.Duration

	// Retry bounds every read. SignRetry bounds transaction signing.
	Retry     *retry.RetryConfig
	SignRetry *retry.RetryConfig

	HTTPClient *http.Client
}

func DefaultReadRetryConfig() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxRetries:      8,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.2,
		LogRetryAttempt: true,
	}
}

func DefaultSignRetryConfig() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

func (c *Config) applyDefaults() {
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	if c.HeightQuorum <= 0 {
		c.HeightQuorum = DefaultHeightQuorum
	}
	if c.ProofMethod == "" {
		c.ProofMethod = DefaultProofMethod
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Retry == nil {
		c.Retry = DefaultReadRetryConfig()
	}
	if c.SignRetry == nil {
		c.SignRetry = DefaultSignRetryConfig()
	}
}

func (c *Config) Validate() error {
	if len(c.RPCURLs) == 0 {
		return ErrNoEndpoints
	}
	if c.ContractAddress == (common.Address{}) {
		return fmt.Errorf("%w: contract address is empty", ErrInvalidConfig)
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("%w: private key is empty", ErrInvalidConfig)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: read retry: %v", ErrInvalidConfig, err)
	}
	if err := c.SignRetry.Validate(); err != nil {
		return fmt.Errorf("%w: sign retry: %v", ErrInvalidConfig, err)
	}
	return nil
}
