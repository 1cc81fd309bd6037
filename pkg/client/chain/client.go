package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

// Client wraps read and write access to the chain over a set of endpoints.
// Each call starts on a random endpoint and rotates to the next one on failure.
type Client struct {
	logger    logging.Logger
	config    Config
	endpoints []Endpoint

	privateKey *ecdsa.PrivateKey
	address    common.Address

	contractABI abi.ABI
	proofMethod abi.Method
	eventTopic  common.Hash

	chainIDMu sync.Mutex
	chainID   *big.Int

	// signTx is swapped in tests to simulate signer failures.
	signTx func(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// NewClient dials every configured endpoint.
func NewClient(ctx context.Context, logger logging.Logger, cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoints, err := DialEndpoints(ctx, cfg.RPCURLs, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	return NewClientWithEndpoints(logger, cfg, endpoints)
}

// NewClientWithEndpoints builds a client over already connected backends.
func NewClientWithEndpoints(logger logging.Logger, cfg Config, endpoints []Endpoint) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if len(cfg.RPCURLs) == 0 {
		for _, e := range endpoints {
			cfg.RPCURLs = append(cfg.RPCURLs, e.URL)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrInvalidConfig, err)
	}

	contractABI, err := ContractABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	method, err := proofMethod(contractABI, cfg.ProofMethod)
	if err != nil {
		return nil, err
	}

	c := &Client{
		logger:      logger.With("component", "chain_client"),
		config:      cfg,
		endpoints:   endpoints,
		privateKey:  privateKey,
		address:     crypto.PubkeyToAddress(privateKey.PublicKey),
		contractABI: contractABI,
		proofMethod: method,
		eventTopic:  contractABI.Events[TaskSubmittedEvent].ID,
	}
	if cfg.ChainID != 0 {
		c.chainID = new(big.Int).SetUint64(cfg.ChainID)
	}
	c.signTx = func(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
		return ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), c.privateKey)
	}
	return c, nil
}

// Address is the coordinator account derived from the private key.
func (c *Client) Address() common.Address {
	return c.address
}

func (c *Client) ContractAddress() common.Address {
	return c.config.ContractAddress
}

func (c *Client) PrivateKey() *ecdsa.PrivateKey {
	return c.privateKey
}

func (c *Client) Close() {
	for _, e := range c.endpoints {
		e.Backend.Close()
	}
}

func (c *Client) pick() int {
	return rand.Intn(len(c.endpoints))
}

// withEndpoint runs fn under retryConfig, moving to the next endpoint after every failure.
func withEndpoint[T any](ctx context.Context, c *Client, op string, retryConfig *retry.RetryConfig, fn func(context.Context, Backend) (T, error)) (T, error) {
	idx := c.pick()
	attempt := func() (T, error) {
		endpoint := c.endpoints[idx%len(c.endpoints)]
		callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()

		result, err := fn(callCtx, endpoint.Backend)
		if err != nil {
			c.logger.Debug("Chain RPC call failed, rotating endpoint", "op", op, "endpoint", endpoint.URL, "error", err)
			idx++
			var zero T
			return zero, fmt.Errorf("%s via %s: %w", op, endpoint.URL, err)
		}
		return result, nil
	}
	return retry.Retry(ctx, attempt, retryConfig, c.logger)
}

// CurrentBlockHeight samples HeightQuorum endpoints concurrently and returns the lowest
// height reported, so a node that is ahead on a fork is never trusted alone.
func (c *Client) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	quorum := c.config.HeightQuorum
	heights := make([]uint64, quorum)
	errs := make([]error, quorum)

	var wg sync.WaitGroup
	for i := 0; i < quorum; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			heights[i], errs[i] = withEndpoint(ctx, c, "eth_blockNumber", c.config.Retry, func(ctx context.Context, b Backend) (uint64, error) {
				return b.BlockNumber(ctx)
			})
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("failed to sample block height: %w", err)
	}

	lowest := heights[0]
	for _, h := range heights[1:] {
		if h < lowest {
			lowest = h
		}
	}
	return lowest, nil
}

// AccountNonce returns the pending nonce of address.
func (c *Client) AccountNonce(ctx context.Context, address common.Address) (uint64, error) {
	return withEndpoint(ctx, c, "eth_getTransactionCount", c.config.Retry, func(ctx context.Context, b Backend) (uint64, error) {
		return b.PendingNonceAt(ctx, address)
	})
}

// GasPrice is twice the price suggested by the network.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := withEndpoint(ctx, c, "eth_gasPrice", c.config.Retry, func(ctx context.Context, b Backend) (*big.Int, error) {
		return b.SuggestGasPrice(ctx)
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(price, big.NewInt(gasPriceMultiplier)), nil
}

// FilterTaskLogs returns TaskSubmitted logs of the contract in [from, to].
func (c *Client) FilterTaskLogs(ctx context.Context, from, to uint64) ([]ethtypes.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.config.ContractAddress},
		Topics:    [][]common.Hash{{c.eventTopic}},
	}
	return withEndpoint(ctx, c, "eth_getLogs", c.config.Retry, func(ctx context.Context, b Backend) ([]ethtypes.Log, error) {
		return b.FilterLogs(ctx, query)
	})
}

// ChainID returns the configured chain id or asks the network once.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.Lock()
	defer c.chainIDMu.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := withEndpoint(ctx, c, "eth_chainId", c.config.Retry, func(ctx context.Context, b Backend) (*big.Int, error) {
		return b.ChainID(ctx)
	})
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// TransactionReceipt looks the receipt up once per endpoint attempt under the read policy.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return c.AwaitReceipt(ctx, hash, c.config.Retry)
}

// AwaitReceipt polls for the receipt of hash until it appears or pollConfig is exhausted.
// A node answering "not found" counts as a failed attempt.
func (c *Client) AwaitReceipt(ctx context.Context, hash common.Hash, pollConfig *retry.RetryConfig) (*ethtypes.Receipt, error) {
	return withEndpoint(ctx, c, "eth_getTransactionReceipt", pollConfig, func(ctx context.Context, b Backend) (*ethtypes.Receipt, error) {
		receipt, err := b.TransactionReceipt(ctx, hash)
		if err == nil && receipt == nil {
			return nil, ethereum.NotFound
		}
		return receipt, err
	})
}
