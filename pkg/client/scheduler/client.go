package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

// DeliverTaskMethod keeps the scheduler's spelling.
const DeliverTaskMethod = "DelieveTask"

var ErrInvalidConfig = errors.New("invalid scheduler client configuration")

type Config struct {
	URL            string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client delivers segments to the proving cluster scheduler over JSON-RPC.
// It makes a single attempt per call; retry policy belongs to the caller.
type Client struct {
	logger logging.Logger
	config Config

	mu        sync.Mutex
	rpcClient *rpc.Client
}

func NewClient(logger logging.Logger, cfg Config) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: scheduler URL cannot be empty", ErrInvalidConfig)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Client{
		logger: logger.With("component", "scheduler_client"),
		config: cfg,
	}, nil
}

func (c *Client) client(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		return c.rpcClient, nil
	}
	var opts []rpc.ClientOption
	if c.config.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(c.config.HTTPClient))
	}
	rpcClient, err := rpc.DialOptions(ctx, c.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial scheduler RPC: %w", err)
	}
	c.rpcClient = rpcClient
	return rpcClient, nil
}

// Deliver sends one DispatchRequest and returns the scheduler's raw answer.
func (c *Client) Deliver(ctx context.Context, req types.DispatchRequest) (json.RawMessage, error) {
	rpcClient, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var result json.RawMessage
	if err := rpcClient.CallContext(callCtx, &result, DeliverTaskMethod, req.Params()...); err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", DeliverTaskMethod, req.CompositeKey, err)
	}

	c.logger.Debug("Segment delivered to scheduler",
		"request_id", requestID,
		"composite_key", req.CompositeKey,
		"response", string(result))
	return result, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}
