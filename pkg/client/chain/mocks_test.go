package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

var errUnavailable = errors.New("endpoint unavailable")

// fakeBackend is an in-memory Backend. A failing backend errors on every call.
type fakeBackend struct {
	mu        sync.Mutex
	failing   bool
	height    uint64
	heightSeq []uint64 // consumed one value per BlockNumber call when set
	nonce     uint64
	gasPrice  *big.Int
	chainID   *big.Int
	logs      []ethtypes.Log
	sendErr   error
	receipts  map[common.Hash]*ethtypes.Receipt

	calls   map[string]int
	sent    []*ethtypes.Transaction
	queries []ethereum.FilterQuery
}

func newFakeBackend(height uint64) *fakeBackend {
	return &fakeBackend{
		height:   height,
		nonce:    7,
		gasPrice: big.NewInt(1_000_000_000),
		chainID:  big.NewInt(11155111),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		calls:    make(map[string]int),
	}
}

func (f *fakeBackend) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.failing {
		return errUnavailable
	}
	return nil
}

func (f *fakeBackend) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if err := f.record("BlockNumber"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heightSeq) > 0 {
		h := f.heightSeq[0]
		f.heightSeq = f.heightSeq[1:]
		return h, nil
	}
	return f.height, nil
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if err := f.record("ChainID"); err != nil {
		return nil, err
	}
	return f.chainID, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := f.record("PendingNonceAt"); err != nil {
		return 0, err
	}
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := f.record("SuggestGasPrice"); err != nil {
		return nil, err
	}
	return f.gasPrice, nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	if err := f.record("FilterLogs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.logs, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if err := f.record("SendTransaction"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if err := f.record("TransactionReceipt"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeBackend) Close() {}

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func fastRetry(attempts int) *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxRetries:    attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func newTestClient(t *testing.T, backends ...*fakeBackend) *Client {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	endpoints := make([]Endpoint, len(backends))
	for i, b := range backends {
		endpoints[i] = Endpoint{URL: "http://node" + string(rune('a'+i)) + ":8545", Backend: b}
	}

	client, err := NewClientWithEndpoints(logging.NewNoOpLogger(), Config{
		ContractAddress: testContract,
		PrivateKey:      common.Bytes2Hex(crypto.FromECDSA(key)),
		HeightQuorum:    4,
		Retry:           fastRetry(len(backends) * 2),
		SignRetry:       fastRetry(3),
	}, endpoints)
	require.NoError(t, err)
	return client
}
