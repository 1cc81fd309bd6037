package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

func TestNewClientWithEndpoints_Validation(t *testing.T) {
	logger := logging.NewNoOpLogger()
	endpoints := []Endpoint{{URL: "http://node:8545", Backend: newFakeBackend(1)}}

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewClientWithEndpoints(nil, Config{}, endpoints)
		assert.EqualError(t, err, "logger cannot be nil")
	})

	t.Run("no endpoints", func(t *testing.T) {
		_, err := NewClientWithEndpoints(logger, Config{}, nil)
		assert.ErrorIs(t, err, ErrNoEndpoints)
	})

	t.Run("missing contract", func(t *testing.T) {
		_, err := NewClientWithEndpoints(logger, Config{PrivateKey: "01"}, endpoints)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := NewClientWithEndpoints(logger, Config{ContractAddress: testContract, PrivateKey: "zz"}, endpoints)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown proof method", func(t *testing.T) {
		_, err := NewClientWithEndpoints(logger, Config{
			ContractAddress: testContract,
			PrivateKey:      "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
			ProofMethod:     "finalize",
		}, endpoints)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestClient_Address_DerivedFromKey(t *testing.T) {
	client, err := NewClientWithEndpoints(logging.NewNoOpLogger(), Config{
		ContractAddress: testContract,
		PrivateKey:      "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	}, []Endpoint{{URL: "http://node:8545", Backend: newFakeBackend(1)}})
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), client.Address())
	assert.Equal(t, testContract, client.ContractAddress())
}

func TestCurrentBlockHeight_ReturnsQuorumMinimum(t *testing.T) {
	backend := newFakeBackend(0)
	backend.heightSeq = []uint64{120, 118, 121, 119}
	client := newTestClient(t, backend)

	height, err := client.CurrentBlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(118), height)
	assert.Equal(t, 4, backend.count("BlockNumber"))
}

func TestCurrentBlockHeight_RotatesPastFailingEndpoint(t *testing.T) {
	bad := newFakeBackend(500)
	bad.failing = true
	good := newFakeBackend(100)
	client := newTestClient(t, bad, good)

	height, err := client.CurrentBlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), height)
	assert.Equal(t, 4, good.count("BlockNumber"))
}

func TestCurrentBlockHeight_AllEndpointsDown_ReturnsTimeoutError(t *testing.T) {
	a := newFakeBackend(1)
	a.failing = true
	b := newFakeBackend(1)
	b.failing = true
	client := newTestClient(t, a, b)

	_, err := client.CurrentBlockHeight(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.ErrorIs(t, err, errUnavailable)
}

func TestGasPrice_DoublesNetworkPrice(t *testing.T) {
	backend := newFakeBackend(1)
	backend.gasPrice = big.NewInt(3_000_000_000)
	client := newTestClient(t, backend)

	price, err := client.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(6_000_000_000), price)
}

func TestAccountNonce(t *testing.T) {
	backend := newFakeBackend(1)
	backend.nonce = 42
	client := newTestClient(t, backend)

	nonce, err := client.AccountNonce(context.Background(), client.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), nonce)
}

func TestFilterTaskLogs_BuildsContractQuery(t *testing.T) {
	backend := newFakeBackend(1)
	client := newTestClient(t, backend)

	_, err := client.FilterTaskLogs(context.Background(), 101, 110)
	require.NoError(t, err)

	require.Len(t, backend.queries, 1)
	q := backend.queries[0]
	assert.Equal(t, big.NewInt(101), q.FromBlock)
	assert.Equal(t, big.NewInt(110), q.ToBlock)
	assert.Equal(t, []common.Address{testContract}, q.Addresses)
	require.Len(t, q.Topics, 1)

	decoder, err := NewEventDecoder()
	require.NoError(t, err)
	assert.Equal(t, [][]common.Hash{{decoder.Topic()}}, q.Topics)
}

func TestChainID_FetchedOnceAndCached(t *testing.T) {
	backend := newFakeBackend(1)
	client := newTestClient(t, backend)

	for i := 0; i < 3; i++ {
		id, err := client.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(11155111), id)
	}
	assert.Equal(t, 1, backend.count("ChainID"))
}

func TestSubmitProof_SignsAndBroadcastsOnce(t *testing.T) {
	backend := newFakeBackend(1)
	backend.nonce = 9
	client := newTestClient(t, backend)

	var taskKey [32]byte
	taskKey[0] = 0xaa
	proof := []byte("proof-bytes")

	hash, err := client.SubmitProof(context.Background(), taskKey, proof)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(9), tx.Nonce())
	assert.Equal(t, DefaultGasLimit, tx.Gas())
	assert.Equal(t, big.NewInt(2_000_000_000), tx.GasPrice())
	assert.Equal(t, testContract, *tx.To())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	assert.Equal(t, client.Address(), sender)

	args, err := client.contractABI.Methods[DefaultProofMethod].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, taskKey, args[0])
	assert.Equal(t, proof, args[1])
}

func TestSubmitProof_BroadcastFailureIsNotRetried(t *testing.T) {
	backend := newFakeBackend(1)
	backend.sendErr = errors.New("connection reset")
	client := newTestClient(t, backend)

	hash, err := client.SubmitProof(context.Background(), [32]byte{1}, []byte("p"))
	require.Error(t, err)

	var broadcastErr *BroadcastError
	require.ErrorAs(t, err, &broadcastErr)
	assert.Equal(t, hash, broadcastErr.TxHash)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Equal(t, 1, backend.count("SendTransaction"))
}

func TestSubmitProof_RetriesTransientSigningFailures(t *testing.T) {
	backend := newFakeBackend(1)
	client := newTestClient(t, backend)

	sign := client.signTx
	failures := 2
	client.signTx = func(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("signer busy")
		}
		return sign(tx, chainID)
	}

	_, err := client.SubmitProof(context.Background(), [32]byte{2}, []byte("p"))
	require.NoError(t, err)
	assert.Equal(t, 0, failures)
	assert.Len(t, backend.sent, 1)
}

func TestSubmitProof_SigningExhausted(t *testing.T) {
	backend := newFakeBackend(1)
	client := newTestClient(t, backend)
	client.signTx = func(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
		return nil, errors.New("signer unavailable")
	}

	_, err := client.SubmitProof(context.Background(), [32]byte{3}, []byte("p"))
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Equal(t, 0, backend.count("SendTransaction"))
}

func TestAwaitReceipt(t *testing.T) {
	backend := newFakeBackend(1)
	client := newTestClient(t, backend)

	known := common.HexToHash("0x01")
	backend.receipts[known] = &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: known}

	receipt, err := client.AwaitReceipt(context.Background(), known, fastRetry(2))
	require.NoError(t, err)
	assert.Equal(t, known, receipt.TxHash)

	_, err = client.AwaitReceipt(context.Background(), common.HexToHash("0x02"), fastRetry(3))
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Equal(t, 4, backend.count("TransactionReceipt"))
}
