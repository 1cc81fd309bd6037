package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

// BroadcastError means a signed transaction could not be confirmed as sent.
// The network may still have accepted it, so callers must not blindly resend.
type BroadcastError struct {
	TxHash common.Hash
	Nonce  uint64
	Err    error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast of tx %s (nonce %d) failed: %v", e.TxHash.Hex(), e.Nonce, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// BuildProofTransaction encodes the proof call, fetches a fresh nonce and gas price and
// signs the result. Signing is retried, nothing is sent.
func (c *Client) BuildProofTransaction(ctx context.Context, taskKey [32]byte, proof []byte) (*types.PendingTransaction, *ethtypes.Transaction, error) {
	data, err := c.contractABI.Pack(c.proofMethod.Name, taskKey, proof)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack %s call: %w", c.proofMethod.Name, err)
	}

	nonce, err := c.AccountNonce(ctx, c.address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, c.config.ContractAddress, big.NewInt(0), c.config.GasLimit, gasPrice, data)

	signed, err := retry.Retry(ctx, func() (*ethtypes.Transaction, error) {
		return c.signTx(tx, chainID)
	}, c.config.SignRetry, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	v, r, s := signed.RawSignatureValues()
	signature := make([]byte, 0, 65)
	signature = append(signature, common.LeftPadBytes(r.Bytes(), 32)...)
	signature = append(signature, common.LeftPadBytes(s.Bytes(), 32)...)
	signature = append(signature, v.Bytes()...)

	pending := &types.PendingTransaction{
		Nonce:     nonce,
		GasPrice:  gasPrice,
		GasLimit:  c.config.GasLimit,
		Data:      data,
		To:        c.config.ContractAddress,
		Signature: signature,
		Hash:      signed.Hash(),
	}
	return pending, signed, nil
}

// SubmitProof signs and broadcasts the proof transaction for taskKey.
// The broadcast is attempted exactly once; failure comes back as *BroadcastError.
func (c *Client) SubmitProof(ctx context.Context, taskKey [32]byte, proof []byte) (common.Hash, error) {
	pending, signed, err := c.BuildProofTransaction(ctx, taskKey, proof)
	if err != nil {
		return common.Hash{}, err
	}

	endpoint := c.endpoints[c.pick()]
	sendCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if err := endpoint.Backend.SendTransaction(sendCtx, signed); err != nil {
		c.logger.Error("Proof transaction broadcast failed",
			"task_key", common.Bytes2Hex(taskKey[:]),
			"tx_hash", pending.Hash.Hex(),
			"nonce", pending.Nonce,
			"endpoint", endpoint.URL,
			"error", err)
		return pending.Hash, &BroadcastError{TxHash: pending.Hash, Nonce: pending.Nonce, Err: err}
	}

	c.logger.Info("Proof transaction sent",
		"task_key", common.Bytes2Hex(taskKey[:]),
		"tx_hash", pending.Hash.Hex(),
		"nonce", pending.Nonce,
		"gas_price", pending.GasPrice.String())
	return pending.Hash, nil
}
