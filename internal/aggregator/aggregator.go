// Package aggregator folds proof results into segment status and submits the final proof
// on-chain once a task is complete.
package aggregator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/metrics"
	"github.com/trigg3rX/proof-coordinator/internal/taskstatus"
	"github.com/trigg3rX/proof-coordinator/pkg/client/chain"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const (
	DefaultReceiptPollAttempts = 10
	DefaultReceiptPollInterval = 3 * time.Second
)

type ProofSubmitter interface {
	SubmitProof(ctx context.Context, taskKey [32]byte, proof []byte) (common.Hash, error)
	AwaitReceipt(ctx context.Context, hash common.Hash, pollConfig *retry.RetryConfig) (*ethtypes.Receipt, error)
}

type ResultSource interface {
	Pop(ctx context.Context) (types.ProofResult, error)
}

// Outcome is what Process did with one proof result.
type Outcome int

const (
	OutcomeRecorded Outcome = iota
	OutcomeSubmitted
	OutcomeDuplicate
	OutcomeMalformed
	OutcomeSubmitFailed
	OutcomeStranded
	OutcomeStoreError
	OutcomeReverted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeSubmitFailed:
		return "submit_failed"
	case OutcomeStranded:
		return "stranded"
	case OutcomeStoreError:
		return "store_error"
	case OutcomeReverted:
		return "reverted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Config struct {
	ProjectID           string
	SegmentCount        int
	ReceiptPollAttempts int
	ReceiptPollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProjectID:           "demo",
		SegmentCount:        4,
		ReceiptPollAttempts: DefaultReceiptPollAttempts,
		ReceiptPollInterval: DefaultReceiptPollInterval,
	}
}

type Aggregator struct {
	submitter ProofSubmitter
	store     taskstatus.Store
	mirror    datastore.Mirror
	config    Config
	logger    logging.Logger
	metrics   *metrics.Metrics

	// tasks whose submission failed before anything was signed or broadcast
	retryMu  sync.Mutex
	retrySet map[string]struct{}
}

func NewAggregator(logger logging.Logger, submitter ProofSubmitter, store taskstatus.Store, mirror datastore.Mirror, cfg Config, m *metrics.Metrics) (*Aggregator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if submitter == nil || store == nil {
		return nil, fmt.Errorf("submitter and status store are required")
	}
	if cfg.SegmentCount <= 0 {
		return nil, fmt.Errorf("segment count must be positive, got %d", cfg.SegmentCount)
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = "demo"
	}
	if cfg.ReceiptPollAttempts <= 0 {
		cfg.ReceiptPollAttempts = DefaultReceiptPollAttempts
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = DefaultReceiptPollInterval
	}
	if mirror == nil {
		mirror = datastore.NoopMirror{}
	}
	if m == nil {
		m = metrics.Nop()
	}

	return &Aggregator{
		submitter: submitter,
		store:     store,
		mirror:    mirror,
		config:    cfg,
		logger:    logger.With("component", "proof-aggregator"),
		metrics:   m,
		retrySet:  make(map[string]struct{}),
	}, nil
}

// Run drains source strictly in arrival order until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, source ResultSource) error {
	a.logger.Info("Proof aggregator started", "segments", a.config.SegmentCount)
	for {
		result, err := source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("Proof aggregator stopped")
				return nil
			}
			return fmt.Errorf("pop proof queue: %w", err)
		}
		outcome := a.Process(ctx, result)
		a.logger.Debug("Proof result processed", "task_id", result.TaskID, "outcome", outcome.String())
	}
}

func (a *Aggregator) Process(ctx context.Context, result types.ProofResult) Outcome {
	a.metrics.ProofsReceived.Inc()

	ref, err := types.ParseTaskID(result.TaskID)
	if err != nil {
		return a.malformed(result, err)
	}
	taskKey, err := types.DecodeTaskKey(ref.TaskID)
	if err != nil {
		return a.malformed(result, err)
	}
	// one spelling per task, matching the dispatcher's keys
	ref.TaskID = hex.EncodeToString(taskKey[:])

	if !ref.IsSegment() {
		a.logger.Info("Whole-task proof received", "task_id", ref.TaskID)
		return a.submit(ctx, ref.TaskID, taskKey, result)
	}

	if ref.Segment >= a.config.SegmentCount {
		return a.malformed(result, &types.MalformedTaskIDError{
			Raw:    result.TaskID,
			Reason: fmt.Sprintf("segment %d outside [0,%d)", ref.Segment, a.config.SegmentCount),
		})
	}
	return a.processSegment(ctx, ref, taskKey, result)
}

func (a *Aggregator) processSegment(ctx context.Context, ref types.TaskRef, taskKey [32]byte, result types.ProofResult) Outcome {
	logger := a.logger.With("task_id", ref.TaskID, "segment", ref.Segment)
	id := types.SegmentIdentity{ProjectID: a.config.ProjectID, TaskID: ref.TaskID, Segment: ref.Segment}

	status, err := taskstatus.Lookup(ctx, a.store, id)
	switch {
	case err == nil && status == types.TaskStatusProven:
		if a.awaitingRetry(ref.TaskID) {
			return a.resubmit(ctx, logger, ref, taskKey, result)
		}
		a.metrics.ProofsDuplicate.Inc()
		logger.Warn("Segment already proven, discarding proof")
		return OutcomeDuplicate
	case err != nil && !errors.Is(err, taskstatus.ErrNotFound):
		logger.Error("Failed to read segment status", "error", err)
		return OutcomeStoreError
	case errors.Is(err, taskstatus.ErrNotFound):
		logger.Warn("Proof for a segment that was never dispatched")
	}

	if err := a.store.UpsertStatus(ctx, id, types.TaskStatusProven); err != nil {
		logger.Error("Failed to mark segment proven", "error", err)
		return OutcomeStoreError
	}
	if err := a.mirror.SetSegmentStatus(ctx, a.config.ProjectID, ref.TaskID, ref.Segment, string(types.TaskStatusProven), 100); err != nil {
		logger.Warn("Mirror write failed", "op", "set_segment_status", "error", err)
	}
	logger.Info("Segment proven", "degree", result.Degree)

	complete, err := a.store.AllSegmentsProven(ctx, a.config.ProjectID, ref.TaskID, a.config.SegmentCount)
	if err != nil {
		logger.Error("Failed to check task completion", "error", err)
		return OutcomeStoreError
	}
	if !complete {
		return OutcomeRecorded
	}

	logger.Info("All segments proven, submitting task proof")
	return a.submit(ctx, ref.TaskID, taskKey, result)
}

// resubmit retries a complete task whose previous submission never left the coordinator.
func (a *Aggregator) resubmit(ctx context.Context, logger logging.Logger, ref types.TaskRef, taskKey [32]byte, result types.ProofResult) Outcome {
	complete, err := a.store.AllSegmentsProven(ctx, a.config.ProjectID, ref.TaskID, a.config.SegmentCount)
	if err != nil {
		logger.Error("Failed to check task completion", "error", err)
		return OutcomeStoreError
	}
	if !complete {
		a.metrics.ProofsDuplicate.Inc()
		logger.Warn("Segment already proven, discarding proof")
		return OutcomeDuplicate
	}
	logger.Info("Resubmitting task proof after failed submission")
	return a.submit(ctx, ref.TaskID, taskKey, result)
}

func (a *Aggregator) awaitingRetry(taskID string) bool {
	a.retryMu.Lock()
	defer a.retryMu.Unlock()
	_, ok := a.retrySet[taskID]
	return ok
}

func (a *Aggregator) markRetryable(taskID string, retryable bool) {
	a.retryMu.Lock()
	defer a.retryMu.Unlock()
	if retryable {
		a.retrySet[taskID] = struct{}{}
	} else {
		delete(a.retrySet, taskID)
	}
}

func (a *Aggregator) submit(ctx context.Context, taskID string, taskKey [32]byte, result types.ProofResult) Outcome {
	logger := a.logger.With("task_id", taskID)
	proof := DecodeProofPayload(result.Proof)

	hash, err := a.submitter.SubmitProof(ctx, taskKey, proof)
	if err == nil {
		a.submitted(ctx, logger, taskID, hash, result)
		return OutcomeSubmitted
	}

	var broadcastErr *chain.BroadcastError
	if !errors.As(err, &broadcastErr) {
		// nothing was broadcast, a resent proof may try again
		a.markRetryable(taskID, true)
		a.metrics.SubmissionsFailed.Inc()
		logger.Error("Failed to submit proof", "error", err)
		a.setTaskStatus(ctx, logger, taskID, types.TaskStatusSubmitFailed)
		return OutcomeSubmitFailed
	}
	a.markRetryable(taskID, false)

	// the transaction may have reached the network anyway
	logger.Warn("Broadcast failed, polling for receipt", "tx_hash", broadcastErr.TxHash.Hex(), "error", broadcastErr.Err)
	receipt, rerr := a.submitter.AwaitReceipt(ctx, broadcastErr.TxHash, a.receiptPollConfig())
	if rerr == nil && receipt != nil {
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			a.metrics.SubmissionsFailed.Inc()
			logger.Error("Proof transaction reverted",
				"task_key", taskID,
				"tx_hash", broadcastErr.TxHash.Hex(),
				"block", receipt.BlockNumber)
			a.setTaskStatus(ctx, logger, taskID, types.TaskStatusSubmitFailed)
			return OutcomeReverted
		}
		logger.Info("Receipt found for failed broadcast", "tx_hash", broadcastErr.TxHash.Hex())
		a.submitted(ctx, logger, taskID, broadcastErr.TxHash, result)
		return OutcomeSubmitted
	}

	a.metrics.SubmissionsStranded.Inc()
	logger.Error("Task stranded: broadcast failed and no receipt found",
		"task_key", taskID,
		"tx_hash", broadcastErr.TxHash.Hex(),
		"nonce", broadcastErr.Nonce,
		"error", rerr)
	a.setTaskStatus(ctx, logger, taskID, types.TaskStatusSubmitFailed)
	return OutcomeStranded
}

func (a *Aggregator) submitted(ctx context.Context, logger logging.Logger, taskID string, hash common.Hash, result types.ProofResult) {
	a.markRetryable(taskID, false)
	a.metrics.SubmissionsSucceeded.Inc()
	if !result.ReceivedAt.IsZero() {
		a.metrics.SubmissionLatency.Observe(time.Since(result.ReceivedAt).Seconds())
	}
	logger.Info("Proof submitted", "tx_hash", hash.Hex())
	a.setTaskStatus(ctx, logger, taskID, string(types.TaskStatusProven))
}

func (a *Aggregator) setTaskStatus(ctx context.Context, logger logging.Logger, taskID, status string) {
	if err := a.mirror.SetTaskStatus(ctx, a.config.ProjectID, taskID, status); err != nil {
		logger.Warn("Mirror write failed", "op", "set_task_status", "error", err)
	}
}

func (a *Aggregator) malformed(result types.ProofResult, err error) Outcome {
	a.metrics.ProofsMalformed.Inc()
	a.logger.Error("Discarding proof with malformed task id", "task_id", result.TaskID, "error", err)
	return OutcomeMalformed
}

func (a *Aggregator) receiptPollConfig() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxRetries:      a.config.ReceiptPollAttempts,
		InitialDelay:    a.config.ReceiptPollInterval,
		MaxDelay:        a.config.ReceiptPollInterval * 4,
		BackoffFactor:   1.5,
		JitterFactor:    0.1,
		LogRetryAttempt: false,
	}
}

// DecodeProofPayload returns the bytes to submit: 0x-prefixed hex is decoded, anything
// else is taken verbatim.
func DecodeProofPayload(proof string) []byte {
	if strings.HasPrefix(proof, "0x") || strings.HasPrefix(proof, "0X") {
		if b, err := hex.DecodeString(proof[2:]); err == nil {
			return b
		}
	}
	return []byte(proof)
}
