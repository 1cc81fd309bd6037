// Package eventmonitor turns TaskSubmitted logs into dispatch work, walking the chain in
// fixed-width batches behind a watermark.
package eventmonitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/metrics"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const (
	DefaultBatchWidth   uint64 = 10
	DefaultPollInterval        = 2 * time.Second
	DefaultRetryDelay          = 2 * time.Second
)

type ChainReader interface {
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	FilterTaskLogs(ctx context.Context, from, to uint64) ([]ethtypes.Log, error)
}

type LogDecoder interface {
	Decode(log ethtypes.Log) (*types.TaskSubmission, error)
}

// Publisher receives decoded tasks. Push must not block.
type Publisher interface {
	Push(task types.TaskSubmission)
}

type Config struct {
	// StartBlock is the last block considered handled; 0 means the chain height at start-up.
	StartBlock   uint64
	BatchWidth   uint64
	PollInterval time.Duration
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchWidth:   DefaultBatchWidth,
		PollInterval: DefaultPollInterval,
		RetryDelay:   DefaultRetryDelay,
	}
}

type Monitor struct {
	chain   ChainReader
	decoder LogDecoder
	out     Publisher
	config  Config
	logger  logging.Logger
	metrics *metrics.Metrics

	lastHandled atomic.Uint64
	initialized atomic.Bool
}

func NewMonitor(chain ChainReader, decoder LogDecoder, out Publisher, cfg Config, logger logging.Logger, m *metrics.Metrics) (*Monitor, error) {
	if chain == nil || decoder == nil || out == nil {
		return nil, fmt.Errorf("chain, decoder and publisher are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BatchWidth == 0 {
		return nil, fmt.Errorf("batch width must be positive")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if m == nil {
		m = metrics.Nop()
	}

	mon := &Monitor{
		chain:   chain,
		decoder: decoder,
		out:     out,
		config:  cfg,
		logger:  logger.With("component", "event-monitor"),
		metrics: m,
	}
	if cfg.StartBlock > 0 {
		mon.setWatermark(cfg.StartBlock)
	}
	return mon, nil
}

func (m *Monitor) LastHandledBlock() uint64 {
	return m.lastHandled.Load()
}

func (m *Monitor) setWatermark(block uint64) {
	m.lastHandled.Store(block)
	m.initialized.Store(true)
	m.metrics.LastHandledBlock.Set(float64(block))
}

// Run polls until ctx is cancelled. The watermark survives restarts of Run.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.initialized.Load() {
		if err := m.initWatermark(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	m.logger.Info("Event monitor started", "last_handled_block", m.LastHandledBlock(), "batch_width", m.config.BatchWidth)

	for {
		if ctx.Err() != nil {
			m.logger.Info("Event monitor stopped", "last_handled_block", m.LastHandledBlock())
			return nil
		}

		progressed, err := m.pollOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			continue
		case err != nil:
			m.metrics.ChainErrors.Inc()
			m.logger.Error("Event poll failed", "last_handled_block", m.LastHandledBlock(), "error", err)
			sleep(ctx, m.config.RetryDelay)
		case !progressed:
			sleep(ctx, m.config.PollInterval)
		}
	}
}

func (m *Monitor) initWatermark(ctx context.Context) error {
	for {
		height, err := m.chain.CurrentBlockHeight(ctx)
		if err == nil {
			m.setWatermark(height)
			m.logger.Info("Initialized watermark from chain height", "height", height)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.metrics.ChainErrors.Inc()
		m.logger.Error("Failed to read start height", "error", err)
		sleep(ctx, m.config.RetryDelay)
	}
}

// pollOnce handles at most one batch. It reports whether the watermark moved.
func (m *Monitor) pollOnce(ctx context.Context) (bool, error) {
	height, err := m.chain.CurrentBlockHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("read block height: %w", err)
	}

	last := m.LastHandledBlock()
	if last >= height {
		m.logger.Debug("No new blocks", "last_handled_block", last, "height", height)
		return false, nil
	}

	from := last + 1
	to := min(last+m.config.BatchWidth, height)

	logs, err := m.chain.FilterTaskLogs(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("filter logs [%d, %d]: %w", from, to, err)
	}

	published := 0
	for _, log := range logs {
		task, err := m.decoder.Decode(log)
		if err != nil {
			m.metrics.DecodeFailures.Inc()
			m.logger.Error("Skipping undecodable log",
				"block", log.BlockNumber,
				"tx_hash", log.TxHash.Hex(),
				"log_index", log.Index,
				"error", err)
			continue
		}
		m.out.Push(*task)
		published++
		m.metrics.TasksDiscovered.Inc()
		m.logger.Info("Task discovered",
			"task_key", task.TaskKeyHex(),
			"block", task.BlockNumber,
			"prover", task.Prover.Hex())
	}

	m.setWatermark(to)
	m.logger.Debug("Handled block batch", "from", from, "to", to, "logs", len(logs), "tasks", published)
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
