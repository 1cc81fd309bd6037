// Package coordinator assembles the proof coordinator from its configuration and runs its
// loops under supervision.
package coordinator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trigg3rX/proof-coordinator/internal/aggregator"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/api"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/config"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/metrics"
	"github.com/trigg3rX/proof-coordinator/internal/eventmonitor"
	"github.com/trigg3rX/proof-coordinator/internal/signer"
	"github.com/trigg3rX/proof-coordinator/internal/taskdispatcher"
	"github.com/trigg3rX/proof-coordinator/internal/taskstatus"
	"github.com/trigg3rX/proof-coordinator/pkg/client/chain"
	"github.com/trigg3rX/proof-coordinator/pkg/client/scheduler"
	"github.com/trigg3rX/proof-coordinator/pkg/cryptography"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	pkgmetrics "github.com/trigg3rX/proof-coordinator/pkg/metrics"
	"github.com/trigg3rX/proof-coordinator/pkg/queue"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const (
	LoopEventMonitor = "event_monitor"
	LoopDispatcher   = "task_dispatcher"
	LoopAggregator   = "proof_aggregator"
	LoopAPI          = "api"
)

type Coordinator struct {
	config  config.Config
	logger  logging.Logger
	metrics *metrics.Metrics

	collector *pkgmetrics.Collector
	chain     *chain.Client
	scheduler *scheduler.Client
	store     taskstatus.Store
	mirror    datastore.Mirror

	tasks  *queue.Mailbox[types.TaskSubmission]
	proofs *queue.Mailbox[types.ProofResult]

	monitor    *eventmonitor.Monitor
	dispatcher *taskdispatcher.TaskDispatcher
	aggregator *aggregator.Aggregator
	api        *api.Server

	closers []func()
}

// New builds every component. Nothing runs until Run is called.
func New(ctx context.Context, cfg config.Config, logger logging.Logger, version string) (*Coordinator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		config:    cfg,
		logger:    logger,
		collector: pkgmetrics.NewCollector("coordinator"),
		tasks:     queue.NewMailbox[types.TaskSubmission](),
		proofs:    queue.NewMailbox[types.ProofResult](),
	}
	c.metrics = metrics.New(c.collector)
	c.metrics.RegisterQueueDepth("dispatch", c.tasks.Len)
	c.metrics.RegisterQueueDepth("proof", c.proofs.Len)

	if err := c.build(ctx, version); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) build(ctx context.Context, version string) error {
	cfg := c.config
	var err error

	c.chain, err = chain.NewClient(ctx, c.logger, chain.Config{
		RPCURLs:         cfg.RPCURLs,
		ContractAddress: common.HexToAddress(cfg.ContractAddress),
		PrivateKey:      cfg.PrivateKey,
		ChainID:         cfg.ChainID,
		GasLimit:        cfg.GasLimit,
		HeightQuorum:    cfg.HeightQuorum,
		ProofMethod:     cfg.ProofMethod,
	})
	if err != nil {
		return fmt.Errorf("chain client: %w", err)
	}
	c.closers = append(c.closers, c.chain.Close)
	c.logger.Info("[1/7] Chain client initialised", "endpoints", len(cfg.RPCURLs), "address", c.chain.Address().Hex())

	c.scheduler, err = scheduler.NewClient(c.logger, scheduler.Config{URL: cfg.SchedulerURL})
	if err != nil {
		return fmt.Errorf("scheduler client: %w", err)
	}
	c.closers = append(c.closers, c.scheduler.Close)
	c.logger.Info("[2/7] Scheduler client initialised")

	if err := c.buildStores(ctx); err != nil {
		return err
	}
	c.logger.Info("[3/7] Status store and mirror initialised", "status_backend", cfg.StatusBackend, "mirror_backend", cfg.MirrorBackend)

	decoder, err := chain.NewEventDecoder()
	if err != nil {
		return fmt.Errorf("event decoder: %w", err)
	}
	c.monitor, err = eventmonitor.NewMonitor(c.chain, decoder, c.tasks, eventmonitor.Config{
		StartBlock:   cfg.StartBlock,
		BatchWidth:   cfg.BatchWidth,
		PollInterval: cfg.PollInterval,
		RetryDelay:   cfg.MonitorRetryDelay,
	}, c.logger, c.metrics)
	if err != nil {
		return fmt.Errorf("event monitor: %w", err)
	}
	c.logger.Info("[4/7] Event monitor initialised", "start_block", cfg.StartBlock)

	c.dispatcher, err = taskdispatcher.NewTaskDispatcher(c.logger, c.scheduler, c.store, c.mirror, taskdispatcher.Config{
		ProjectID:       cfg.ProjectID,
		SegmentCount:    cfg.SegmentCount,
		Priority:        cfg.Priority,
		DispatchRetries: cfg.DispatchRetries,
		RetryDelay:      cfg.DispatchBackoff,
	}, c.metrics)
	if err != nil {
		return fmt.Errorf("task dispatcher: %w", err)
	}
	c.logger.Info("[5/7] Task dispatcher initialised", "segments", cfg.SegmentCount)

	c.aggregator, err = aggregator.NewAggregator(c.logger, c.chain, c.store, c.mirror, aggregator.Config{
		ProjectID:           cfg.ProjectID,
		SegmentCount:        cfg.SegmentCount,
		ReceiptPollAttempts: cfg.ReceiptPollAttempts,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
	}, c.metrics)
	if err != nil {
		return fmt.Errorf("proof aggregator: %w", err)
	}
	c.logger.Info("[6/7] Proof aggregator initialised")

	key, err := cryptography.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	taskSigner, err := signer.NewSigner(key, c.chain, c.logger, signer.WithExpiryOffset(cfg.ExpiryOffset))
	if err != nil {
		return fmt.Errorf("task signer: %w", err)
	}

	c.api, err = api.NewServer(api.Config{
		ListenAddr:   cfg.ListenAddr,
		ProjectID:    cfg.ProjectID,
		SegmentCount: cfg.SegmentCount,
		Version:      version,
		CORSOrigins:  cfg.CORSOrigins,
	}, api.Dependencies{
		Signer:        taskSigner,
		Proofs:        c.proofs,
		Store:         c.store,
		Mirror:        c.mirror,
		Watermark:     c.monitor,
		DispatchQueue: c.tasks,
		ProofQueue:    c.proofs,
		Metrics:       c.collector.Handler(),
	}, c.logger)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	c.logger.Info("[7/7] API server initialised", "addr", cfg.ListenAddr)
	return nil
}

func (c *Coordinator) buildStores(ctx context.Context) error {
	cfg := c.config

	switch cfg.StatusBackend {
	case config.StatusBackendRedis:
		client, err := taskstatus.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("status store: %w", err)
		}
		c.closers = append(c.closers, func() { _ = client.Close() })
		c.store = taskstatus.NewRedisStore(client, taskstatus.RedisOptions{TTL: cfg.StatusTTL})
	default:
		c.store = taskstatus.NewMemoryStore()
	}

	mirrorCfg := datastore.NewConfig()
	mirrorCfg.Backend = cfg.MirrorBackend
	mirrorCfg.PostgresDSN = cfg.PostgresDSN
	mirrorCfg.ScyllaHosts = cfg.ScyllaHosts
	if cfg.ScyllaKeyspace != "" {
		mirrorCfg.Keyspace = cfg.ScyllaKeyspace
	}
	mirror, err := datastore.NewMirror(ctx, mirrorCfg, c.logger)
	if err != nil {
		return fmt.Errorf("persistence mirror: %w", err)
	}
	c.mirror = mirror
	c.closers = append(c.closers, mirror.Close)
	return nil
}

// Run starts the metrics collector and the four loops, and blocks until ctx is cancelled
// and every loop has returned.
func (c *Coordinator) Run(ctx context.Context) error {
	c.collector.Start()
	defer c.collector.Stop()

	supervisor := NewSupervisor(c.logger, c.metrics.LoopRestarts, c.config.RestartDelay, c.config.MaxRestartDelay)
	supervisor.Go(ctx, LoopEventMonitor, c.monitor.Run)
	supervisor.Go(ctx, LoopDispatcher, func(ctx context.Context) error {
		return c.dispatcher.Run(ctx, c.tasks)
	})
	supervisor.Go(ctx, LoopAggregator, func(ctx context.Context) error {
		return c.aggregator.Run(ctx, c.proofs)
	})
	supervisor.Go(ctx, LoopAPI, c.api.Run)

	c.logger.Info("Coordinator running", "project", c.config.ProjectID, "config", fmt.Sprintf("%+v", c.config.Redacted()))
	supervisor.Wait()

	if n := c.tasks.Len(); n > 0 {
		c.logger.Warn("Undispatched tasks dropped at shutdown", "count", n)
	}
	if n := c.proofs.Len(); n > 0 {
		c.logger.Warn("Unprocessed proofs dropped at shutdown", "count", n)
	}
	return nil
}

// Close releases clients in reverse order of creation.
func (c *Coordinator) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
