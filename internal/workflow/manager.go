package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tankobon/internal/archive"
	"tankobon/internal/config"
	"tankobon/internal/fetch"
	"tankobon/internal/logging"
	"tankobon/internal/notifications"
	"tankobon/internal/queue"
)

// Dependencies are the collaborators a Manager cannot build from config.
// Fetcher, Packers and Notifier are optional.
type Dependencies struct {
	Pages     PageResolver
	Transport Transport
	Fetcher   *fetch.Fetcher
	Packers   *archive.Registry
	Notifier  notifications.Service
}

// Manager admits jobs and coordinates the workers that process them.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	transport    Transport
	pages        PageResolver
	packers      *archive.Registry
	fetcher      *fetch.Fetcher
	flow         *FlowControl
	locks        *RequesterLocks
	orchestrator *Orchestrator

	workers      int
	pollInterval time.Duration
	errorRetry   time.Duration
	jobTimeout   time.Duration
	waitNotice   time.Duration
	wake         chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	jobsMu   sync.Mutex
	active   map[int64]*activeJob
	waiters  map[int64]map[uint64]context.CancelCauseFunc
	waiterID uint64
}

// activeJob tracks an admitted job until it reaches a terminal status. The
// requester lock taken at admission is released through release.
type activeJob struct {
	requesterID int64
	release     func()
	cancel      context.CancelCauseFunc
	cancelled   bool
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, deps Dependencies, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Fetcher == nil {
		deps.Fetcher = fetch.NewFromConfig(cfg, logger)
	}
	if deps.Packers == nil {
		deps.Packers = archive.DefaultRegistry()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewServiceWithLogger(cfg, logger)
	}
	flow := NewFlowControlFromConfig(cfg, logger)
	workers := cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "workflow-manager"),
		notifier:  deps.Notifier,
		transport: deps.Transport,
		pages:     deps.Pages,
		packers:   deps.Packers,
		fetcher:   deps.Fetcher,
		flow:      flow,
		locks:     NewRequesterLocks(),
		orchestrator: NewOrchestrator(OrchestratorOptions{
			Store:            store,
			Pages:            deps.Pages,
			Fetcher:          deps.Fetcher,
			Packers:          deps.Packers,
			Transport:        deps.Transport,
			Flow:             flow,
			StagingDir:       cfg.Paths.StagingDir,
			ProgressInterval: time.Duration(cfg.Workflow.ProgressIntervalMS) * time.Millisecond,
			Logger:           logger,
		}),
		workers:      workers,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		jobTimeout:   time.Duration(cfg.Workflow.JobTimeout) * time.Second,
		waitNotice:   time.Duration(cfg.Workflow.WaitNotice) * time.Second,
		wake:         make(chan struct{}, 1),
		active:       make(map[int64]*activeJob),
		waiters:      make(map[int64]map[uint64]context.CancelCauseFunc),
	}
}

// Orchestrator exposes the job runner, mainly for one-off failure notices.
func (m *Manager) Orchestrator() *Orchestrator {
	return m.orchestrator
}

// signal wakes one idle worker without blocking.
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
