package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/notifications"
	"tankobon/internal/preflight"
	"tankobon/internal/queue"
	"tankobon/internal/services"
	"tankobon/internal/staging"
	"tankobon/internal/workflow"
)

// Poller is the chat front-end started after the workflow and stopped before it.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
}

// Options carries the collaborators a Daemon coordinates. Poller, Telegram and
// Notifier are optional.
type Options struct {
	Store    *queue.Store
	Workflow *workflow.Manager
	Poller   Poller
	Telegram preflight.TokenChecker
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	poller   Poller
	telegram preflight.TokenChecker
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	StagingDir   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Store == nil || opts.Workflow == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    opts.Store,
		workflow: opts.Workflow,
		poller:   opts.Poller,
		telegram: opts.Telegram,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers from any previous run and launches
// the workflow and the poller.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tankobon daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg, d.telegram)
	for _, r := range results {
		d.logger.Info("preflight check",
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
			logging.String("detail", r.Detail),
		)
	}
	if failed := preflight.Failures(results); len(failed) > 0 {
		d.unlock()
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight",
			preflight.Summary(results), nil)
	}

	d.recoverPreviousRun(ctx)

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abort()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.poller != nil {
		if err := d.poller.Start(d.ctx); err != nil {
			d.workflow.Stop()
			d.abort()
			return fmt.Errorf("start poller: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("tankobon daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
	)
	d.announce(ctx, results)
	return nil
}

// recoverPreviousRun clears what an earlier process left behind. Nothing has been
// admitted yet, so every job directory still in staging is an orphan.
func (d *Daemon) recoverPreviousRun(ctx context.Context) {
	stagingDir := d.cfg.Paths.StagingDir
	if hours := d.cfg.Workflow.StaleStagingHours; hours > 0 {
		staging.CleanStale(ctx, stagingDir, time.Duration(hours)*time.Hour, d.logger)
	}
	staging.CleanOrphaned(ctx, stagingDir, nil, d.logger)

	interrupted, err := d.store.FailInterrupted(ctx, queue.DaemonStopReason)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to close out interrupted jobs", "interrupted_jobs_failed",
			logging.Error(err),
		)
		return
	}
	if len(interrupted) == 0 {
		return
	}
	d.logger.Info("failed jobs interrupted by previous run",
		logging.String(logging.FieldEventType, "interrupted_jobs"),
		logging.Int("count", len(interrupted)),
	)
	d.workflow.NotifyInterrupted(ctx, interrupted)
}

func (d *Daemon) announce(ctx context.Context, results []preflight.Result) {
	payload := notifications.Payload{}
	for _, r := range results {
		if r.Name == "Telegram" && strings.HasPrefix(r.Detail, "@") {
			payload["bot"] = strings.TrimPrefix(r.Detail, "@")
		}
	}
	if err := d.notifier.Publish(ctx, notifications.EventDaemonStarted, payload); err != nil {
		d.logger.Debug("daemon start notification failed", logging.Error(err))
	}
}

func (d *Daemon) abort() {
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
	d.unlock()
}

func (d *Daemon) unlock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.poller != nil {
		d.poller.Stop()
	}
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.unlock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tankobon daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTestNotification, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		StagingDir:   d.cfg.Paths.StagingDir,
	}
}
