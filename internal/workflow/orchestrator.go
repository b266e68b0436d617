package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tankobon/internal/archive"
	"tankobon/internal/fetch"
	"tankobon/internal/logging"
	"tankobon/internal/queue"
	"tankobon/internal/services"
	"tankobon/internal/staging"
	"tankobon/internal/textutil"
)

const (
	stageFetching   = "fetching"
	stagePacking    = "packing"
	stageDelivering = "delivering"

	noticeTimeout = 30 * time.Second
)

// Cancellation causes attached to a job context.
var (
	ErrCancelledByRequester = errors.New("cancelled by requester")
	ErrDaemonStopping       = errors.New("daemon is shutting down")
	ErrJobTimeout           = errors.New("job timed out")
)

// OrchestratorOptions wires an Orchestrator to its collaborators.
type OrchestratorOptions struct {
	Store            *queue.Store
	Pages            PageResolver
	Fetcher          *fetch.Fetcher
	Packers          *archive.Registry
	Transport        Transport
	Flow             *FlowControl
	StagingDir       string
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// Orchestrator drives one job from fetching to a terminal status.
type Orchestrator struct {
	store            *queue.Store
	pages            PageResolver
	fetcher          *fetch.Fetcher
	packers          *archive.Registry
	transport        Transport
	flow             *FlowControl
	stagingDir       string
	progressInterval time.Duration
	logger           *slog.Logger
}

// Outcome summarizes a finished Run.
type Outcome struct {
	JobID    int64
	Status   queue.Status
	Pages    int
	Artifact archive.Artifact
	Err      error
	Duration time.Duration
}

// Delivered reports whether the requester received the file.
func (o Outcome) Delivered() bool {
	return o.Status == queue.StatusDone
}

// NewOrchestrator constructs an Orchestrator. Nil Fetcher, Packers and Flow
// get defaults.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(fetch.Options{Logger: opts.Logger})
	}
	if opts.Packers == nil {
		opts.Packers = archive.DefaultRegistry()
	}
	if opts.Flow == nil {
		opts.Flow = NewFlowControl(5, time.Second, time.Minute, opts.Logger)
	}
	return &Orchestrator{
		store:            opts.Store,
		pages:            opts.Pages,
		fetcher:          opts.Fetcher,
		packers:          opts.Packers,
		transport:        opts.Transport,
		flow:             opts.Flow,
		stagingDir:       opts.StagingDir,
		progressInterval: opts.ProgressInterval,
		logger:           logging.NewComponentLogger(opts.Logger, "orchestrator"),
	}
}

// Run processes job until it is Done or Failed. The job's staging directory
// is removed before Run returns, whatever the outcome. A Failed job has sent
// exactly one error message to its requester; a Done job exactly one file.
func (o *Orchestrator) Run(ctx context.Context, job *queue.Job) Outcome {
	start := time.Now()
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequester(ctx, job.RequesterID)
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, o.logger)

	defer o.cleanup(logger, staging.JobDir(o.stagingDir, job.ID))

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("title", job.DisplayTitle()),
		logging.String("source", job.SourceID),
		logging.String("format", job.Format),
		logging.Int("attempt", job.Attempts),
	)

	artifact, pages, err := o.execute(ctx, logger, job)
	outcome := Outcome{JobID: job.ID, Pages: pages, Artifact: artifact, Err: err}
	if err != nil {
		o.fail(ctx, logger, job, err)
	} else {
		logger.Info("job delivered",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.Int("pages", pages),
			logging.Int64("size_bytes", artifact.Size),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
	outcome.Status = job.Status
	outcome.Duration = time.Since(start)
	return outcome
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, job *queue.Job) (archive.Artifact, int, error) {
	var none archive.Artifact
	if job.Status == queue.StatusPending {
		if err := o.advance(ctx, job, queue.StatusFetching, stageFetching); err != nil {
			return none, 0, err
		}
	}
	if job.Status != queue.StatusFetching {
		return none, 0, services.Wrap(services.ErrValidation, "", "run job",
			fmt.Sprintf("Job is %s and cannot be processed", job.Status), nil)
	}
	format, err := archive.ParseFormat(job.Format)
	if err != nil {
		return none, 0, services.Wrap(services.ErrValidation, stageFetching, "parse format", "Unknown output format", err)
	}
	packer, err := o.packers.Get(format)
	if err != nil {
		return none, 0, err
	}

	// Fetching.
	fetchCtx := services.WithStage(ctx, stageFetching)
	urls, err := o.pages.ListPages(fetchCtx, job.SourceID, job.ChapterID)
	if err != nil {
		if ctx.Err() != nil {
			return none, 0, cancelled(ctx, stageFetching)
		}
		return none, 0, services.Wrap(services.ErrFetch, stageFetching, "list pages", "Could not load the chapter's page list", err)
	}
	if len(urls) == 0 {
		return none, 0, services.Wrap(services.ErrFetch, stageFetching, "list pages", "Chapter has no pages", nil)
	}
	total := len(urls)
	job.PageURLs = urls
	job.ProgressDone = 0
	job.ProgressTotal = total
	if err := o.persist(ctx, job, stageFetching); err != nil {
		return none, 0, err
	}

	progress := newProgressReporter(o.transport, o.flow, job.RequesterID, o.progressInterval, logger)
	progress.start(ctx, downloadingText(0, total))

	sampler := logging.NewProgressSampler(10)
	slots := o.fetcher.Fetch(fetchCtx, urls, func(done, total int) {
		progress.update(ctx, downloadingText(done, total), done == total)
		if err := o.store.UpdateProgress(ctx, job.ID, done, total); err != nil && ctx.Err() == nil {
			logger.Debug("progress not persisted", logging.Error(err))
		}
		if sampler.ShouldLog(done, total) {
			logger.Info("fetch progress",
				logging.String(logging.FieldEventType, "fetch_progress"),
				logging.Int("done", done),
				logging.Int("total", total),
			)
		}
	})
	if ctx.Err() != nil {
		return none, 0, cancelled(ctx, stageFetching)
	}
	if err := fetch.Summarize(slots); err != nil {
		return none, 0, services.Wrap(services.ErrFetch, stageFetching, "download pages", err.Error(), errors.Unwrap(err))
	}
	job.ProgressDone = total

	pages := make([]archive.Page, len(slots))
	for i, slot := range slots {
		pages[i] = archive.Page{Data: slot.Data, Ext: archive.ExtensionFor(slot.URL, slot.ContentType, slot.Data)}
	}
	slots = nil

	// Packing.
	if err := o.advance(ctx, job, queue.StatusPacking, stagePacking); err != nil {
		return none, total, err
	}
	progress.update(ctx, packingText, true)
	dir, err := staging.Prepare(o.stagingDir, job.ID)
	if err != nil {
		return none, total, services.Wrap(services.ErrPack, stagePacking, "prepare staging", "Could not prepare a working directory", err)
	}
	dest := filepath.Join(dir, textutil.ArtifactBaseName(job.DisplayTitle())+format.Extension())
	artifact, err := packer.Pack(services.WithStage(ctx, stagePacking), pages, dest)
	pages = nil
	if err != nil {
		if ctx.Err() != nil {
			return none, total, cancelled(ctx, stagePacking)
		}
		return none, total, services.Wrap(services.ErrPack, stagePacking, "pack pages",
			fmt.Sprintf("Could not build the %s file", format.Label()), err)
	}
	job.ArtifactPath = artifact.Path

	// Delivering.
	if err := o.advance(ctx, job, queue.StatusDelivering, stageDelivering); err != nil {
		return artifact, total, err
	}
	progress.update(ctx, sendingText, true)
	deliverCtx := services.WithStage(ctx, stageDelivering)
	err = o.flow.Do(deliverCtx, "send document", func(ctx context.Context) error {
		return o.transport.SendFile(ctx, job.RequesterID, artifact.Path, filepath.Base(artifact.Path), job.DisplayTitle())
	})
	if err != nil {
		switch {
		case ctx.Err() != nil || services.IsCancelled(err):
			return artifact, total, cancelled(ctx, stageDelivering)
		case errors.Is(err, services.ErrDelivery):
			return artifact, total, err
		case errors.Is(err, services.ErrRateLimited):
			return artifact, total, services.Wrap(services.ErrDelivery, stageDelivering, "send document",
				"Chat is rate limiting uploads, try again later", err)
		default:
			return artifact, total, services.Wrap(services.ErrDelivery, stageDelivering, "send document", "Could not send the file", err)
		}
	}

	if err := o.advance(ctx, job, queue.StatusDone, stageDelivering); err != nil {
		return artifact, total, err
	}
	progress.update(ctx, doneText, true)
	return artifact, total, nil
}

func (o *Orchestrator) advance(ctx context.Context, job *queue.Job, to queue.Status, stage string) error {
	if err := job.Advance(to); err != nil {
		return services.Wrap(services.ErrValidation, stage, "advance status", "Job is in an unexpected state", err)
	}
	logging.WithContext(services.WithStage(ctx, stage), o.logger).Debug("job status changed",
		logging.String("status", string(to)),
	)
	return o.persist(ctx, job, stage)
}

// persist saves job state even when ctx is already cancelled, so a
// cancelled job still records how far it got.
func (o *Orchestrator) persist(ctx context.Context, job *queue.Job, stage string) error {
	if err := o.store.Update(context.WithoutCancel(ctx), job); err != nil {
		return services.Wrap(services.ErrTransient, stage, "persist job", "Could not update job state", err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, jobErr error) {
	details := services.Details(jobErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = "failed without error detail"
	}

	if job.Status.IsTerminal() {
		logger.Warn("job already terminal; failure not recorded",
			logging.String("status", string(job.Status)),
			logging.Error(jobErr),
		)
		return
	}
	if err := job.Fail(message); err != nil {
		logger.Error("could not mark job failed", logging.Error(err))
		return
	}

	attrs := []logging.Attr{
		logging.String("error_message", message),
		logging.Alert("job_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldEventType, "job_failure"),
	}
	if details.Stage != "" {
		attrs = append(attrs, logging.String(logging.FieldStage, details.Stage))
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(jobErr))
	}
	if details.Kind == services.KindCancelled {
		logger.Warn("job cancelled", logging.Args(attrs...)...)
	} else {
		logger.Error("job failed", logging.Args(attrs...)...)
	}

	if err := o.store.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	if err := o.NotifyFailure(ctx, job, details.Kind); err != nil {
		logging.WarnWithContext(logger, "failure notice not delivered", "failure_notice_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "requester was not told the job failed"),
			logging.String(logging.FieldErrorHint, "check bot connectivity"),
		)
	}
}

// NotifyFailure sends the requester the one error message for a failed job.
// It runs detached from ctx cancellation so cancelled jobs are still reported.
func (o *Orchestrator) NotifyFailure(ctx context.Context, job *queue.Job, kind services.Kind) error {
	if o.transport == nil {
		return nil
	}
	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
	defer cancel()
	text := failureText(job, kind)
	return o.flow.Do(noticeCtx, "send failure notice", func(ctx context.Context) error {
		_, err := o.transport.SendText(ctx, job.RequesterID, text)
		return err
	})
}

func failureText(job *queue.Job, kind services.Kind) string {
	reason := strings.TrimSpace(job.ErrorMessage)
	if reason == "" {
		reason = "unknown error"
	}
	if kind == services.KindCancelled {
		return fmt.Sprintf("⚠️ %s\n%s", job.DisplayTitle(), reason)
	}
	return fmt.Sprintf("❌ Could not deliver %s\n%s", job.DisplayTitle(), reason)
}

func cancelled(ctx context.Context, stage string) error {
	return services.Wrap(services.ErrCancelled, stage, "run job", cancelMessage(ctx), context.Cause(ctx))
}

func cancelMessage(ctx context.Context) string {
	return cancelReason(context.Cause(ctx))
}

func cancelReason(cause error) string {
	switch {
	case errors.Is(cause, ErrCancelledByRequester):
		return "Cancelled at your request"
	case errors.Is(cause, ErrDaemonStopping):
		return "Cancelled because the bot is restarting, please request it again"
	case errors.Is(cause, ErrJobTimeout), errors.Is(cause, context.DeadlineExceeded):
		return "Cancelled because it took too long"
	default:
		return "Cancelled"
	}
}

func (o *Orchestrator) cleanup(logger *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(logger, "failed to remove job staging directory", "staging_cleanup_failed",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed until the next stale sweep"),
		)
	}
}
