package bot

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/queue"
	"tankobon/internal/services"
	"tankobon/internal/session"
	"tankobon/internal/sources"
	"tankobon/internal/telegram"
	"tankobon/internal/workflow"
)

// API is the part of the Bot API the front end drives.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Jobs is the workflow surface behind the commands.
type Jobs interface {
	Submit(ctx context.Context, req workflow.Request) (*queue.Job, error)
	Cancel(ctx context.Context, requesterID int64) (int, error)
	QueueDepth(ctx context.Context) (int, error)
	ActiveFor(requesterID int64) int
}

// Options configures New.
type Options struct {
	API      API
	Jobs     Jobs
	Sources  *sources.Registry
	Sessions *session.Cache
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout  int
	ErrorRetry   time.Duration
	AllowedChats []int64
	Logger       *slog.Logger
}

// Bot polls for updates and routes them.
type Bot struct {
	api          API
	jobs         Jobs
	sources      *sources.Registry
	sessions     *session.Cache
	pollTimeout  int
	errorRetry   time.Duration
	allowedChats []int64
	logger       *slog.Logger
	searchLocks  *workflow.RequesterLocks

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	batchMu sync.Mutex
	batches map[int64]map[uint64]context.CancelFunc
	batchID uint64
}

// New constructs a bot. It does not contact Telegram until Start.
func New(opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.ErrorRetry <= 0 {
		opts.ErrorRetry = 5 * time.Second
	}
	if opts.Sessions == nil {
		opts.Sessions = session.New(session.Options{TTL: time.Hour})
	}
	return &Bot{
		api:          opts.API,
		jobs:         opts.Jobs,
		sources:      opts.Sources,
		sessions:     opts.Sessions,
		pollTimeout:  opts.PollTimeout,
		errorRetry:   opts.ErrorRetry,
		allowedChats: opts.AllowedChats,
		logger:       opts.Logger,
		searchLocks:  workflow.NewRequesterLocks(),
		batches:      make(map[int64]map[uint64]context.CancelFunc),
	}
}

// NewFromConfig wires a bot from the [telegram], [session] and [output]
// sections.
func NewFromConfig(cfg *config.Config, api API, jobs Jobs, registry *sources.Registry, logger *slog.Logger) (*Bot, error) {
	sessions, err := session.NewFromConfig(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "build bot", "invalid output.default_formats", err)
	}
	return New(Options{
		API:          api,
		Jobs:         jobs,
		Sources:      registry,
		Sessions:     sessions,
		PollTimeout:  cfg.Telegram.PollTimeout,
		ErrorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		AllowedChats: cfg.Telegram.AllowedChats,
		Logger:       logging.NewComponentLogger(logger, "bot"),
	}), nil
}

// Start begins long polling in the background.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("bot already running")
	}
	if b.api == nil || b.jobs == nil {
		return errors.New("bot requires an API client and a job manager")
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.wg.Add(1)
	go b.loop(runCtx)
	b.logger.Info("bot polling started",
		logging.String(logging.FieldEventType, "bot_start"),
		logging.Int("sources", b.sources.Len()),
	)
	return nil
}

// Stop cancels polling and in-flight handlers and waits for them.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	b.running = false
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
}

func (b *Bot) loop(ctx context.Context) {
	defer b.wg.Done()

	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.errorRetry
			if after, ok := services.RetryAfter(err); ok && after > 0 {
				wait = after
			}
			logging.WarnWithContext(b.logger, "polling updates failed; will retry", "bot_poll_failed",
				logging.Error(err),
				logging.Duration("retry_in", wait),
				logging.String(logging.FieldErrorHint, "check network access to the Bot API and the bot token"),
				logging.String(logging.FieldImpact, "new chat messages are delayed"),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch handles update on its own goroutine.
func (b *Bot) dispatch(ctx context.Context, update telegram.Update) {
	chatID, ok := chatOf(update)
	if !ok || !b.allowed(chatID) {
		return
	}
	ctx = services.WithRequestID(services.WithRequester(ctx, chatID), uuid.NewString())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		switch {
		case update.CallbackQuery != nil:
			b.handleCallback(ctx, chatID, update.CallbackQuery)
		case update.Message != nil:
			b.handleMessage(ctx, chatID, update.Message)
		}
	}()
}

func chatOf(update telegram.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil:
		if msg := update.CallbackQuery.Message; msg != nil {
			return msg.Chat.ID, true
		}
		return update.CallbackQuery.From.ID, true
	case update.Message != nil:
		return update.Message.Chat.ID, true
	}
	return 0, false
}

func (b *Bot) allowed(chatID int64) bool {
	return len(b.allowedChats) == 0 || slices.Contains(b.allowedChats, chatID)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) {
	if _, err := b.api.SendMessage(ctx, chatID, text, markup); err != nil && ctx.Err() == nil {
		logging.WithContext(ctx, b.logger).Warn("reply not sent",
			logging.Error(err),
			logging.String(logging.FieldEventType, "bot_reply_failed"),
		)
	}
}

func (b *Bot) edit(ctx context.Context, chatID int64, msg *telegram.Message, text string, markup *telegram.InlineKeyboardMarkup) {
	if msg == nil {
		b.reply(ctx, chatID, text, markup)
		return
	}
	if err := b.api.EditMessageText(ctx, chatID, msg.MessageID, text, markup); err != nil && ctx.Err() == nil {
		logging.WithContext(ctx, b.logger).Warn("edit not applied",
			logging.Error(err),
			logging.String(logging.FieldEventType, "bot_edit_failed"),
		)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.api.AnswerCallbackQuery(ctx, callbackID, text); err != nil && ctx.Err() == nil {
		logging.WithContext(ctx, b.logger).Debug("callback answer failed", logging.Error(err))
	}
}
