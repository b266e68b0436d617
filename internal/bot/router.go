package bot

import (
	"context"
	"fmt"
	"strings"

	"tankobon/internal/logging"
	"tankobon/internal/session"
	"tankobon/internal/telegram"
)

const (
	startText = "Welcome! Send the name of a manga to search for it.\n" +
		"Example: Fire Force\n\n" +
		"See /help for more."
	helpText = "/start - Show the welcome message\n" +
		"/help - Show this help\n" +
		"/queue - Show how many chapters are waiting\n" +
		"/options - Choose output formats (CBZ, PDF)\n" +
		"/cancel - Cancel your chapters in progress\n\n" +
		"Send the name of a manga to start a search."
	unknownCommandText = "Unknown command. See /help."
	noSourcesText      = "No sources are configured."
	pickSourceText     = "Choose a source to search:"
	optionsText        = "Choose the output formats you want."
)

// handleMessage routes commands and treats any other text as a search.
func (b *Bot) handleMessage(ctx context.Context, chatID int64, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "/") {
		b.startSearch(ctx, chatID, text)
		return
	}

	command := strings.Fields(text)[0]
	// Group chats address commands as /cmd@botname.
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	logging.WithContext(ctx, b.logger).Debug("command received", logging.String("command", command))

	switch strings.ToLower(command) {
	case "/start":
		b.reply(ctx, chatID, startText, nil)
	case "/help":
		b.reply(ctx, chatID, helpText, nil)
	case "/queue":
		b.handleQueue(ctx, chatID)
	case "/options":
		b.reply(ctx, chatID, optionsText, optionsKeyboard(b.sessions.Formats(chatID)))
	case "/cancel":
		b.handleCancel(ctx, chatID)
	default:
		b.reply(ctx, chatID, unknownCommandText, nil)
	}
}

func (b *Bot) handleQueue(ctx context.Context, chatID int64) {
	depth, err := b.jobs.QueueDepth(ctx)
	if err != nil {
		logging.WithContext(ctx, b.logger).Warn("queue depth unavailable", logging.Error(err))
		b.reply(ctx, chatID, "Queue status is unavailable right now.", nil)
		return
	}
	text := fmt.Sprintf("Queue length: %d", depth)
	if mine := b.jobs.ActiveFor(chatID); mine > 0 {
		text += fmt.Sprintf("\nYour chapters in progress: %d", mine)
	}
	b.reply(ctx, chatID, text, nil)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	pending := b.cancelBatches(chatID)
	count, err := b.jobs.Cancel(ctx, chatID)
	if err != nil {
		logging.WithContext(ctx, b.logger).Warn("cancel failed", logging.Error(err))
		b.reply(ctx, chatID, "Could not cancel right now, try again.", nil)
		return
	}
	switch {
	case count == 0 && pending == 0:
		b.reply(ctx, chatID, "Nothing to cancel.", nil)
	case count == 0:
		b.reply(ctx, chatID, "Stopped queuing your remaining chapters.", nil)
	case count == 1:
		b.reply(ctx, chatID, "Cancelled 1 chapter.", nil)
	default:
		b.reply(ctx, chatID, fmt.Sprintf("Cancelled %d chapters.", count), nil)
	}
}

func (b *Bot) startSearch(ctx context.Context, chatID int64, query string) {
	list := b.sources.List()
	if len(list) == 0 {
		b.reply(ctx, chatID, noSourcesText, nil)
		return
	}
	buttons := make([]telegram.InlineKeyboardButton, 0, len(list))
	for _, src := range list {
		key := b.sessions.Put(session.Entry{
			Kind:        session.KindSearch,
			RequesterID: chatID,
			SourceID:    src.ID(),
			Query:       query,
		})
		buttons = append(buttons, telegram.Button(src.Name(), callbackSource+key))
	}
	b.reply(ctx, chatID, pickSourceText, telegram.Keyboard(pairs(buttons)...))
}
