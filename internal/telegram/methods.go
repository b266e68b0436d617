package telegram

import "context"

// GetMe returns the bot's own account. It doubles as a token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", struct{}{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUpdates long-polls for messages and button presses after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

type sendMessageParams struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
}

// SendMessage sends text with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	params := sendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: markup, DisableWebPagePreview: true}
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces a message's text and keyboard. Edits that change
// nothing succeed.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	params := editMessageParams{ChatID: chatID, MessageID: messageID, Text: text, ReplyMarkup: markup}
	if err := c.call(ctx, "editMessageText", params, nil); err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// SendText sends plain text and returns the new message id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	msg, err := c.SendMessage(ctx, chatID, text, nil)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditText replaces the text of a message sent earlier.
func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.EditMessageText(ctx, chatID, messageID, text, nil)
}

// SendFile uploads the file at path as a document named fileName.
func (c *Client) SendFile(ctx context.Context, chatID int64, path, fileName, caption string) error {
	_, err := c.SendDocument(ctx, chatID, path, fileName, caption)
	return err
}
