package workflow

import "context"

// Transport is the outbound side of the chat the jobs were requested from.
type Transport interface {
	// SendText posts a message and returns its id for later edits.
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	// EditText replaces the text of a previously sent message.
	EditText(ctx context.Context, chatID, messageID int64, text string) error
	// SendFile uploads the file at path as a document.
	SendFile(ctx context.Context, chatID int64, path, fileName, caption string) error
}

// PageResolver resolves a chapter to its ordered page image URLs.
type PageResolver interface {
	ListPages(ctx context.Context, sourceID, chapterID string) ([]string, error)
}
