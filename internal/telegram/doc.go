// Package telegram is a small Bot API client.
//
// It covers the calls the bot and the workflow need: long polling, text
// messages with inline keyboards, message edits, document uploads, and
// callback acknowledgements. Flow-control refusals (HTTP 429) surface as
// services.RateLimitError carrying the server's retry_after so callers can
// back off; the client itself never retries them.
package telegram
