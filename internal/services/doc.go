// Package services defines shared utilities consumed by the job pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, requester chats, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so fetch, pack, delivery,
//     and cancellation failures are classified the same way everywhere.
//   - RateLimitError, the signal transports use to request backoff.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
