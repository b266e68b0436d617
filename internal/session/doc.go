// Package session keeps the short-lived state behind chat keyboards.
//
// Inline buttons carry a short generated key instead of the data they stand
// for. Cache maps those keys to entries in a bounded LRU whose entries expire,
// so a stale button resolves to "expired" rather than to somebody else's
// selection. Per-requester output preferences live alongside it.
package session
