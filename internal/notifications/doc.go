// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover job
// outcomes and daemon lifecycle; per-event toggles in [notifications] decide
// which ones are sent. Requester-facing chat messages do not go through this
// package.
package notifications
