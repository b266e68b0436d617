// Package daemon runs the long-lived tankobon process.
//
// A Daemon holds a flock on the state directory so only one instance serves a
// bot token at a time. Start runs preflight checks, sweeps staging leftovers,
// fails jobs a previous run abandoned and tells their requesters, then brings
// up the workflow workers followed by the chat poller. Stop tears them down in
// the reverse order.
package daemon
