// Package main hosts the tankobon CLI entrypoint and command graph.
//
// The run command starts the bot daemon in the foreground. The remaining
// commands work directly against the configuration, the queue database and
// the staging directory, so they are safe to use while the daemon runs.
// pack fetches and packs one chapter locally without involving the bot.
package main
