// Package bot runs the chat front end.
//
// Bot long-polls Telegram for updates and hands each one to the router.
// Plain text starts a search: the requester picks a source, then a manga, then
// chapters from a paginated keyboard. Picking a chapter submits one workflow
// job per selected output format. Commands cover usage help, queue depth,
// format options, and cancellation.
package bot
