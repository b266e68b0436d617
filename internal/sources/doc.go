// Package sources adapts manga sites into the Search, ListChapters and
// ListPages calls used by the bot and the workflow.
//
// Sites are described in configuration as CSS selectors and read with
// goquery. A Registry keys adapters by their configured id.
package sources
