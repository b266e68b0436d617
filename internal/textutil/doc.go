// Package textutil provides text helpers for titles scraped from manga sites.
//
// The primary use cases are:
//   - Folding diacritics and casing titles for display and file names
//   - Sanitizing artifact file names for safe filesystem use
//   - Ranking search results against the user's query
//
// Fingerprints use term frequency vectors over folded, lowercased tokens.
package textutil
