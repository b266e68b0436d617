// Package config loads, normalizes, and validates tankobon configuration.
//
// Configuration is read from TOML (default ~/.config/tankobon/config.toml,
// falling back to ./tankobon.toml), merged over Default, expanded so every
// path is absolute, and validated before use. A small set of secrets can be
// supplied through environment variables instead of the file.
package config
