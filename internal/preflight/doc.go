// Package preflight provides readiness checks for the filesystem paths and
// the Bot API that tankobon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting workers and refuses to start
//     when a check fails.
//   - The CLI "tankobon config validate" command prints the same results.
package preflight
