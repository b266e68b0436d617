package preflight

import (
	"context"
	"strings"

	"tankobon/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeStagingBytes is the floor for staging free space when no upload
// limit is configured.
const minFreeStagingBytes = 256 << 20

// RunAll executes every preflight check for cfg. The Telegram check is skipped
// when bot is nil.
func RunAll(ctx context.Context, cfg *config.Config, bot TokenChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	// A chapter is staged as pages plus the packed artifact, so leave room
	// for two maximum-size uploads.
	need := uint64(minFreeStagingBytes)
	if upload := uint64(cfg.Telegram.MaxUploadMB) << 20; 2*upload > need {
		need = 2 * upload
	}
	results = append(results, CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, need))

	if bot != nil {
		results = append(results, CheckTelegram(ctx, bot))
	}
	return results
}

// Failures returns the results that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary joins failed checks into one line for error messages.
func Summary(results []Result) string {
	failed := Failures(results)
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}
