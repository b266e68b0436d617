// Package staging owns the per-job scratch directories under paths.staging_dir.
//
// Each job writes its partial and final artifact into job-<id>. The
// orchestrator removes that directory on every exit path; CleanStale and
// CleanOrphaned sweep whatever a crash left behind.
package staging
