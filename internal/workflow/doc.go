// Package workflow turns queued chapter jobs into delivered files.
//
// The Manager admits jobs (one at a time per requester, enforced by
// RequesterLocks), persists them in the queue, and runs worker goroutines
// that claim jobs in FIFO order. Each claimed job is handed to the
// Orchestrator, which walks it through fetching, packing and delivering,
// reports progress to the requester, and removes the job's staging directory
// on every exit path.
//
// Deliveries and requester messages go through FlowControl, which retries
// only on transport rate-limit signals. Every other failure ends the job with
// exactly one error message to the requester.
package workflow
