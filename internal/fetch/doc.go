// Package fetch downloads chapter pages into indexed slots under a
// process-wide concurrency budget.
//
// Fetch launches one goroutine per URL; a weighted semaphore admits at most
// Budget.Size of them into the network at once. Every page records its own
// outcome, so one failing page never aborts its siblings. Progress callbacks
// run on a dedicated dispatcher goroutine in completion order and all of them
// have returned by the time Fetch does.
package fetch
