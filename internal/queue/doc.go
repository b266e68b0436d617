// Package queue persists chapter jobs in SQLite and exposes the FIFO
// admission primitives the workflow manager drives.
//
// The Store owns schema initialization, busy-retry handling, and the status
// transitions of a job (pending, fetching, packing, delivering, done, failed).
// NextPending claims the oldest pending job atomically so several workers can
// share one database without double-processing.
//
// The database is transient storage for in-flight and recently finished jobs,
// not an archive. Schema changes bump schemaVersion; users clear the database
// to adopt the new schema.
package queue
