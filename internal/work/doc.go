// Package work plans backfills and runs them in worker processes.
//
// # Planning
//
// A backfill covers the business days between a start date and today that
// the destination table does not hold yet. The planner splits them into
// one contiguous, chronologically ordered partition per worker:
//
//	missing := Missing(start, today, present)
//	parts := Split(missing, CPUCount())
//
// Partition sizes differ by at most one; the trailing partitions take the
// remainder. A date belongs to exactly one partition, so workers write
// disjoint natural keys and need no coordination.
//
// # Workers
//
// Pool re-executes the scraper binary once per non-empty partition with
// --worker_dates and --report_file. Each worker fetches its dates in
// ascending order, flushes once, and leaves a msgpack WorkerReport behind.
// A failing worker is logged with its exit code; its siblings keep running
// and the next run re-plans whatever it missed.
package work
