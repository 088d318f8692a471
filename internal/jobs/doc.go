// Package jobs schedules deferred and periodic callables on the shared pool.
//
// # Overview
//
// The Scheduler keeps pending jobs in a min-heap ordered by next run time. A
// single timer loop sleeps until the earliest run (or until scheduling
// changes the front of the heap) and submits due jobs to the dispatch worker
// pool, where they share capacity with event handlers.
//
//	job := sched.Once(5*time.Second, sendReminder)
//	sched.Repeating(time.Minute, 0, refreshCache)
//	sched.Cancel(job)
//
// # Missed Ticks
//
// When the loop is starved past several intervals of a periodic job, missed
// ticks are skipped rather than burst: the job executes once and its next run
// is recomputed from now, not from the missed schedule.
//
// # Failure Containment
//
// Job errors and panics are reported to the error sink and never stop the
// timer loop. Cancellation is idempotent; a job already submitted when
// cancelled may still complete its in-flight run.
package jobs
