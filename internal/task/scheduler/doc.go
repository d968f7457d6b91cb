// Package scheduler is the control loop: on every interval it asks the task
// registry and the recurrence evaluator for due work, admits it to the queue
// and drains the queue onto supervised worker goroutines.
//
// A single task never runs twice concurrently. Its gate is released only
// after the execution record is appended and the watermark moved. A failure
// to persist either stops the loop.
package scheduler
