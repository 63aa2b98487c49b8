// Package worker drives the work queue: a single dequeue loop fans items
// out to a bounded pool of handler goroutines and reports each outcome back
// to the queue as Complete or Fail.
package worker
