// Package debounce coalesces bursts of related events into single units of
// work. Events for the same key arriving within a quiet window are joined
// and delivered once, which turns a burst of fragments into one processing
// run with full context.
package debounce
