// Package runtime composes the event intake pipeline for a single-node
// instance: admission control (bans, rate limits, spike detection), the
// debounce buffer, the retrying work queue with its worker pool, and the
// on-disk dead letter archive.
package runtime
