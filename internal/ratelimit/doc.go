// Package ratelimit implements per-key sliding window rate limiting with
// burst (spike) detection and temporary bans. All state is in memory and
// scoped to a single process.
package ratelimit
