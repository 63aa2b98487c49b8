// Package breaker implements the circuit breaker pattern for calls to
// unreliable downstreams. A breaker counts consecutive failures, fails fast
// while open, and probes recovery through a half-open state with a bounded
// number of trial calls.
package breaker
