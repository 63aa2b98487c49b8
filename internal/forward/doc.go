// Package forward delivers processed work items to the configured
// downstream HTTP endpoint, guarded by a circuit breaker.
package forward
