// Package workqueue provides the retry-aware work queue between event
// intake and downstream delivery. Failed items back off along a fixed delay
// ladder and land in a dead letter queue once their retry budget is spent.
package workqueue
