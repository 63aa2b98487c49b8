// Package id provides 128-bit, time-ordered identifiers used for event and
// queue item ids. IDs sort lexicographically by creation time, which keeps
// archive scans in chronological order without a secondary index.
package id
