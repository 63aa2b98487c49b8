// Package archive persists dead lettered work items to disk so the failure
// trail survives restarts. Listings support CEL expressions for ad hoc
// filtering, e.g. error.contains("502") or retry_count > 3.
package archive
