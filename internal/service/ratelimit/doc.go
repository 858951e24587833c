// Package ratelimit implements the global send-rate governor.
//
// Capacity is derived from the number of campaign emails sent in the
// trailing hour and trailing 24 hours, across every campaign. A check is not
// a reservation: two batches checked at the same moment may both proceed, so
// the caps can be overshot by at most one batch.
package ratelimit
