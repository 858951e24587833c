// Package importer bulk-ingests external rows into the contact store and,
// optionally, the segment index.
//
// Rows are processed in order and each one fails on its own: a malformed
// row is counted and reported, and the import carries on. There is no
// rollback across rows. Rows that repeat an email are not pre-deduplicated;
// each later occurrence is merged into the contact the earlier one produced.
package importer
