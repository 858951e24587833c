// Package segment implements the segment index: named, colored groups of
// contacts and the many-to-many membership between them.
//
// SetMembership replaces a contact's full membership set and is idempotent.
// The bulk variants AddMany and RemoveMany process every contact on its own,
// so one contact's failure never blocks the rest of the batch. Deleting a
// segment removes membership rows only; contacts are never touched.
package segment
