// Package contact implements the contact store of the CRM core.
//
// A contact's identity is its normalized email address. Store.UpsertByEmail
// is the single add-or-update primitive shared by manual entry, lead
// conversion and bulk import: an existing contact only ever has blank fields
// filled in, never overwritten. Service wraps the store with authorization,
// auditing and the activity timeline.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package contact
