// Package campaign implements the campaign engine: enrollment of contacts
// as recipients and bounded, explicitly triggered batch dispatch.
//
// A campaign starts in draft, moves to sending with its first dispatched
// batch and completes once no recipient is pending. Every batch consults the
// rate governor first; a rejected batch changes nothing. Recipients leave
// pending exactly once, as sent or bounced, and are never retried.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
