// Package template stores email templates and renders them for a contact.
//
// Templates use flat {{variable}} substitution over a fixed variable set
// derived from the contact (first_name, full_name, name, email, company,
// phone). Rendering runs on the Liquid engine, but Validate only admits
// plain placeholders: tags, filters and dotted paths are rejected, so the
// accepted language has no control flow. Unknown placeholders render as the
// empty string.
package template
