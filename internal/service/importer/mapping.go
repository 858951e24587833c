package importer

import (
	"sort"
	"strings"
)

// Field is a contact field a column can be mapped to.
type Field string

const (
	FieldEmail       Field = "email"
	FieldName        Field = "name"
	FieldFirstName   Field = "first_name"
	FieldLastName    Field = "last_name"
	FieldPhone       Field = "phone"
	FieldCountryCode Field = "country_code"
	FieldCompany     Field = "company"
	FieldSource      Field = "source"
	FieldTags        Field = "tags"
	FieldStatus      Field = "status"

	// FieldIgnore drops a column explicitly.
	FieldIgnore Field = "ignore"
)

var knownFields = map[Field]bool{
	FieldEmail: true, FieldName: true, FieldFirstName: true, FieldLastName: true,
	FieldPhone: true, FieldCountryCode: true, FieldCompany: true, FieldSource: true,
	FieldTags: true, FieldStatus: true, FieldIgnore: true,
}

// Common header aliases for auto-mapping
var headerAliases = map[Field][]string{
	FieldEmail:       {"email", "email_address", "e_mail", "emailaddress", "mail"},
	FieldName:        {"name", "full_name", "fullname", "contact_name", "contact"},
	FieldFirstName:   {"first_name", "firstname", "first", "fname", "given_name"},
	FieldLastName:    {"last_name", "lastname", "last", "lname", "surname", "family_name"},
	FieldPhone:       {"phone", "phone_number", "phonenumber", "mobile", "cell", "telephone", "tel"},
	FieldCountryCode: {"country_code", "countrycode", "country", "dial_code"},
	FieldCompany:     {"company", "company_name", "companyname", "organization", "business"},
	FieldSource:      {"source", "lead_source", "leadsource", "origin"},
	FieldTags:        {"tags", "labels", "categories"},
	FieldStatus:      {"status", "stage", "pipeline_stage", "lead_status"},
}

// aliasIndex is headerAliases inverted: normalized header to field.
var aliasIndex = func() map[string]Field {
	idx := make(map[string]Field)
	for field, aliases := range headerAliases {
		for _, a := range aliases {
			idx[a] = field
		}
	}
	return idx
}()

func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}

// SuggestMapping maps recognised headers to contact fields. Each field is
// claimed by the first header, in the given order, that matches it;
// unrecognised headers are left out.
func SuggestMapping(headers []string) map[string]string {
	out := make(map[string]string)
	claimed := make(map[Field]bool)
	for _, h := range headers {
		field, ok := aliasIndex[normalizeHeader(h)]
		if !ok || claimed[field] {
			continue
		}
		claimed[field] = true
		out[h] = string(field)
	}
	return out
}

// headersOf returns the union of row keys in a stable order.
func headersOf(rows []map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
