package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/logger"
)

// DefaultMaxRows caps a single import request.
const DefaultMaxRows = 5000

// Sentinel errors for the import pipeline.
var (
	ErrInvalidInput = errors.New("invalid import request")
	ErrTooManyRows  = errors.New("too many rows")
)

// ContactUpserter is the add-or-update primitive. *contact.Store satisfies it.
type ContactUpserter interface {
	UpsertByEmail(ctx context.Context, email string, f domain.ContactFields) (*domain.Contact, bool, error)
}

// SegmentLinker attaches contacts to target segments. segment.Repository
// satisfies it.
type SegmentLinker interface {
	Get(ctx context.Context, id string) (*domain.Segment, error)
	AddMemberships(ctx context.Context, contactID string, segmentIDs []string) error
}

// Request is one bulk import. Mapping is column name to Field; when it is
// empty a mapping is suggested from the column names.
type Request struct {
	Rows       []map[string]string `json:"rows"`
	Mapping    map[string]string   `json:"mapping,omitempty"`
	SegmentIDs []string            `json:"target_segment_ids,omitempty"`
}

// Result summarizes an import. Errors carries one message per failed row.
type Result struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// Pipeline runs imports. It is safe for concurrent use.
type Pipeline struct {
	contacts ContactUpserter
	segments SegmentLinker
	authz    auth.Authorizer
	audit    audit.Sink
	maxRows  int
}

// NewPipeline creates an import pipeline. maxRows <= 0 uses DefaultMaxRows.
func NewPipeline(contacts ContactUpserter, segments SegmentLinker, authz auth.Authorizer, sink audit.Sink, maxRows int) *Pipeline {
	if authz == nil {
		authz = auth.AllowAll{}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Pipeline{contacts: contacts, segments: segments, authz: authz, audit: sink, maxRows: maxRows}
}

// MaxRows returns the per-request row cap.
func (p *Pipeline) MaxRows() int { return p.maxRows }

// Import upserts every row and links the resulting contacts to the target
// segments. Request-level problems (permission, row cap, mapping, unknown
// segment) fail the whole call before any row is touched; row-level
// problems are counted in the result. If ctx is cancelled the rows processed
// so far are returned along with the context error.
func (p *Pipeline) Import(ctx context.Context, req Request) (*Result, error) {
	if err := p.authz.IsPermitted(ctx, auth.ActionContactImport); err != nil {
		return nil, err
	}
	return p.run(ctx, req)
}

func (p *Pipeline) run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Rows) > p.maxRows {
		return nil, fmt.Errorf("%w: %d rows exceeds the limit of %d", ErrTooManyRows, len(req.Rows), p.maxRows)
	}

	mapping := req.Mapping
	if len(mapping) == 0 {
		mapping = SuggestMapping(headersOf(req.Rows))
	}
	cols, err := compileMapping(mapping)
	if err != nil {
		return nil, err
	}
	segmentIDs, err := p.targetSegments(ctx, req.SegmentIDs)
	if err != nil {
		return nil, err
	}

	res := &Result{Errors: []string{}}
	for i, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p.importRow(ctx, i+1, cols.extract(row), segmentIDs, res)
	}

	logger.Info("importer: import finished", "rows", len(req.Rows), "created", res.Created,
		"updated", res.Updated, "failed", res.Failed)
	p.audit.Record(ctx, audit.NewEvent(ctx, "contact.import", "contact", "", map[string]any{
		"rows": len(req.Rows), "created": res.Created, "updated": res.Updated, "failed": res.Failed,
		"segment_ids": segmentIDs,
	}))
	return res, nil
}

func (p *Pipeline) importRow(ctx context.Context, n int, r parsedRow, segmentIDs []string, res *Result) {
	fail := func(format string, args ...any) {
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("row %d: ", n)+fmt.Sprintf(format, args...))
	}

	email := domain.NormalizeEmail(r.email)
	if email == "" {
		fail("missing email")
		return
	}
	if !domain.ValidEmail(email) {
		fail("invalid email %q", email)
		return
	}
	// Only email problems drop a row; an unknown stage is ignored.
	if r.fields.Status != "" && !r.fields.Status.Valid() {
		logger.Warn("importer: ignoring unknown status", "row", n, "status", string(r.fields.Status))
		r.fields.Status = ""
	}

	c, created, err := p.contacts.UpsertByEmail(ctx, email, r.fields)
	if err != nil {
		fail("%s: %v", email, err)
		return
	}
	if len(segmentIDs) > 0 {
		if err := p.segments.AddMemberships(ctx, c.ID, segmentIDs); err != nil {
			fail("%s: contact saved but segment assignment failed: %v", email, err)
			return
		}
	}
	if created {
		res.Created++
	} else {
		res.Updated++
	}
}

func (p *Pipeline) targetSegments(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if p.segments == nil {
			return nil, fmt.Errorf("%w: segment assignment is not available", ErrInvalidInput)
		}
		if _, err := p.segments.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("%w: target segment %s: %v", ErrInvalidInput, id, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// columns is a validated mapping: column name to field.
type columns map[string]Field

func compileMapping(m map[string]string) (columns, error) {
	cols := make(columns, len(m))
	hasEmail := false
	for col, f := range m {
		field := Field(strings.ToLower(strings.TrimSpace(f)))
		if field == "" || field == FieldIgnore {
			continue
		}
		if !knownFields[field] {
			return nil, fmt.Errorf("%w: column %q maps to unknown field %q", ErrInvalidInput, col, f)
		}
		if field == FieldEmail {
			hasEmail = true
		}
		cols[col] = field
	}
	if !hasEmail {
		return nil, fmt.Errorf("%w: no column is mapped to email", ErrInvalidInput)
	}
	return cols, nil
}

type parsedRow struct {
	email  string
	fields domain.ContactFields
}

func (cols columns) extract(row map[string]string) parsedRow {
	var (
		out         parsedRow
		first, last string
	)
	for col, field := range cols {
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		switch field {
		case FieldEmail:
			out.email = v
		case FieldName:
			out.fields.Name = v
		case FieldFirstName:
			first = v
		case FieldLastName:
			last = v
		case FieldPhone:
			out.fields.Phone = v
		case FieldCountryCode:
			out.fields.CountryCode = v
		case FieldCompany:
			out.fields.Company = v
		case FieldSource:
			out.fields.Source = v
		case FieldTags:
			out.fields.Tags = splitTags(v)
		case FieldStatus:
			out.fields.Status = domain.ContactStatus(strings.ToLower(v))
		}
	}
	if out.fields.Name == "" {
		out.fields.Name = strings.TrimSpace(first + " " + last)
	}
	return out
}

func splitTags(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
}
