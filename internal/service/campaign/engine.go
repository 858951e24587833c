package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/distlock"
	"github.com/ignite/construction-crm/internal/pkg/logger"
	"github.com/ignite/construction-crm/internal/service/ratelimit"
	"github.com/ignite/construction-crm/internal/service/sending"
	"github.com/ignite/construction-crm/internal/service/template"
)

// DefaultBatchSize is used when SendBatch is called without a size.
const DefaultBatchSize = 10

// DispatchLockKey serialises batches across processes in strict mode. The
// rate windows are global, so the lock is too.
const DispatchLockKey = "crm:campaign:dispatch"

// ClaimLease bounds how long a batch may hold recipients. Claims left behind
// by a crashed process become claimable again after it.
const ClaimLease = 10 * time.Minute

// Deps wires the engine to its collaborators. Repo, Contacts, Templates,
// Governor and Sender are required.
type Deps struct {
	Repo       Repository
	Contacts   ContactReader
	Templates  TemplateReader
	Activities ActivityAppender
	Renderer   *template.Renderer
	Governor   *ratelimit.Governor
	Sender     sending.Sender
	Authz      auth.Authorizer
	Audit      audit.Sink

	// NewLock, when set, enables strict dispatch: at most one batch runs at
	// a time, removing the one-batch overshoot of the rate caps.
	NewLock func(key string) distlock.DistLock

	// DefaultBatchSize overrides DefaultBatchSize when positive.
	DefaultBatchSize int
}

// Engine runs campaign enrollment and dispatch. It is safe for concurrent use.
type Engine struct {
	repo       Repository
	contacts   ContactReader
	templates  TemplateReader
	activities ActivityAppender
	renderer   *template.Renderer
	governor   *ratelimit.Governor
	sender     sending.Sender
	authz      auth.Authorizer
	audit      audit.Sink
	newLock    func(key string) distlock.DistLock
	batchSize  int
	now        func() time.Time
}

// NewEngine creates a campaign engine.
func NewEngine(d Deps) *Engine {
	e := &Engine{
		repo:       d.Repo,
		contacts:   d.Contacts,
		templates:  d.Templates,
		activities: d.Activities,
		renderer:   d.Renderer,
		governor:   d.Governor,
		sender:     d.Sender,
		authz:      d.Authz,
		audit:      d.Audit,
		newLock:    d.NewLock,
		batchSize:  d.DefaultBatchSize,
		now:        time.Now,
	}
	if e.renderer == nil {
		e.renderer = template.NewRenderer()
	}
	if e.authz == nil {
		e.authz = auth.AllowAll{}
	}
	if e.audit == nil {
		e.audit = audit.Nop{}
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	return e
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name       string              `json:"name"`
	Type       domain.CampaignType `json:"type"`
	TemplateID string              `json:"template_id"`
	ContactIDs []string            `json:"contact_ids"`
}

// EnrollResult summarizes an enrollment.
type EnrollResult struct {
	Enrolled int `json:"enrolled"`
	Excluded int `json:"excluded"` // do-not-contact or unsubscribed
	Skipped  int `json:"skipped"`  // unknown or already enrolled
}

// CreateCampaign creates a draft campaign bound to a template and enrolls
// the eligible contacts as pending recipients.
func (e *Engine) CreateCampaign(ctx context.Context, in CreateInput) (*domain.Campaign, *EnrollResult, error) {
	if err := e.authz.IsPermitted(ctx, auth.ActionCampaignWrite); err != nil {
		return nil, nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = domain.CampaignNewsletter
	}
	if !in.Type.Valid() {
		return nil, nil, fmt.Errorf("%w: type %q", ErrInvalidInput, in.Type)
	}
	if _, err := e.loadTemplate(ctx, in.TemplateID); err != nil {
		return nil, nil, err
	}

	eligible, res, err := e.eligible(ctx, in.ContactIDs)
	if err != nil {
		return nil, nil, err
	}

	now := e.now().UTC()
	c := &domain.Campaign{
		ID:         uuid.New().String(),
		Name:       in.Name,
		Type:       in.Type,
		TemplateID: in.TemplateID,
		Status:     domain.CampaignDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	n, err := e.repo.Create(ctx, c, eligible)
	if err != nil {
		return nil, nil, fmt.Errorf("create campaign: %w", err)
	}
	res.Enrolled = n
	res.Skipped += len(eligible) - n

	e.audit.Record(ctx, audit.NewEvent(ctx, "campaign.create", "campaign", c.ID,
		map[string]any{"enrolled": res.Enrolled, "excluded": res.Excluded}))
	return c, res, nil
}

// AddRecipients enrolls more contacts. Contacts already enrolled are
// ignored, so calling it twice with the same ids enrolls them once.
func (e *Engine) AddRecipients(ctx context.Context, campaignID string, contactIDs []string) (*EnrollResult, error) {
	if err := e.authz.IsPermitted(ctx, auth.ActionCampaignWrite); err != nil {
		return nil, err
	}
	c, err := e.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrCampaignCompleted
	}

	eligible, res, err := e.eligible(ctx, contactIDs)
	if err != nil {
		return nil, err
	}
	n, err := e.repo.InsertRecipients(ctx, campaignID, eligible)
	if err != nil {
		return nil, fmt.Errorf("enroll recipients: %w", err)
	}
	res.Enrolled = n
	res.Skipped += len(eligible) - n

	e.audit.Record(ctx, audit.NewEvent(ctx, "campaign.add_recipients", "campaign", campaignID,
		map[string]any{"enrolled": res.Enrolled, "excluded": res.Excluded}))
	return res, nil
}

// eligible resolves ids to contacts and drops the unknown and the excluded.
func (e *Engine) eligible(ctx context.Context, ids []string) ([]string, *EnrollResult, error) {
	res := &EnrollResult{}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, res, nil
	}
	contacts, err := e.contacts.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load contacts: %w", err)
	}
	found := make(map[string]*domain.Contact, len(contacts))
	for i := range contacts {
		found[contacts[i].ID] = &contacts[i]
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		c, ok := found[id]
		switch {
		case !ok:
			res.Skipped++
		case c.Excluded():
			res.Excluded++
		default:
			out = append(out, id)
		}
	}
	return out, res, nil
}

func (e *Engine) loadTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrTemplateNotFound
	}
	t, err := e.templates.Get(ctx, id)
	if errors.Is(err, template.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return t, nil
}

// BatchResult summarizes one dispatched batch.
type BatchResult struct {
	Sent      int                   `json:"sent"`
	Bounced   int                   `json:"bounced"`
	Errors    []string              `json:"errors"`
	Remaining int                   `json:"remaining"`
	Status    domain.CampaignStatus `json:"status"`
}

// SendBatch dispatches up to size pending recipients, bounded by the rate
// governor's remaining capacity. When a rate window is exhausted it returns
// a *ratelimit.RateLimitError and changes nothing. Recipients are claimed
// before they reach the transport, so concurrent batches on one campaign
// never send to the same recipient. The context is checked between
// recipients only; a recipient handed to the transport is always recorded.
func (e *Engine) SendBatch(ctx context.Context, campaignID string, size int) (*BatchResult, error) {
	if err := e.authz.IsPermitted(ctx, auth.ActionCampaignSend); err != nil {
		return nil, err
	}
	c, err := e.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return &BatchResult{Errors: []string{}, Status: c.Status}, nil
	}
	if size <= 0 {
		size = e.batchSize
	}

	if e.newLock != nil {
		lock := e.newLock(DispatchLockKey)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		if !ok {
			return nil, ErrDispatchBusy
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("campaign: release dispatch lock failed", "error", err.Error())
			}
		}()
	}

	capacity, err := e.governor.CheckCapacity(ctx)
	if err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			logger.Info("campaign: batch rate limited", "campaign_id", campaignID, "reason", err.Error())
		}
		return nil, err
	}

	tpl, err := e.loadTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}
	pending, err := e.repo.ClaimPending(ctx, campaignID, min(size, capacity.Remaining), e.now().UTC(), ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("claim pending recipients: %w", err)
	}
	contacts, err := e.recipientContacts(ctx, pending)
	if err != nil {
		e.release(ctx, campaignID, pending)
		return nil, err
	}

	if c.Status == domain.CampaignDraft && len(pending) > 0 {
		if err := e.repo.UpdateStatus(ctx, campaignID, domain.CampaignSending, e.now().UTC()); err != nil {
			e.release(ctx, campaignID, pending)
			return nil, fmt.Errorf("start campaign: %w", err)
		}
	}

	res := &BatchResult{Errors: []string{}}
	done := 0
	for _, r := range pending {
		if ctx.Err() != nil {
			break
		}
		e.dispatch(ctx, c, tpl, r, contacts[r.ContactID], res)
		done++
	}
	e.release(ctx, campaignID, pending[done:])

	// Status recompute must not be skipped because the caller went away.
	remaining, err := e.repo.CountPending(context.WithoutCancel(ctx), campaignID)
	if err != nil {
		return nil, fmt.Errorf("count pending recipients: %w", err)
	}
	res.Remaining = remaining
	res.Status = c.Status
	switch {
	case remaining > 0:
		res.Status = domain.CampaignSending
	case len(pending) > 0 || c.Status == domain.CampaignSending:
		// An empty draft stays a draft so recipients can still be added.
		res.Status = domain.CampaignCompleted
		if err := e.repo.UpdateStatus(context.WithoutCancel(ctx), campaignID, res.Status, e.now().UTC()); err != nil {
			return nil, fmt.Errorf("complete campaign: %w", err)
		}
	}

	logger.Info("campaign: batch dispatched", "campaign_id", campaignID,
		"sent", res.Sent, "bounced", res.Bounced, "remaining", res.Remaining)
	e.audit.Record(ctx, audit.NewEvent(ctx, "campaign.send_batch", "campaign", campaignID,
		map[string]any{"sent": res.Sent, "bounced": res.Bounced, "remaining": res.Remaining}))
	return res, nil
}

// release hands unsent claims back so the next batch picks them up.
func (e *Engine) release(ctx context.Context, campaignID string, claimed []domain.CampaignRecipient) {
	if len(claimed) == 0 {
		return
	}
	ids := make([]string, len(claimed))
	for i, r := range claimed {
		ids[i] = r.ID
	}
	if err := e.repo.ReleaseClaims(context.WithoutCancel(ctx), ids); err != nil {
		logger.Warn("campaign: release recipient claims failed", "campaign_id", campaignID,
			"count", len(ids), "error", err.Error())
	}
}

func (e *Engine) recipientContacts(ctx context.Context, pending []domain.CampaignRecipient) (map[string]*domain.Contact, error) {
	ids := make([]string, len(pending))
	for i, r := range pending {
		ids[i] = r.ContactID
	}
	out := make(map[string]*domain.Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	list, err := e.contacts.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load recipient contacts: %w", err)
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

// dispatch resolves one recipient to sent or bounced.
func (e *Engine) dispatch(ctx context.Context, c *domain.Campaign, tpl *domain.EmailTemplate,
	r domain.CampaignRecipient, contact *domain.Contact, res *BatchResult) {
	if contact == nil {
		e.bounce(ctx, r, "contact not found", res)
		return
	}
	// Flags may have changed since enrollment.
	if contact.Excluded() {
		e.bounce(ctx, r, ExcludedReason, res)
		return
	}

	subject, body, err := e.renderer.RenderMessage(tpl, contact)
	if err != nil {
		e.bounce(ctx, r, err.Error(), res)
		return
	}
	msg := &sending.Message{
		To:          contact.Email,
		Subject:     subject,
		Body:        body,
		CampaignID:  c.ID,
		RecipientID: r.ID,
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		e.bounce(ctx, r, err.Error(), res)
		return
	}

	sentAt := e.now().UTC()
	ok, err := e.repo.MarkSent(context.WithoutCancel(ctx), r.ID, sentAt)
	if err != nil {
		logger.Error("campaign: mark sent failed", "campaign_id", c.ID, "recipient_id", r.ID,
			"error", err.Error())
		res.Errors = append(res.Errors, fmt.Sprintf("contact %s: record send: %v", r.ContactID, err))
		return
	}
	if !ok {
		return
	}
	res.Sent++

	if err := e.governor.RecordSent(ctx, r.ID, sentAt); err != nil {
		logger.Warn("campaign: record send in rate counter failed", "recipient_id", r.ID,
			"error", err.Error())
	}
	e.appendSent(ctx, c.ID, contact.ID, subject, sentAt)
}

func (e *Engine) bounce(ctx context.Context, r domain.CampaignRecipient, reason string, res *BatchResult) {
	ok, err := e.repo.MarkBounced(context.WithoutCancel(ctx), r.ID, reason)
	if err != nil {
		logger.Error("campaign: mark bounced failed", "campaign_id", r.CampaignID,
			"recipient_id", r.ID, "error", err.Error())
		res.Errors = append(res.Errors, fmt.Sprintf("contact %s: record bounce: %v", r.ContactID, err))
		return
	}
	if !ok {
		return
	}
	res.Bounced++
	res.Errors = append(res.Errors, fmt.Sprintf("contact %s: %s", r.ContactID, reason))
}

// appendSent is best effort: a failed append never fails the batch.
func (e *Engine) appendSent(ctx context.Context, campaignID, contactID, subject string, at time.Time) {
	if e.activities == nil {
		return
	}
	a := domain.NewActivity(contactID, domain.EmailSentPayload{CampaignID: campaignID, Subject: subject})
	a.ID = uuid.New().String()
	a.Actor = auth.Actor(ctx)
	a.CreatedAt = at
	if err := e.activities.Append(ctx, a); err != nil {
		logger.Warn("campaign: append email_sent activity failed", "campaign_id", campaignID,
			"contact_id", contactID, "error", err.Error())
	}
}

// Get returns a single campaign.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return e.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (e *Engine) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return e.repo.List(ctx, f)
}

// Stats counts the campaign's recipients by state.
func (e *Engine) Stats(ctx context.Context, id string) (domain.CampaignStats, error) {
	if _, err := e.repo.Get(ctx, id); err != nil {
		return domain.CampaignStats{}, err
	}
	return e.repo.Stats(ctx, id)
}

// Recipients returns the campaign's recipients.
func (e *Engine) Recipients(ctx context.Context, id string) ([]domain.CampaignRecipient, error) {
	if _, err := e.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.repo.Recipients(ctx, id)
}

// Delete removes a campaign and its recipient rows. Contacts are untouched.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.authz.IsPermitted(ctx, auth.ActionCampaignWrite); err != nil {
		return err
	}
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	e.audit.Record(ctx, audit.NewEvent(ctx, "campaign.delete", "campaign", id, nil))
	return nil
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
