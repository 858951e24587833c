// Package viewstate remembers when each user last opened a list view, so
// the UI can highlight rows that are new since then.
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/construction-crm/internal/domain"
)

// ErrInvalidInput is returned for a blank user or view.
var ErrInvalidInput = errors.New("invalid view state input")

// Repository stores view state keyed by user and view.
type Repository interface {
	// Upsert sets last_viewed_at for (user, view).
	Upsert(ctx context.Context, st *domain.ListViewState) error

	// Get returns the state, or nil with no error when the view was never opened.
	Get(ctx context.Context, userID, view string) (*domain.ListViewState, error)
}

// Service touches and reads view state.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func key(userID, view string) (string, string, error) {
	userID, view = strings.TrimSpace(userID), strings.ToLower(strings.TrimSpace(view))
	if userID == "" || view == "" {
		return "", "", fmt.Errorf("%w: user and view are required", ErrInvalidInput)
	}
	return userID, view, nil
}

// Touch records that the user opened the view now.
func (s *Service) Touch(ctx context.Context, userID, view string) (*domain.ListViewState, error) {
	userID, view, err := key(userID, view)
	if err != nil {
		return nil, err
	}
	st := &domain.ListViewState{UserID: userID, View: view, LastViewedAt: s.now().UTC()}
	if err := s.repo.Upsert(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Get returns when the user last opened the view. A view never opened
// reports a zero LastViewedAt.
func (s *Service) Get(ctx context.Context, userID, view string) (*domain.ListViewState, error) {
	userID, view, err := key(userID, view)
	if err != nil {
		return nil, err
	}
	st, err := s.repo.Get(ctx, userID, view)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &domain.ListViewState{UserID: userID, View: view}, nil
	}
	return st, nil
}
