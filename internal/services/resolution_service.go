package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finanzapp/internal/core"
)

// ResolutionStore persists resolutions and reads the entries they are
// evaluated against.
type ResolutionStore interface {
	CreateResolution(ctx context.Context, res core.Resolution) error
	GetResolution(ctx context.Context, id string) (core.Resolution, error)
	ListResolutions(ctx context.Context, userID, monthKey string) ([]core.Resolution, error)
	UpdateResolution(ctx context.Context, res core.Resolution) error
	DeleteResolution(ctx context.Context, id string) error
	ListEntries(ctx context.Context, userID string, w core.Window) ([]core.LedgerEntry, error)
}

type NewResolution struct {
	Type     core.ResolutionType
	MonthKey string
	Params   core.ResolutionParams
}

type ResolutionService struct {
	store   ResolutionStore
	charges ChargeCatcher
	loc     *time.Location
	now     func() time.Time
}

func NewResolutionService(store ResolutionStore, charges ChargeCatcher, loc *time.Location) *ResolutionService {
	if loc == nil {
		loc = time.Local
	}
	return &ResolutionService{store: store, charges: charges, loc: loc, now: time.Now}
}

func (s *ResolutionService) clock() time.Time { return s.now().In(s.loc) }

func (s *ResolutionService) List(ctx context.Context, userID, monthKey string) ([]core.Resolution, error) {
	if _, err := s.monthWindow(monthKey); err != nil {
		return nil, err
	}
	return s.store.ListResolutions(ctx, userID, monthKey)
}

// Create adds a resolution. A month holds at most
// core.MaxResolutionsPerMonth of them.
func (s *ResolutionService) Create(ctx context.Context, userID string, in NewResolution) (core.Resolution, error) {
	now := s.clock()
	res := core.Resolution{
		ID:               uuid.NewString(),
		UserID:           userID,
		MonthKey:         in.MonthKey,
		Type:             in.Type,
		ResolutionParams: in.Params,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := res.Validate(); err != nil {
		return core.Resolution{}, err
	}
	res.Normalize()
	if err := s.store.CreateResolution(ctx, res); err != nil {
		return core.Resolution{}, fmt.Errorf("create resolution: %w", err)
	}
	slog.InfoContext(ctx, "Resolution created",
		"user_id", userID,
		"resolution_id", res.ID,
		"type", res.Type,
		"month_key", res.MonthKey)
	return res, nil
}

// Update replaces the parameters of a resolution. Its type and month stay.
func (s *ResolutionService) Update(ctx context.Context, userID, id string, params core.ResolutionParams) (core.Resolution, error) {
	res, err := s.owned(ctx, userID, id)
	if err != nil {
		return core.Resolution{}, err
	}
	res.ResolutionParams = params
	if err := res.Validate(); err != nil {
		return core.Resolution{}, err
	}
	res.Normalize()
	res.UpdatedAt = s.clock()
	if err := s.store.UpdateResolution(ctx, res); err != nil {
		return core.Resolution{}, fmt.Errorf("update resolution: %w", err)
	}
	return res, nil
}

func (s *ResolutionService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteResolution(ctx, id); err != nil {
		return fmt.Errorf("delete resolution: %w", err)
	}
	slog.InfoContext(ctx, "Resolution deleted", "user_id", userID, "resolution_id", id)
	return nil
}

func (s *ResolutionService) owned(ctx context.Context, userID, id string) (core.Resolution, error) {
	res, err := s.store.GetResolution(ctx, id)
	if err != nil {
		return core.Resolution{}, err
	}
	if res.UserID != userID {
		return core.Resolution{}, core.ErrNotFound
	}
	return res, nil
}

// Statuses evaluates every resolution of monthKey against that month and
// the month before it.
func (s *ResolutionService) Statuses(ctx context.Context, userID, monthKey string) ([]core.ResolutionStatus, error) {
	w, err := s.monthWindow(monthKey)
	if err != nil {
		return nil, err
	}
	isCurrent := monthKey == core.MonthKey(s.clock())
	if isCurrent && s.charges != nil {
		if _, err := s.charges.EnsureChargesUpToNow(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Catch-up failed, evaluating committed entries", "user_id", userID, "error", err)
		}
	}

	resolutions, err := s.store.ListResolutions(ctx, userID, monthKey)
	if err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}
	if len(resolutions) == 0 {
		return []core.ResolutionStatus{}, nil
	}

	window, err := s.store.ListEntries(ctx, userID, w)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	previous, err := s.store.ListEntries(ctx, userID, core.PreviousPeriod(core.PeriodMonth, w))
	if err != nil {
		return nil, fmt.Errorf("list previous entries: %w", err)
	}

	out := make([]core.ResolutionStatus, 0, len(resolutions))
	for _, res := range resolutions {
		st, err := EvaluateResolution(res, window, previous, isCurrent)
		if err != nil {
			return nil, fmt.Errorf("evaluate resolution %s: %w", res.ID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *ResolutionService) monthWindow(monthKey string) (core.Window, error) {
	if monthKey == "" {
		return core.Window{}, core.NewValidationError("month_key", "is required")
	}
	w, err := core.ParseMonthKey(monthKey, s.loc)
	if err != nil {
		return core.Window{}, &core.ValidationError{Field: "month_key", Reason: "must be YYYY-MM", Err: err}
	}
	return w, nil
}
