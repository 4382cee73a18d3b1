package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"finanzapp/internal/core"
)

// ExpenseStore is the persistence ExpenseService works on.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, def core.ExpenseDefinition, first core.LedgerEntry) error
	GetDefinition(ctx context.Context, id string) (core.ExpenseDefinition, error)
	StopRecurring(ctx context.Context, id string) error
	GetEntry(ctx context.Context, id string) (core.LedgerEntry, error)
	ListEntries(ctx context.Context, userID string, w core.Window) ([]core.LedgerEntry, error)
	UnratedEntries(ctx context.Context, userID string, w core.Window) ([]core.UnratedEntry, error)
	UpdateRating(ctx context.Context, entryID string, rating core.Rating, ratedAt time.Time) error
	DeleteEntry(ctx context.Context, e core.LedgerEntry) error
}

// LedgerPublisher announces user-driven ledger changes.
type LedgerPublisher interface {
	PublishEntryCreated(ctx context.Context, e core.LedgerEntry) error
	PublishEntryDeleted(ctx context.Context, e core.LedgerEntry) error
}

// ChargeCatcher brings a user's recurring charges up to date.
type ChargeCatcher interface {
	EnsureChargesUpToNow(ctx context.Context, userID string) (int, error)
}

// SortField orders month listings.
type SortField string

const (
	SortByDate   SortField = "date"
	SortByAmount SortField = "amount"
	SortByRating SortField = "rating"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

type (
	// NewExpense is the input for CreateExpense. ChargedAt is set by the
	// external capture endpoint; otherwise the expense is charged now.
	NewExpense struct {
		Purpose       string
		Amount        core.Money
		IsRecurring   bool
		IntervalKind  core.IntervalKind
		IntervalEvery int
		ChargedAt     *time.Time
	}

	CreatedExpense struct {
		DefinitionID string
		EntryID      string
		Entry        core.LedgerEntry
	}

	NextCharge struct {
		HasNextCharge  bool
		NextChargeDate *time.Time
	}

	MonthQuery struct {
		MonthKey string
		SortBy   SortField
		Order    SortOrder
	}

	MonthEntries struct {
		MonthKey       string
		IsCurrentMonth bool
		Entries        []core.LedgerEntry
	}
)

// ExpenseService implements the user-facing expense operations on top of
// the store and the charge generator.
type ExpenseService struct {
	store     ExpenseStore
	charges   ChargeCatcher
	publisher LedgerPublisher
	listener  LedgerListener
	loc       *time.Location
	now       func() time.Time
}

type ExpenseServiceOption func(*ExpenseService)

// WithExpenseListener notifies l after ratings, deletions and backdated
// captures.
func WithExpenseListener(l LedgerListener) ExpenseServiceOption {
	return func(s *ExpenseService) { s.listener = l }
}

// NewExpenseService wires the service. publisher may be nil.
func NewExpenseService(store ExpenseStore, charges ChargeCatcher, publisher LedgerPublisher, loc *time.Location, opts ...ExpenseServiceOption) *ExpenseService {
	if loc == nil {
		loc = time.Local
	}
	s := &ExpenseService{
		store:     store,
		charges:   charges,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExpenseService) changed(userID string) {
	if s.listener != nil {
		s.listener.LedgerChanged(userID)
	}
}

func (s *ExpenseService) clock() time.Time { return s.now().In(s.loc) }

// CreateExpense stores a definition together with its first ledger entry.
func (s *ExpenseService) CreateExpense(ctx context.Context, userID string, in NewExpense) (CreatedExpense, error) {
	now := s.clock()
	start := now
	if in.ChargedAt != nil {
		start = in.ChargedAt.In(s.loc)
	}

	def := core.ExpenseDefinition{
		ID:            uuid.NewString(),
		UserID:        userID,
		Purpose:       strings.TrimSpace(in.Purpose),
		Amount:        in.Amount,
		IsRecurring:   in.IsRecurring,
		IntervalKind:  core.IntervalNone,
		IntervalEvery: 1,
		StartDate:     start,
		TimesCharged:  1,
		TotalPaid:     in.Amount,
		LastChargedAt: &start,
		CreatedAt:     now,
	}
	if in.IsRecurring {
		def.IntervalKind = in.IntervalKind
		def.IntervalEvery = in.IntervalEvery
		if def.IntervalKind.Anchored() {
			anchor := start.Day()
			def.AnchorDayOfMonth = &anchor
		}
	}
	if err := def.Validate(); err != nil {
		return CreatedExpense{}, err
	}

	first := newChargeEntry(def, start)
	if err := s.store.CreateExpense(ctx, def, first); err != nil {
		return CreatedExpense{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"user_id", userID,
		"definition_id", def.ID,
		"entry_id", first.ID,
		"recurring", def.IsRecurring,
		"amount_cents", def.Amount.Cents)
	if in.ChargedAt != nil {
		s.changed(userID)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEntryCreated(ctx, first); err != nil {
			slog.ErrorContext(ctx, "Failed to publish entry created message", "entry_id", first.ID, "error", err)
			// Don't fail the request - the expense is saved
		}
	}
	return CreatedExpense{DefinitionID: def.ID, EntryID: first.ID, Entry: first}, nil
}

// capturedAtLayouts are tried after the German day-first format.
var capturedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseCapturedAt reads capture timestamps sent by phone shortcuts:
// "DD.MM.YYYY, HH:mm" or ISO 8601. Zone-less values are read in loc.
func ParseCapturedAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	if date, clock, ok := strings.Cut(s, ","); ok {
		clock = strings.TrimSpace(clock)
		if len(clock) > 5 {
			clock = clock[:5]
		}
		if t, err := time.ParseInLocation("02.01.2006 15:04", date+" "+clock, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range capturedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.NewValidationError("captured_at",
		fmt.Sprintf("unsupported format %q (want \"DD.MM.YYYY, HH:mm\" or ISO 8601)", s))
}

// ownedEntry loads an entry and hides entries of other users.
func (s *ExpenseService) ownedEntry(ctx context.Context, userID, entryID string) (core.LedgerEntry, error) {
	e, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if e.UserID != userID {
		return core.LedgerEntry{}, core.ErrNotFound
	}
	return e, nil
}

func (s *ExpenseService) ownedDefinition(ctx context.Context, userID, defID string) (core.ExpenseDefinition, error) {
	def, err := s.store.GetDefinition(ctx, defID)
	if err != nil {
		return core.ExpenseDefinition{}, err
	}
	if def.UserID != userID {
		return core.ExpenseDefinition{}, core.ErrNotFound
	}
	return def, nil
}

// DeleteEntry removes an entry of the current month and rolls it out of
// its definition's aggregates.
func (s *ExpenseService) DeleteEntry(ctx context.Context, userID, entryID string) error {
	e, err := s.ownedEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if e.MonthKey != core.MonthKey(s.clock()) {
		return core.ErrNotCurrentMonth
	}
	if err := s.store.DeleteEntry(ctx, e); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry deleted", "user_id", userID, "entry_id", e.ID, "definition_id", e.DefinitionID)
	s.changed(userID)

	if s.publisher != nil {
		if err := s.publisher.PublishEntryDeleted(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to publish entry deleted message", "entry_id", e.ID, "error", err)
		}
	}
	return nil
}

// StopRecurring ends a recurring definition. The returned NextCharge is the
// charge that would have come next.
func (s *ExpenseService) StopRecurring(ctx context.Context, userID, defID string) (NextCharge, error) {
	def, err := s.ownedDefinition(ctx, userID, defID)
	if err != nil {
		return NextCharge{}, err
	}
	if !def.IsRecurring {
		return NextCharge{}, core.ErrNotRecurring
	}
	pending, err := nextChargeOf(def, s.clock())
	if err != nil {
		return NextCharge{}, err
	}
	if err := s.store.StopRecurring(ctx, def.ID); err != nil {
		return NextCharge{}, fmt.Errorf("stop recurring: %w", err)
	}
	slog.InfoContext(ctx, "Recurring expense stopped", "user_id", userID, "definition_id", def.ID)
	return pending, nil
}

// NextCharge reports the upcoming charge of a definition.
func (s *ExpenseService) NextCharge(ctx context.Context, userID, defID string) (NextCharge, error) {
	def, err := s.ownedDefinition(ctx, userID, defID)
	if err != nil {
		return NextCharge{}, err
	}
	return nextChargeOf(def, s.clock())
}

func nextChargeOf(def core.ExpenseDefinition, now time.Time) (NextCharge, error) {
	next, future, err := HasFutureCharge(def, now)
	if err != nil || !future {
		return NextCharge{}, err
	}
	return NextCharge{HasNextCharge: true, NextChargeDate: &next}, nil
}

// RateEntry stores a rating on an entry of the current month.
func (s *ExpenseService) RateEntry(ctx context.Context, userID, entryID string, in RatingInput) (core.LedgerEntry, error) {
	e, err := s.ownedEntry(ctx, userID, entryID)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	now := s.clock()
	if e.MonthKey != core.MonthKey(now) {
		return core.LedgerEntry{}, core.ErrNotCurrentMonth
	}
	rating, err := RatingFor(in)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if err := s.store.UpdateRating(ctx, e.ID, rating, now); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("update rating: %w", err)
	}
	e.Rating = rating
	e.RatedAt = &now

	slog.InfoContext(ctx, "Entry rated",
		"user_id", userID,
		"entry_id", e.ID,
		"status", rating.Status,
		"score", *rating.Score)
	s.changed(userID)
	return e, nil
}

// catchUp runs the charge generator. Reads go on with whatever was
// committed when it fails.
func (s *ExpenseService) catchUp(ctx context.Context, userID string) {
	if s.charges == nil {
		return
	}
	if _, err := s.charges.EnsureChargesUpToNow(ctx, userID); err != nil {
		slog.ErrorContext(ctx, "Catch-up failed, serving committed entries", "user_id", userID, "error", err)
	}
}

// MonthEntries lists the entries of a month. A month in the future is
// clamped to the current one.
func (s *ExpenseService) MonthEntries(ctx context.Context, userID string, q MonthQuery) (MonthEntries, error) {
	if q.SortBy == "" {
		q.SortBy = SortByDate
	}
	if q.Order == "" {
		q.Order = OrderDesc
	}
	switch q.SortBy {
	case SortByDate, SortByAmount, SortByRating:
	default:
		return MonthEntries{}, core.NewValidationError("sort_by", fmt.Sprintf("unknown field %q", q.SortBy))
	}
	if q.Order != OrderAsc && q.Order != OrderDesc {
		return MonthEntries{}, core.NewValidationError("order", fmt.Sprintf("unknown order %q", q.Order))
	}

	current := core.MonthKey(s.clock())
	key := q.MonthKey
	if key == "" {
		key = current
	}
	w, err := core.ParseMonthKey(key, s.loc)
	if err != nil {
		return MonthEntries{}, &core.ValidationError{Field: "month_key", Reason: "must be YYYY-MM", Err: err}
	}
	if key > current {
		key = current
		w, _ = core.ParseMonthKey(key, s.loc)
	}
	if key == current {
		s.catchUp(ctx, userID)
	}

	entries, err := s.store.ListEntries(ctx, userID, w)
	if err != nil {
		return MonthEntries{}, fmt.Errorf("list entries: %w", err)
	}
	sortEntries(entries, q.SortBy, q.Order)
	return MonthEntries{MonthKey: key, IsCurrentMonth: key == current, Entries: entries}, nil
}

func sortEntries(entries []core.LedgerEntry, by SortField, order SortOrder) {
	slices.SortStableFunc(entries, func(a, b core.LedgerEntry) int {
		var c int
		switch by {
		case SortByAmount:
			c = cmp.Compare(a.Amount.Cents, b.Amount.Cents)
		case SortByRating:
			c = cmp.Compare(scoreOrZero(a), scoreOrZero(b))
		default:
			c = a.ChargedAt.Compare(b.ChargedAt)
		}
		if order == OrderDesc {
			return -c
		}
		return c
	})
}

// scoreOrZero sorts unrated entries like a zero score.
func scoreOrZero(e core.LedgerEntry) float64 {
	if e.Rating.Score == nil {
		return 0
	}
	return *e.Rating.Score
}

// MonthSummary totals the current month.
func (s *ExpenseService) MonthSummary(ctx context.Context, userID string) (core.MonthSummary, error) {
	s.catchUp(ctx, userID)
	key := core.MonthKey(s.clock())
	w, err := core.ParseMonthKey(key, s.loc)
	if err != nil {
		return core.MonthSummary{}, err
	}
	entries, err := s.store.ListEntries(ctx, userID, w)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("list entries: %w", err)
	}
	sum := core.MonthSummary{MonthKey: key}
	for _, e := range entries {
		sum.Total = sum.Total.Add(e.Amount)
		if e.Rating.Status == core.RatingUnrated {
			sum.CountUnrated++
		}
	}
	return sum, nil
}

// UnratedEntries lists the current month's entries still waiting for a rating.
func (s *ExpenseService) UnratedEntries(ctx context.Context, userID string) ([]core.UnratedEntry, error) {
	s.catchUp(ctx, userID)
	w, err := core.ParseMonthKey(core.MonthKey(s.clock()), s.loc)
	if err != nil {
		return nil, err
	}
	out, err := s.store.UnratedEntries(ctx, userID, w)
	if err != nil {
		return nil, fmt.Errorf("list unrated entries: %w", err)
	}
	return out, nil
}
