package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finanzapp/internal/cache"
	"finanzapp/internal/core"
)

// comparisonLookback is how many periods before the previous one are
// searched for rated entries to compare against.
const comparisonLookback = 12

// EntryLister reads a user's entries in a window.
type EntryLister interface {
	ListEntries(ctx context.Context, userID string, w core.Window) ([]core.LedgerEntry, error)
}

// PeriodStatistics summarizes one month or ISO week.
type PeriodStatistics struct {
	PeriodType core.PeriodType
	PeriodKey  string
	Window     core.Window
	Entries    []core.LedgerEntry
	TotalSpent core.Money
	// AvgRating is the plain mean of RATED scores; nil without any.
	AvgRating         *float64
	RatingDiff        *float64
	HasComparison     bool
	ComparisonKey     string
	RatingsForDensity []float64
}

type StatisticsService struct {
	entries EntryLister
	charges ChargeCatcher
	cache   *cache.LRUCache[PeriodStatistics]
	loc     *time.Location
	now     func() time.Time
}

// NewStatisticsService wires the service. Results for closed periods are
// kept in statsCache when it is not nil; writers that can touch closed
// periods must notify a StatisticsInvalidator over the same cache.
func NewStatisticsService(entries EntryLister, charges ChargeCatcher, statsCache *cache.LRUCache[PeriodStatistics], loc *time.Location) *StatisticsService {
	if loc == nil {
		loc = time.Local
	}
	return &StatisticsService{entries: entries, charges: charges, cache: statsCache, loc: loc, now: time.Now}
}

// Period computes the statistics of a period. An empty key means the
// current period; future periods are rejected.
func (s *StatisticsService) Period(ctx context.Context, userID string, pt core.PeriodType, key string) (PeriodStatistics, error) {
	if pt == "" {
		pt = core.PeriodMonth
	}
	if !pt.IsValid() {
		return PeriodStatistics{}, core.NewValidationError("period_type", fmt.Sprintf("unknown period type %q", pt))
	}
	current := core.PeriodKey(pt, s.now().In(s.loc))
	if key == "" {
		key = current
	}
	w, err := core.ParsePeriodKey(pt, key, s.loc)
	if err != nil {
		return PeriodStatistics{}, &core.ValidationError{Field: "period_key", Reason: "malformed", Err: err}
	}
	if key > current {
		return PeriodStatistics{}, &core.ValidationError{Field: "period_key", Reason: "lies in the future", Err: core.ErrFuturePeriod}
	}

	// catch-up may add charges to any past period
	if s.charges != nil {
		if _, err := s.charges.EnsureChargesUpToNow(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Catch-up failed, computing statistics on committed entries", "user_id", userID, "error", err)
		}
	}
	cacheable := key != current && s.cache != nil
	cacheKey := statsCachePrefix(userID) + string(pt) + "|" + key
	if cacheable {
		if st, ok := s.cache.Get(cacheKey); ok {
			return st, nil
		}
	}

	entries, err := s.entries.ListEntries(ctx, userID, w)
	if err != nil {
		return PeriodStatistics{}, fmt.Errorf("list entries: %w", err)
	}
	st := PeriodStatistics{
		PeriodType:        pt,
		PeriodKey:         key,
		Window:            w,
		Entries:           entries,
		RatingsForDensity: []float64{},
	}
	var ratedSum float64
	rated := 0
	for _, e := range entries {
		st.TotalSpent = st.TotalSpent.Add(e.Amount)
		score, ok := e.Rating.RatedScore()
		if !ok {
			continue
		}
		ratedSum += score
		rated++
		if score >= 0 && score <= 10 {
			st.RatingsForDensity = append(st.RatingsForDensity, score)
		}
	}
	if rated > 0 {
		avg := ratedSum / float64(rated)
		st.AvgRating = &avg
	}

	cmpKey, cmpAvg, found, err := s.comparison(ctx, userID, pt, w)
	if err != nil {
		return PeriodStatistics{}, err
	}
	st.HasComparison = found
	st.ComparisonKey = cmpKey
	if found && st.AvgRating != nil {
		diff := *st.AvgRating - cmpAvg
		st.RatingDiff = &diff
	}

	if cacheable {
		s.cache.Set(cacheKey, st)
	}
	return st, nil
}

// Invalidate drops the cached statistics of a user.
func (s *StatisticsService) Invalidate(userID string) {
	NewStatisticsInvalidator(s.cache).LedgerChanged(userID)
}

// StatisticsInvalidator drops a user's cached statistics whenever their
// ledger changes. A nil cache makes it a no-op.
type StatisticsInvalidator struct {
	cache *cache.LRUCache[PeriodStatistics]
}

func NewStatisticsInvalidator(statsCache *cache.LRUCache[PeriodStatistics]) *StatisticsInvalidator {
	return &StatisticsInvalidator{cache: statsCache}
}

func (i *StatisticsInvalidator) LedgerChanged(userID string) {
	if i.cache == nil {
		return
	}
	if n := i.cache.DeletePrefix(statsCachePrefix(userID)); n > 0 {
		slog.Debug("Statistics cache invalidated", "user_id", userID, "removed", n)
	}
}

func statsCachePrefix(userID string) string { return userID + "|" }

// comparison finds the most recent period before w that has RATED entries
// and returns its average.
func (s *StatisticsService) comparison(ctx context.Context, userID string, pt core.PeriodType, w core.Window) (string, float64, bool, error) {
	prev := w
	for i := 0; i <= comparisonLookback; i++ {
		prev = core.PreviousPeriod(pt, prev)
		entries, err := s.entries.ListEntries(ctx, userID, prev)
		if err != nil {
			return "", 0, false, fmt.Errorf("list comparison entries: %w", err)
		}
		var sum float64
		n := 0
		for _, e := range entries {
			if score, ok := e.Rating.RatedScore(); ok {
				sum += score
				n++
			}
		}
		if n > 0 {
			return core.PeriodKey(pt, prev.Start), sum / float64(n), true, nil
		}
	}
	return "", 0, false, nil
}
