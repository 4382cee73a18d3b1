package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finanzapp/internal/core"
	"finanzapp/internal/storage"
)

type countingCatcher struct {
	calls int
	err   error
}

func (c *countingCatcher) EnsureChargesUpToNow(context.Context, string) (int, error) {
	c.calls++
	return 0, c.err
}

// seedOneOff stores a one-off expense charged at the given time.
func seedOneOff(t *testing.T, repo *storage.Repository, userID string, cents int64, at time.Time) core.LedgerEntry {
	t.Helper()
	def := core.ExpenseDefinition{
		ID: "def-" + at.Format("20060102150405") + "-" + userID, UserID: userID,
		Purpose: "seed", Amount: core.Money{Cents: cents},
		IntervalKind: core.IntervalNone, IntervalEvery: 1,
		StartDate: at, TimesCharged: 1, TotalPaid: core.Money{Cents: cents},
		LastChargedAt: &at, CreatedAt: at,
	}
	e := newChargeEntry(def, at)
	if err := repo.CreateExpense(context.Background(), def, e); err != nil {
		t.Fatalf("seed expense: %v", err)
	}
	return e
}

func newTestResolutionService(t *testing.T) (*ResolutionService, *storage.Repository, *countingCatcher) {
	t.Helper()
	repo := newTestRepo(t, "u1", "u2")
	catcher := &countingCatcher{}
	svc := NewResolutionService(repo, catcher, time.UTC)
	svc.now = func() time.Time { return march15 }
	return svc, repo, catcher
}

func euroParams(amount float64) core.ResolutionParams {
	unit := core.UnitEuro
	return core.ResolutionParams{ReductionAmount: &amount, ReductionUnit: &unit}
}

func TestResolutionService_CreateAndLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestResolutionService(t)

	target := 7.0
	amount := 10.0
	in := NewResolution{
		Type:     core.ResolutionTargetAvgRating,
		MonthKey: "2024-03",
		Params:   core.ResolutionParams{TargetAvgRating: &target, MaxAffectiveAmount: &amount},
	}
	res, err := svc.Create(ctx, "u1", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.MaxAffectiveAmount != nil {
		t.Errorf("foreign parameter kept after normalization")
	}

	for i := 1; i < core.MaxResolutionsPerMonth; i++ {
		if _, err := svc.Create(ctx, "u1", in); err != nil {
			t.Fatalf("Create #%d: %v", i+1, err)
		}
	}
	if _, err := svc.Create(ctx, "u1", in); !errors.Is(err, core.ErrResolutionLimit) {
		t.Fatalf("tenth resolution: got %v, want ErrResolutionLimit", err)
	}

	// the limit is per user and month
	in.MonthKey = "2024-04"
	if _, err := svc.Create(ctx, "u1", in); err != nil {
		t.Errorf("next month: %v", err)
	}
	in.MonthKey = "2024-03"
	if _, err := svc.Create(ctx, "u2", in); err != nil {
		t.Errorf("other user: %v", err)
	}

	list, err := svc.List(ctx, "u1", "2024-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != core.MaxResolutionsPerMonth {
		t.Errorf("listed %d resolutions, want %d", len(list), core.MaxResolutionsPerMonth)
	}
}

func TestResolutionService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestResolutionService(t)
	pct := core.UnitPercent
	over := 120.0
	rating := 5.0
	tests := []struct {
		name  string
		in    NewResolution
		field string
	}{
		{"unknown type", NewResolution{Type: "SPEND_LESS", MonthKey: "2024-03"}, "type"},
		{"bad month", NewResolution{Type: core.ResolutionTargetAvgRating, MonthKey: "03-2024"}, "month_key"},
		{"missing target", NewResolution{Type: core.ResolutionTargetAvgRating, MonthKey: "2024-03"}, "target_avg_rating"},
		{"percent above 100", NewResolution{
			Type: core.ResolutionUnderAmountForRating, MonthKey: "2024-03",
			Params: core.ResolutionParams{AmountThreshold: &over, RatingThreshold: &rating, Unit: &pct},
		}, "amount_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "u1", tt.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("got %v, want validation error on %s", err, tt.field)
			}
		})
	}

	if _, err := svc.List(ctx, "u1", ""); !core.IsValidation(err) {
		t.Errorf("List without month: %v", err)
	}
}

func TestResolutionService_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestResolutionService(t)
	res, err := svc.Create(ctx, "u1", NewResolution{
		Type: core.ResolutionLessThanLastMonth, MonthKey: "2024-03", Params: euroParams(10),
	})
	if err != nil {
		t.Fatal(err)
	}

	later := march15.Add(time.Hour)
	svc.now = func() time.Time { return later }
	updated, err := svc.Update(ctx, "u1", res.ID, euroParams(25))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if *updated.ReductionAmount != 25 || !updated.UpdatedAt.Equal(later) || updated.Type != res.Type {
		t.Errorf("unexpected update result: %+v", updated)
	}
	stored, _ := repo.GetResolution(ctx, res.ID)
	if *stored.ReductionAmount != 25 {
		t.Errorf("stored reduction = %v", *stored.ReductionAmount)
	}

	if _, err := svc.Update(ctx, "u1", res.ID, core.ResolutionParams{}); !core.IsValidation(err) {
		t.Errorf("Update with missing params: %v", err)
	}
	if _, err := svc.Update(ctx, "u2", res.ID, euroParams(1)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign Update: %v", err)
	}
	if err := svc.Delete(ctx, "u2", res.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign Delete: %v", err)
	}
	if err := svc.Delete(ctx, "u1", res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetResolution(ctx, res.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted resolution still there: %v", err)
	}
}

func TestResolutionService_Statuses(t *testing.T) {
	ctx := context.Background()
	svc, repo, catcher := newTestResolutionService(t)

	seedOneOff(t, repo, "u1", 5000, time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC))
	seedOneOff(t, repo, "u1", 1000, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))
	seedOneOff(t, repo, "u1", 2000, time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))
	seedOneOff(t, repo, "u2", 9900, time.Date(2024, 3, 9, 13, 0, 0, 0, time.UTC))

	empty, err := svc.Statuses(ctx, "u1", "2024-03")
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("no resolutions should give an empty list, got %#v", empty)
	}
	if catcher.calls != 1 {
		t.Errorf("current month should catch up once, got %d calls", catcher.calls)
	}

	res, err := svc.Create(ctx, "u1", NewResolution{
		Type: core.ResolutionLessThanLastMonth, MonthKey: "2024-03", Params: euroParams(10),
	})
	if err != nil {
		t.Fatal(err)
	}

	catcher.err = errors.New("lock busy")
	got, err := svc.Statuses(ctx, "u1", "2024-03")
	if err != nil {
		t.Fatalf("catch-up failure must not fail the read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d statuses", len(got))
	}
	st := got[0]
	if st.ResolutionID != res.ID || !st.IsMet || st.Current != 30 || st.Target != 40 {
		t.Errorf("unexpected status: %+v", st)
	}

	calls := catcher.calls
	if _, err := svc.Statuses(ctx, "u1", "2024-02"); err != nil {
		t.Fatal(err)
	}
	if catcher.calls != calls {
		t.Errorf("past month triggered a catch-up")
	}
}
