package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"finanzapp/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), Options{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *Repository, id string) {
	t.Helper()
	err := repo.CreateUser(context.Background(), core.User{ID: id, Username: "user-" + id, APIKey: "fin_" + id, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func seedExpense(t *testing.T, repo *Repository, id string, recurring bool, start time.Time) (core.ExpenseDefinition, core.LedgerEntry) {
	t.Helper()
	def := core.ExpenseDefinition{
		ID: id, UserID: "u1", Purpose: "Gym", Amount: core.Money{Cents: 2999},
		IsRecurring: recurring, IntervalKind: core.IntervalNone, IntervalEvery: 1,
		StartDate: start, TimesCharged: 1, TotalPaid: core.Money{Cents: 2999}, LastChargedAt: &start, CreatedAt: start,
	}
	if recurring {
		anchor := start.Day()
		def.IntervalKind = core.IntervalMonths
		def.AnchorDayOfMonth = &anchor
	}
	entry := core.LedgerEntry{
		ID: id + "-e1", UserID: "u1", DefinitionID: id, Purpose: def.Purpose, Amount: def.Amount,
		ChargedAt: start, MonthKey: core.MonthKey(start), IsRecurring: recurring,
		IntervalSnapshot: def.IntervalSnapshot(), Rating: core.Rating{Status: core.RatingUnrated},
	}
	if err := repo.CreateExpense(context.Background(), def, entry); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	return def, entry
}

func TestRebind(t *testing.T) {
	pg := &Repository{driver: DriverPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Fatalf("got %q", got)
	}
	lite := &Repository{driver: DriverSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Fatalf("got %q", got)
	}
}

func TestUsers(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")

	u, err := repo.UserByAPIKey(context.Background(), "fin_u1")
	if err != nil || u.ID != "u1" {
		t.Fatalf("UserByAPIKey = %+v, %v", u, err)
	}
	if _, err := repo.UserByAPIKey(context.Background(), "fin_nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err = repo.CreateUser(context.Background(), core.User{ID: "u2", Username: "user-u1", APIKey: "other", CreatedAt: time.Now()})
	if !core.IsValidation(err) {
		t.Fatalf("duplicate username should be a validation error, got %v", err)
	}

	if err := repo.SetAPIKey(context.Background(), "u1", "fin_rotated"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	if _, err := repo.UserByAPIKey(context.Background(), "fin_u1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("old key should be gone, got %v", err)
	}
	if u, err := repo.UserByAPIKey(context.Background(), "fin_rotated"); err != nil || u.ID != "u1" {
		t.Fatalf("UserByAPIKey(rotated) = %+v, %v", u, err)
	}
	if err := repo.SetAPIKey(context.Background(), "ghost", "fin_x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("SetAPIKey unknown user: %v", err)
	}

	seedUser(t, repo, "u3")
	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].ID != "u1" || users[1].ID != "u3" {
		t.Fatalf("ListUsers = %+v", users)
	}
}

func TestCreateExpenseRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	start := time.Date(2024, 1, 31, 9, 15, 0, 0, time.UTC)
	def, entry := seedExpense(t, repo, "d1", true, start)

	got, err := repo.GetDefinition(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get definition: %v", err)
	}
	if got.Purpose != def.Purpose || got.Amount != def.Amount || !got.IsRecurring || got.IntervalKind != core.IntervalMonths {
		t.Fatalf("unexpected definition: %+v", got)
	}
	if got.AnchorDayOfMonth == nil || *got.AnchorDayOfMonth != 31 || !got.StartDate.Equal(start) {
		t.Fatalf("unexpected anchor/start: %+v", got)
	}
	if got.LastChargedAt == nil || !got.LastChargedAt.Equal(start) {
		t.Fatalf("unexpected last charge: %v", got.LastChargedAt)
	}

	e, err := repo.GetEntry(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if e.MonthKey != "2024-01" || e.Rating.Status != core.RatingUnrated || e.Rating.Score != nil || e.RatedAt != nil {
		t.Fatalf("unexpected entry: %+v", e)
	}

	defs, err := repo.ListRecurringDefinitions(context.Background(), "u1")
	if err != nil || len(defs) != 1 {
		t.Fatalf("ListRecurringDefinitions = %d, %v", len(defs), err)
	}
}

func TestRecordCharge(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	def, _ := seedExpense(t, repo, "d1", true, start)

	due := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	charge := core.LedgerEntry{
		ID: "c1", UserID: "u1", DefinitionID: def.ID, Purpose: def.Purpose, Amount: def.Amount,
		ChargedAt: due, MonthKey: "2024-02", IsRecurring: true, IntervalSnapshot: def.IntervalSnapshot(),
	}
	if err := repo.RecordCharge(context.Background(), charge); err != nil {
		t.Fatalf("record charge: %v", err)
	}

	got, _ := repo.GetDefinition(context.Background(), def.ID)
	if got.TimesCharged != 2 || got.TotalPaid.Cents != 2*2999 || !got.LastChargedAt.Equal(due) {
		t.Fatalf("aggregates not advanced: %+v", got)
	}

	charge.ID = "c2"
	if err := repo.RecordCharge(context.Background(), charge); !errors.Is(err, core.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
	got, _ = repo.GetDefinition(context.Background(), def.ID)
	if got.TimesCharged != 2 {
		t.Fatalf("conflict changed aggregates: %+v", got)
	}
}

func TestRecordChargeConcurrent(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	def, _ := seedExpense(t, repo, "d1", true, start)
	due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.RecordCharge(context.Background(), core.LedgerEntry{
				ID: "c" + string(rune('a'+i)), UserID: "u1", DefinitionID: def.ID, Purpose: def.Purpose,
				Amount: def.Amount, ChargedAt: due, MonthKey: "2024-02", IsRecurring: true, IntervalSnapshot: "every 1 months",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, core.ErrIdempotencyConflict):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 || dupes != 4 {
		t.Fatalf("ok=%d dupes=%d", ok, dupes)
	}
}

func TestListEntriesAndRating(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	_, inMay := seedExpense(t, repo, "d1", false, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	seedExpense(t, repo, "d2", true, time.Date(2024, 5, 31, 23, 59, 0, 0, time.UTC))
	seedExpense(t, repo, "d3", false, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	w, _ := core.ParseMonthKey("2024-05", time.UTC)
	entries, err := repo.ListEntries(context.Background(), "u1", w)
	if err != nil || len(entries) != 2 {
		t.Fatalf("ListEntries = %d, %v", len(entries), err)
	}

	score := 9.33
	rating := core.Rating{Status: core.RatingRated, Score: &score, Answers: &core.RatingAnswers{
		Q1Happy: 10, Q2Value: 10, Q3RepeatNow: true, Q5Planned: core.PlannedDeliberate,
	}}
	ratedAt := time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)
	if err := repo.UpdateRating(context.Background(), inMay.ID, rating, ratedAt); err != nil {
		t.Fatalf("update rating: %v", err)
	}
	e, _ := repo.GetEntry(context.Background(), inMay.ID)
	if s, ok := e.Rating.RatedScore(); !ok || s != 9.33 {
		t.Fatalf("score = %v, %v", s, ok)
	}
	if e.Rating.Answers == nil || !e.Rating.Answers.Q3RepeatNow || e.Rating.Answers.Q5Planned != core.PlannedDeliberate {
		t.Fatalf("answers = %+v", e.Rating.Answers)
	}
	if e.RatedAt == nil || !e.RatedAt.Equal(ratedAt) {
		t.Fatalf("rated at = %v", e.RatedAt)
	}

	unrated, err := repo.UnratedEntries(context.Background(), "u1", w)
	if err != nil || len(unrated) != 1 {
		t.Fatalf("UnratedEntries = %d, %v", len(unrated), err)
	}
	if unrated[0].TimesCharged == nil || *unrated[0].TimesCharged != 1 || unrated[0].TotalPaid.Cents != 2999 {
		t.Fatalf("recurring aggregates missing: %+v", unrated[0])
	}

	if err := repo.UpdateRating(context.Background(), "missing", rating, ratedAt); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	ctx := context.Background()

	_, oneOff := seedExpense(t, repo, "d1", false, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	if err := repo.DeleteEntry(ctx, oneOff); err != nil {
		t.Fatalf("delete one-off: %v", err)
	}
	if _, err := repo.GetDefinition(ctx, "d1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("one-off definition should be gone, got %v", err)
	}

	def, first := seedExpense(t, repo, "d2", true, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	second := first
	second.ID = "d2-e2"
	second.ChargedAt = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	if err := repo.RecordCharge(ctx, second); err != nil {
		t.Fatalf("record charge: %v", err)
	}
	if err := repo.DeleteEntry(ctx, second); err != nil {
		t.Fatalf("delete recurring entry: %v", err)
	}
	got, err := repo.GetDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("recurring definition must survive: %v", err)
	}
	if got.TimesCharged != 1 || got.TotalPaid.Cents != 2999 {
		t.Fatalf("aggregates not rolled back: %+v", got)
	}
	if err := repo.DeleteEntry(ctx, second); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStopRecurring(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	seedExpense(t, repo, "d1", true, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))

	if err := repo.StopRecurring(context.Background(), "d1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := repo.StopRecurring(context.Background(), "d1"); !errors.Is(err, core.ErrNotRecurring) {
		t.Fatalf("expected ErrNotRecurring, got %v", err)
	}
	defs, _ := repo.ListRecurringDefinitions(context.Background(), "u1")
	if len(defs) != 0 {
		t.Fatalf("stopped definition still listed")
	}
}

func TestRecordChargeAfterStop(t *testing.T) {
	tests := []struct {
		name  string
		defID string
		stop  bool
		want  error
	}{
		{"stopped definition", "d1", true, core.ErrNotRecurring},
		{"missing definition", "nope", false, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newTestRepo(t)
			seedUser(t, repo, "u1")
			def, _ := seedExpense(t, repo, "d1", true, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			if tt.stop {
				if err := repo.StopRecurring(ctx, def.ID); err != nil {
					t.Fatalf("stop: %v", err)
				}
			}

			due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
			err := repo.RecordCharge(ctx, core.LedgerEntry{
				ID: "c1", UserID: "u1", DefinitionID: tt.defID, Purpose: def.Purpose, Amount: def.Amount,
				ChargedAt: due, MonthKey: "2024-02", IsRecurring: true, IntervalSnapshot: def.IntervalSnapshot(),
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("RecordCharge: got %v, want %v", err, tt.want)
			}
			if _, err := repo.GetEntry(ctx, "c1"); !errors.Is(err, core.ErrNotFound) {
				t.Fatalf("charge was kept: %v", err)
			}
			got, _ := repo.GetDefinition(ctx, def.ID)
			if got.TimesCharged != 1 || got.TotalPaid.Cents != 2999 || !got.LastChargedAt.Equal(def.StartDate) {
				t.Fatalf("aggregates changed: %+v", got)
			}
		})
	}
}

func TestResolutions(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "u1")
	ctx := context.Background()
	target := 7.0
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < core.MaxResolutionsPerMonth; i++ {
		res := core.Resolution{
			ID: "r" + string(rune('0'+i)), UserID: "u1", MonthKey: "2024-05", Type: core.ResolutionTargetAvgRating,
			ResolutionParams: core.ResolutionParams{TargetAvgRating: &target}, CreatedAt: now, UpdatedAt: now,
		}
		if err := repo.CreateResolution(ctx, res); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	extra := core.Resolution{ID: "rx", UserID: "u1", MonthKey: "2024-05", Type: core.ResolutionTargetAvgRating, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateResolution(ctx, extra); !errors.Is(err, core.ErrResolutionLimit) {
		t.Fatalf("expected ErrResolutionLimit, got %v", err)
	}

	list, err := repo.ListResolutions(ctx, "u1", "2024-05")
	if err != nil || len(list) != core.MaxResolutionsPerMonth {
		t.Fatalf("list = %d, %v", len(list), err)
	}

	week := core.AffectiveWeek
	count := 2
	upd := list[0]
	upd.Type = core.ResolutionMaxAffectivePerPeriod
	upd.ResolutionParams = core.ResolutionParams{MaxAffectiveCount: &count, MaxAffectivePeriod: &week}
	upd.UpdatedAt = now.Add(time.Hour)
	if err := repo.UpdateResolution(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetResolution(ctx, upd.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != core.ResolutionMaxAffectivePerPeriod || got.TargetAvgRating != nil ||
		got.MaxAffectiveCount == nil || *got.MaxAffectiveCount != 2 || *got.MaxAffectivePeriod != core.AffectiveWeek {
		t.Fatalf("unexpected resolution: %+v", got)
	}

	if err := repo.DeleteResolution(ctx, upd.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetResolution(ctx, upd.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
