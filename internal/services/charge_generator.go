package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"finanzapp/internal/core"
)

// ChargeStore is the persistence the charge generator needs.
type ChargeStore interface {
	// ListRecurringDefinitions returns the user's recurring definitions,
	// oldest first.
	ListRecurringDefinitions(ctx context.Context, userID string) ([]core.ExpenseDefinition, error)

	// RecordCharge inserts entry and advances the definition's aggregates
	// in one transaction. It returns core.ErrIdempotencyConflict when an
	// entry for the same definition and due date exists and
	// core.ErrNotRecurring when the definition was stopped meanwhile.
	RecordCharge(ctx context.Context, entry core.LedgerEntry) error
}

// ChargePublisher announces committed charges to other processes.
type ChargePublisher interface {
	PublishCharge(ctx context.Context, entry core.LedgerEntry) error
}

// Locker guards a key across processes.
type Locker interface {
	// TryLock acquires key for ttl. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// LedgerListener is told that a user's ledger changed in a way that can
// touch closed periods.
type LedgerListener interface {
	LedgerChanged(userID string)
}

const defaultCatchUpLockTTL = 30 * time.Second

// ChargeGenerator materializes due charges of recurring definitions.
type ChargeGenerator struct {
	store     ChargeStore
	publisher ChargePublisher
	locker    Locker
	listener  LedgerListener
	lockTTL   time.Duration
	now       func() time.Time
	group     singleflight.Group
}

type ChargeGeneratorOption func(*ChargeGenerator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ChargeGeneratorOption {
	return func(g *ChargeGenerator) { g.now = now }
}

// WithChargePublisher announces every committed charge through p.
func WithChargePublisher(p ChargePublisher) ChargeGeneratorOption {
	return func(g *ChargeGenerator) { g.publisher = p }
}

// WithLocker serializes catch-up of a user across processes.
func WithLocker(l Locker, ttl time.Duration) ChargeGeneratorOption {
	return func(g *ChargeGenerator) {
		g.locker = l
		if ttl > 0 {
			g.lockTTL = ttl
		}
	}
}

// WithChargeListener notifies l after a run that created charges.
func WithChargeListener(l LedgerListener) ChargeGeneratorOption {
	return func(g *ChargeGenerator) { g.listener = l }
}

func NewChargeGenerator(store ChargeStore, opts ...ChargeGeneratorOption) *ChargeGenerator {
	g := &ChargeGenerator{
		store:   store,
		lockTTL: defaultCatchUpLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureChargesUpToNow creates every ledger entry that fell due since each
// recurring definition was last charged and returns how many were created.
//
// Each charge commits on its own. A definition stops at the first existing
// entry (a concurrent run got there first) or at the first failure, leaving
// its cursor at the last committed charge. Other definitions still run;
// their failures are joined into the returned error.
//
// Concurrent calls for the same user share one run. The run is detached
// from the caller's cancellation so one caller going away does not fail the
// others; a cancelled caller returns ctx.Err() without waiting for it.
func (g *ChargeGenerator) EnsureChargesUpToNow(ctx context.Context, userID string) (int, error) {
	if g.store == nil {
		return 0, fmt.Errorf("charge generator not properly initialized")
	}
	ch := g.group.DoChan(userID, func() (any, error) {
		return g.ensure(context.WithoutCancel(ctx), userID)
	})
	select {
	case res := <-ch:
		n, _ := res.Val.(int)
		return n, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (g *ChargeGenerator) ensure(ctx context.Context, userID string) (int, error) {
	if g.locker != nil {
		unlock, ok, err := g.locker.TryLock(ctx, "finanzapp:catchup:"+userID, g.lockTTL)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Catch-up lock unavailable, continuing without it",
				"user_id", userID, "error", err)
		case !ok:
			slog.DebugContext(ctx, "Catch-up already running elsewhere", "user_id", userID)
			return 0, nil
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					slog.WarnContext(ctx, "Failed to release catch-up lock", "user_id", userID, "error", err)
				}
			}()
		}
	}

	defs, err := g.store.ListRecurringDefinitions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list recurring definitions: %w", err)
	}

	now := g.now()
	created := 0
	var errs []error
	for _, def := range defs {
		n, err := g.catchUp(ctx, def, now)
		created += n
		if err != nil {
			slog.ErrorContext(ctx, "Catch-up stopped for definition",
				"user_id", userID,
				"definition_id", def.ID,
				"created", n,
				"error", err)
			errs = append(errs, fmt.Errorf("definition %s: %w", def.ID, err))
		}
	}

	if created > 0 {
		slog.InfoContext(ctx, "Recurring charges caught up",
			"user_id", userID,
			"created", created,
			"definitions", len(defs))
		if g.listener != nil {
			g.listener.LedgerChanged(userID)
		}
	}
	return created, errors.Join(errs...)
}

func (g *ChargeGenerator) catchUp(ctx context.Context, def core.ExpenseDefinition, now time.Time) (int, error) {
	if !def.IsRecurring {
		return 0, nil
	}
	cursor := def.ChargeCursor()
	created := 0
	for {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		due, ok, err := NextDue(def, cursor)
		if err != nil {
			return created, err
		}
		if !ok || due.After(now) {
			return created, nil
		}

		entry := newChargeEntry(def, due)
		if err := g.store.RecordCharge(ctx, entry); err != nil {
			if errors.Is(err, core.ErrIdempotencyConflict) {
				slog.DebugContext(ctx, "Charge already recorded",
					"definition_id", def.ID,
					"due_date", due.Format(time.RFC3339))
				return created, nil
			}
			if errors.Is(err, core.ErrNotRecurring) {
				slog.DebugContext(ctx, "Definition stopped during catch-up", "definition_id", def.ID)
				return created, nil
			}
			return created, err
		}

		created++
		cursor = due
		g.publish(ctx, entry)
	}
}

func (g *ChargeGenerator) publish(ctx context.Context, entry core.LedgerEntry) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.PublishCharge(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to publish charge message",
			"entry_id", entry.ID,
			"definition_id", entry.DefinitionID,
			"error", err)
		// Don't fail the catch-up - the charge is committed
	}
}

func newChargeEntry(def core.ExpenseDefinition, due time.Time) core.LedgerEntry {
	return core.LedgerEntry{
		ID:               uuid.NewString(),
		UserID:           def.UserID,
		DefinitionID:     def.ID,
		Purpose:          def.Purpose,
		Amount:           def.Amount,
		ChargedAt:        due,
		MonthKey:         core.MonthKey(due),
		IsRecurring:      def.IsRecurring,
		IntervalSnapshot: def.IntervalSnapshot(),
		Rating:           core.Rating{Status: core.RatingUnrated},
	}
}
