package storage

import (
	"context"
	"database/sql"
	"errors"

	"finanzapp/internal/core"
)

const definitionColumns = `id, user_id, purpose, amount_cents, is_recurring, interval_kind, interval_every,
	start_date, anchor_day_of_month, times_charged, total_paid_cents, last_charged_at, created_at`

func (r *Repository) scanDefinition(row rowScanner) (core.ExpenseDefinition, error) {
	var (
		d              core.ExpenseDefinition
		kind           string
		start, created int64
		anchor         sql.NullInt64
		lastCharged    sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Purpose, &d.Amount.Cents, &d.IsRecurring, &kind, &d.IntervalEvery,
		&start, &anchor, &d.TimesCharged, &d.TotalPaid.Cents, &lastCharged, &created)
	if err != nil {
		return core.ExpenseDefinition{}, err
	}
	d.IntervalKind = core.IntervalKind(kind)
	d.StartDate = r.fromMillis(start)
	d.AnchorDayOfMonth = intPtr(anchor)
	d.LastChargedAt = r.fromNullMillis(lastCharged)
	d.CreatedAt = r.fromMillis(created)
	return d, nil
}

// CreateExpense stores a new definition together with its first entry.
func (r *Repository) CreateExpense(ctx context.Context, def core.ExpenseDefinition, first core.LedgerEntry) error {
	return r.withTx(ctx, "create expense", func(tx *sql.Tx) error {
		_, err := r.exec(ctx, tx,
			`INSERT INTO expense_definitions (`+definitionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID, def.UserID, def.Purpose, def.Amount.Cents, def.IsRecurring, string(def.IntervalKind), def.IntervalEvery,
			toMillis(def.StartDate), nullInt(def.AnchorDayOfMonth), def.TimesCharged, def.TotalPaid.Cents,
			nullMillis(def.LastChargedAt), toMillis(def.CreatedAt))
		if err != nil {
			return err
		}
		return r.insertEntry(ctx, tx, first)
	})
}

func (r *Repository) GetDefinition(ctx context.Context, id string) (core.ExpenseDefinition, error) {
	d, err := r.scanDefinition(r.queryRow(ctx, r.db,
		`SELECT `+definitionColumns+` FROM expense_definitions WHERE id = ?`, id))
	if err != nil {
		return core.ExpenseDefinition{}, r.wrap("get definition", err)
	}
	return d, nil
}

// ListRecurringDefinitions returns the user's recurring definitions, oldest first.
func (r *Repository) ListRecurringDefinitions(ctx context.Context, userID string) ([]core.ExpenseDefinition, error) {
	rows, err := r.query(ctx, r.db,
		`SELECT `+definitionColumns+` FROM expense_definitions
		 WHERE user_id = ? AND is_recurring = ?
		 ORDER BY created_at ASC, id ASC`, userID, true)
	if err != nil {
		return nil, r.wrap("list recurring definitions", err)
	}
	defer rows.Close()

	var defs []core.ExpenseDefinition
	for rows.Next() {
		d, err := r.scanDefinition(rows)
		if err != nil {
			return nil, r.wrap("scan definition", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("list recurring definitions", err)
	}
	return defs, nil
}

// StopRecurring turns a recurring definition into a one-off. Entries that
// already exist are kept.
func (r *Repository) StopRecurring(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db,
		`UPDATE expense_definitions SET is_recurring = ? WHERE id = ? AND is_recurring = ?`, false, id, true)
	if err != nil {
		return r.wrap("stop recurring", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotRecurring
	}
	return nil
}

// RecordCharge inserts a catch-up entry and advances the definition's
// aggregates in one transaction. A definition stopped after it was listed
// yields core.ErrNotRecurring and nothing is written.
func (r *Repository) RecordCharge(ctx context.Context, e core.LedgerEntry) error {
	return r.withTx(ctx, "record charge", func(tx *sql.Tx) error {
		var exists int
		err := r.queryRow(ctx, tx,
			`SELECT 1 FROM ledger_entries WHERE definition_id = ? AND charged_at = ?`,
			e.DefinitionID, toMillis(e.ChargedAt)).Scan(&exists)
		switch {
		case err == nil:
			return core.ErrIdempotencyConflict
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		res, err := r.exec(ctx, tx,
			`UPDATE expense_definitions
			 SET times_charged = times_charged + 1,
			     total_paid_cents = total_paid_cents + ?,
			     last_charged_at = ?
			 WHERE id = ? AND is_recurring = ?`,
			e.Amount.Cents, toMillis(e.ChargedAt), e.DefinitionID, true)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// tell a stopped definition from a missing one
			var recurring bool
			err := r.queryRow(ctx, tx,
				`SELECT is_recurring FROM expense_definitions WHERE id = ?`, e.DefinitionID).Scan(&recurring)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return core.ErrNotFound
			case err != nil:
				return err
			}
			return core.ErrNotRecurring
		}

		if err := r.insertEntry(ctx, tx, e); err != nil {
			if isUniqueViolation(err) {
				return core.ErrIdempotencyConflict
			}
			return err
		}
		return nil
	})
}
