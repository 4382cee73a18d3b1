package storage

import (
	"context"
	"database/sql"
	"time"

	"finanzapp/internal/core"
)

const entryColumns = `id, user_id, definition_id, purpose, amount_cents, charged_at, month_key, is_recurring,
	interval_snapshot, rating_status, rating_score, q1_happy, q2_value, q3_repeat_now, q4_need_elsewhere,
	q5_planned, rated_at`

const entryColumnsPrefixed = `e.id, e.user_id, e.definition_id, e.purpose, e.amount_cents, e.charged_at, e.month_key,
	e.is_recurring, e.interval_snapshot, e.rating_status, e.rating_score, e.q1_happy, e.q2_value, e.q3_repeat_now,
	e.q4_need_elsewhere, e.q5_planned, e.rated_at`

func (r *Repository) scanEntry(row rowScanner, extra ...any) (core.LedgerEntry, error) {
	var (
		e             core.LedgerEntry
		charged       int64
		status        string
		score, q1, q2 sql.NullFloat64
		q3, q4        sql.NullBool
		q5            sql.NullString
		ratedAt       sql.NullInt64
	)
	dest := []any{&e.ID, &e.UserID, &e.DefinitionID, &e.Purpose, &e.Amount.Cents, &charged, &e.MonthKey,
		&e.IsRecurring, &e.IntervalSnapshot, &status, &score, &q1, &q2, &q3, &q4, &q5, &ratedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return core.LedgerEntry{}, err
	}
	e.ChargedAt = r.fromMillis(charged)
	e.RatedAt = r.fromNullMillis(ratedAt)
	e.Rating = core.Rating{Status: core.RatingStatus(status), Score: floatPtr(score)}
	if q5.Valid {
		e.Rating.Answers = &core.RatingAnswers{
			Q1Happy:         q1.Float64,
			Q2Value:         q2.Float64,
			Q3RepeatNow:     q3.Bool,
			Q4NeedElsewhere: q4.Bool,
			Q5Planned:       core.Planned(q5.String),
		}
	}
	return e, nil
}

func (r *Repository) insertEntry(ctx context.Context, q querier, e core.LedgerEntry) error {
	status := e.Rating.Status
	if status == "" {
		status = core.RatingUnrated
	}
	_, err := r.exec(ctx, q,
		`INSERT INTO ledger_entries (id, user_id, definition_id, purpose, amount_cents, charged_at, month_key,
		 is_recurring, interval_snapshot, rating_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.DefinitionID, e.Purpose, e.Amount.Cents, toMillis(e.ChargedAt), e.MonthKey,
		e.IsRecurring, e.IntervalSnapshot, string(status))
	return err
}

func (r *Repository) GetEntry(ctx context.Context, id string) (core.LedgerEntry, error) {
	e, err := r.scanEntry(r.queryRow(ctx, r.db,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id))
	if err != nil {
		return core.LedgerEntry{}, r.wrap("get entry", err)
	}
	return e, nil
}

// ListEntries returns the user's entries charged inside w, oldest first.
func (r *Repository) ListEntries(ctx context.Context, userID string, w core.Window) ([]core.LedgerEntry, error) {
	rows, err := r.query(ctx, r.db,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE user_id = ? AND charged_at >= ? AND charged_at < ?
		 ORDER BY charged_at ASC, id ASC`,
		userID, toMillis(w.Start), toMillis(w.End))
	if err != nil {
		return nil, r.wrap("list entries", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, r.wrap("scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("list entries", err)
	}
	return out, nil
}

// UnratedEntries returns unrated entries inside w, newest first, with the
// aggregates of recurring definitions attached.
func (r *Repository) UnratedEntries(ctx context.Context, userID string, w core.Window) ([]core.UnratedEntry, error) {
	rows, err := r.query(ctx, r.db,
		`SELECT `+entryColumnsPrefixed+`, d.is_recurring, d.times_charged, d.total_paid_cents
		 FROM ledger_entries e
		 JOIN expense_definitions d ON d.id = e.definition_id
		 WHERE e.user_id = ? AND e.rating_status = ? AND e.charged_at >= ? AND e.charged_at < ?
		 ORDER BY e.charged_at DESC, e.id ASC`,
		userID, string(core.RatingUnrated), toMillis(w.Start), toMillis(w.End))
	if err != nil {
		return nil, r.wrap("list unrated entries", err)
	}
	defer rows.Close()

	var out []core.UnratedEntry
	for rows.Next() {
		var (
			recurring bool
			times     int
			total     int64
		)
		e, err := r.scanEntry(rows, &recurring, &times, &total)
		if err != nil {
			return nil, r.wrap("scan unrated entry", err)
		}
		u := core.UnratedEntry{Entry: e}
		if recurring {
			paid := core.Money{Cents: total}
			u.TimesCharged = &times
			u.TotalPaid = &paid
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("list unrated entries", err)
	}
	return out, nil
}

// UpdateRating stores a rating on an entry.
func (r *Repository) UpdateRating(ctx context.Context, entryID string, rating core.Rating, ratedAt time.Time) error {
	var (
		q1, q2 sql.NullFloat64
		q3, q4 sql.NullBool
		q5     sql.NullString
	)
	if a := rating.Answers; a != nil {
		q1 = sql.NullFloat64{Float64: a.Q1Happy, Valid: true}
		q2 = sql.NullFloat64{Float64: a.Q2Value, Valid: true}
		q3 = sql.NullBool{Bool: a.Q3RepeatNow, Valid: true}
		q4 = sql.NullBool{Bool: a.Q4NeedElsewhere, Valid: true}
		q5 = sql.NullString{String: string(a.Q5Planned), Valid: true}
	}
	res, err := r.exec(ctx, r.db,
		`UPDATE ledger_entries
		 SET rating_status = ?, rating_score = ?, q1_happy = ?, q2_value = ?, q3_repeat_now = ?,
		     q4_need_elsewhere = ?, q5_planned = ?, rated_at = ?
		 WHERE id = ?`,
		string(rating.Status), nullFloat(rating.Score), q1, q2, q3, q4, q5, toMillis(ratedAt), entryID)
	if err != nil {
		return r.wrap("update rating", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteEntry removes an entry and rolls its amount out of the definition's
// aggregates. A one-off definition goes away with its only entry.
func (r *Repository) DeleteEntry(ctx context.Context, e core.LedgerEntry) error {
	return r.withTx(ctx, "delete entry", func(tx *sql.Tx) error {
		var (
			recurring bool
			times     int
			total     int64
		)
		err := r.queryRow(ctx, tx,
			`SELECT is_recurring, times_charged, total_paid_cents FROM expense_definitions WHERE id = ?`,
			e.DefinitionID).Scan(&recurring, &times, &total)
		if err != nil {
			return err
		}

		res, err := r.exec(ctx, tx, `DELETE FROM ledger_entries WHERE id = ?`, e.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return core.ErrNotFound
		}

		if !recurring && times == 1 {
			_, err = r.exec(ctx, tx, `DELETE FROM expense_definitions WHERE id = ?`, e.DefinitionID)
			return err
		}
		_, err = r.exec(ctx, tx,
			`UPDATE expense_definitions SET times_charged = ?, total_paid_cents = ? WHERE id = ?`,
			max(times-1, 0), max(total-e.Amount.Cents, 0), e.DefinitionID)
		return err
	})
}
