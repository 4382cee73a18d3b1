package storage

import (
	"context"
	"database/sql"

	"finanzapp/internal/core"
)

const resolutionColumns = `id, user_id, month_key, type, amount_threshold, rating_threshold, unit,
	target_avg_rating, reduction_amount, reduction_unit, max_affective_amount, max_affective_count,
	max_affective_period, created_at, updated_at`

func (r *Repository) scanResolution(row rowScanner) (core.Resolution, error) {
	var (
		res                               core.Resolution
		typ                               string
		amount, rating, target, reduction sql.NullFloat64
		maxAmount                         sql.NullFloat64
		unit, reductionUnit, period       sql.NullString
		maxCount                          sql.NullInt64
		created, updated                  int64
	)
	err := row.Scan(&res.ID, &res.UserID, &res.MonthKey, &typ, &amount, &rating, &unit,
		&target, &reduction, &reductionUnit, &maxAmount, &maxCount, &period, &created, &updated)
	if err != nil {
		return core.Resolution{}, err
	}
	res.Type = core.ResolutionType(typ)
	res.AmountThreshold = floatPtr(amount)
	res.RatingThreshold = floatPtr(rating)
	res.TargetAvgRating = floatPtr(target)
	res.ReductionAmount = floatPtr(reduction)
	res.MaxAffectiveAmount = floatPtr(maxAmount)
	res.MaxAffectiveCount = intPtr(maxCount)
	if unit.Valid {
		u := core.Unit(unit.String)
		res.Unit = &u
	}
	if reductionUnit.Valid {
		u := core.Unit(reductionUnit.String)
		res.ReductionUnit = &u
	}
	if period.Valid {
		p := core.AffectivePeriod(period.String)
		res.MaxAffectivePeriod = &p
	}
	res.CreatedAt = r.fromMillis(created)
	res.UpdatedAt = r.fromMillis(updated)
	return res, nil
}

func unitArg(u *core.Unit) sql.NullString {
	if u == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*u), Valid: true}
}

func periodArg(p *core.AffectivePeriod) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

// CreateResolution inserts res unless the user already has the maximum
// number of resolutions for that month.
func (r *Repository) CreateResolution(ctx context.Context, res core.Resolution) error {
	return r.withTx(ctx, "create resolution", func(tx *sql.Tx) error {
		var count int
		err := r.queryRow(ctx, tx,
			`SELECT COUNT(*) FROM resolutions WHERE user_id = ? AND month_key = ?`,
			res.UserID, res.MonthKey).Scan(&count)
		if err != nil {
			return err
		}
		if count >= core.MaxResolutionsPerMonth {
			return core.ErrResolutionLimit
		}
		_, err = r.exec(ctx, tx,
			`INSERT INTO resolutions (`+resolutionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, res.UserID, res.MonthKey, string(res.Type),
			nullFloat(res.AmountThreshold), nullFloat(res.RatingThreshold), unitArg(res.Unit),
			nullFloat(res.TargetAvgRating), nullFloat(res.ReductionAmount), unitArg(res.ReductionUnit),
			nullFloat(res.MaxAffectiveAmount), nullInt(res.MaxAffectiveCount), periodArg(res.MaxAffectivePeriod),
			toMillis(res.CreatedAt), toMillis(res.UpdatedAt))
		return err
	})
}

func (r *Repository) GetResolution(ctx context.Context, id string) (core.Resolution, error) {
	res, err := r.scanResolution(r.queryRow(ctx, r.db,
		`SELECT `+resolutionColumns+` FROM resolutions WHERE id = ?`, id))
	if err != nil {
		return core.Resolution{}, r.wrap("get resolution", err)
	}
	return res, nil
}

func (r *Repository) ListResolutions(ctx context.Context, userID, monthKey string) ([]core.Resolution, error) {
	rows, err := r.query(ctx, r.db,
		`SELECT `+resolutionColumns+` FROM resolutions
		 WHERE user_id = ? AND month_key = ?
		 ORDER BY created_at ASC, id ASC`, userID, monthKey)
	if err != nil {
		return nil, r.wrap("list resolutions", err)
	}
	defer rows.Close()

	var out []core.Resolution
	for rows.Next() {
		res, err := r.scanResolution(rows)
		if err != nil {
			return nil, r.wrap("scan resolution", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("list resolutions", err)
	}
	return out, nil
}

// UpdateResolution replaces the type and parameters of an existing resolution.
func (r *Repository) UpdateResolution(ctx context.Context, res core.Resolution) error {
	result, err := r.exec(ctx, r.db,
		`UPDATE resolutions
		 SET type = ?, amount_threshold = ?, rating_threshold = ?, unit = ?, target_avg_rating = ?,
		     reduction_amount = ?, reduction_unit = ?, max_affective_amount = ?, max_affective_count = ?,
		     max_affective_period = ?, updated_at = ?
		 WHERE id = ?`,
		string(res.Type), nullFloat(res.AmountThreshold), nullFloat(res.RatingThreshold), unitArg(res.Unit),
		nullFloat(res.TargetAvgRating), nullFloat(res.ReductionAmount), unitArg(res.ReductionUnit),
		nullFloat(res.MaxAffectiveAmount), nullInt(res.MaxAffectiveCount), periodArg(res.MaxAffectivePeriod),
		toMillis(res.UpdatedAt), res.ID)
	if err != nil {
		return r.wrap("update resolution", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteResolution(ctx context.Context, id string) error {
	result, err := r.exec(ctx, r.db, `DELETE FROM resolutions WHERE id = ?`, id)
	if err != nil {
		return r.wrap("delete resolution", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}
