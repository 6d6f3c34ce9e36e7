package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
)

// SQLiteDealRepository implements domain.DealRepository using SQLite.
type SQLiteDealRepository struct {
	db *sql.DB
}

// NewSQLiteDealRepository creates a new SQLite deal repository.
func NewSQLiteDealRepository(db *sql.DB) *SQLiteDealRepository {
	return &SQLiteDealRepository{db: db}
}

// ListStageChangedSince retrieves deals whose stage changed to the target
// stage after the cutoff, in change order.
func (r *SQLiteDealRepository) ListStageChangedSince(ctx context.Context, userID uuid.UUID, stage string, cutoff time.Time) ([]*domain.Deal, error) {
	query := `
		SELECT id, user_id, contact_id, title, stage, value_cents, stage_changed_at, created_at, updated_at
		FROM deals
		WHERE user_id = ? AND stage = ? AND stage_changed_at > ?
		ORDER BY stage_changed_at
	`

	rows, err := r.db.QueryContext(ctx, query,
		userID.String(), stage, cutoff.Format(sqliteTimeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := make([]*domain.Deal, 0)
	for rows.Next() {
		var d domain.Deal
		var idStr, userIDStr string
		var contactIDStr, stageChangedStr sql.NullString
		var createdAtStr, updatedAtStr string

		err := rows.Scan(&idStr, &userIDStr, &contactIDStr, &d.Title, &d.Stage,
			&d.ValueCents, &stageChangedStr, &createdAtStr, &updatedAtStr)
		if err != nil {
			return nil, err
		}

		d.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		d.UserID, err = uuid.Parse(userIDStr)
		if err != nil {
			return nil, err
		}
		if contactIDStr.Valid {
			contactID, err := uuid.Parse(contactIDStr.String)
			if err != nil {
				return nil, err
			}
			d.ContactID = &contactID
		}
		if stageChangedStr.Valid {
			stageChanged, err := time.Parse(sqliteTimeFormat, stageChangedStr.String)
			if err != nil {
				return nil, err
			}
			d.StageChangedAt = &stageChanged
		}
		d.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAtStr)
		if err != nil {
			return nil, err
		}
		d.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAtStr)
		if err != nil {
			return nil, err
		}

		deals = append(deals, &d)
	}
	return deals, rows.Err()
}

// UpdateFields applies a partial update to a deal. Only title, stage and
// value_cents may be set; a stage change also stamps stage_changed_at.
func (r *SQLiteDealRepository) UpdateFields(ctx context.Context, userID, dealID uuid.UUID, fields map[string]any) error {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	set := ""
	args := []any{}
	for _, col := range []string{"title", "stage", "value_cents"} {
		value, ok := fields[col]
		if !ok {
			continue
		}
		set += fmt.Sprintf("%s = ?, ", col)
		args = append(args, value)
		if col == "stage" {
			set += "stage_changed_at = ?, "
			args = append(args, now)
		}
	}
	if set == "" {
		return nil
	}

	query := fmt.Sprintf("UPDATE deals SET %supdated_at = ? WHERE id = ? AND user_id = ?", set)
	args = append(args, now, dealID.String(), userID.String())

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrDealNotFound
	}
	return nil
}
