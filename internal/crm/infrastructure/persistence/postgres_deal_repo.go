package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDealRepository implements domain.DealRepository using PostgreSQL.
type PostgresDealRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDealRepository creates a new PostgreSQL deal repository.
func NewPostgresDealRepository(pool *pgxpool.Pool) *PostgresDealRepository {
	return &PostgresDealRepository{pool: pool}
}

// ListStageChangedSince retrieves deals whose stage changed to the target
// stage after the cutoff, in change order.
func (r *PostgresDealRepository) ListStageChangedSince(ctx context.Context, userID uuid.UUID, stage string, cutoff time.Time) ([]*domain.Deal, error) {
	query := `
		SELECT id, user_id, contact_id, title, stage, value_cents, stage_changed_at, created_at, updated_at
		FROM deals
		WHERE user_id = $1 AND stage = $2 AND stage_changed_at > $3
		ORDER BY stage_changed_at
	`

	rows, err := r.pool.Query(ctx, query, userID, stage, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := make([]*domain.Deal, 0)
	for rows.Next() {
		var d domain.Deal
		err := rows.Scan(&d.ID, &d.UserID, &d.ContactID, &d.Title, &d.Stage,
			&d.ValueCents, &d.StageChangedAt, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, err
		}
		deals = append(deals, &d)
	}
	return deals, rows.Err()
}

// UpdateFields applies a partial update to a deal. Only title, stage and
// value_cents may be set; a stage change also stamps stage_changed_at.
func (r *PostgresDealRepository) UpdateFields(ctx context.Context, userID, dealID uuid.UUID, fields map[string]any) error {
	set := ""
	args := []any{}
	i := 1
	for _, col := range []string{"title", "stage", "value_cents"} {
		value, ok := fields[col]
		if !ok {
			continue
		}
		set += fmt.Sprintf("%s = $%d, ", col, i)
		args = append(args, value)
		i++
		if col == "stage" {
			set += "stage_changed_at = NOW(), "
		}
	}
	if set == "" {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE deals SET %supdated_at = NOW() WHERE id = $%d AND user_id = $%d",
		set, i, i+1,
	)
	args = append(args, dealID, userID)

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDealNotFound
	}
	return nil
}
