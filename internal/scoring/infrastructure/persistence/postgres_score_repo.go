// Package persistence provides database implementations for scoring repositories.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/scoring/domain"
	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresScoreRepository implements domain.Repository using PostgreSQL.
type PostgresScoreRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresScoreRepository creates a new PostgreSQL score repository.
func NewPostgresScoreRepository(pool *pgxpool.Pool) *PostgresScoreRepository {
	return &PostgresScoreRepository{pool: pool}
}

// GetByContact retrieves the scoring snapshot for a contact.
func (r *PostgresScoreRepository) GetByContact(ctx context.Context, contactID uuid.UUID) (*domain.LeadScore, error) {
	query := `
		SELECT id, contact_id, user_id, score, signals, score_history,
		       last_calculated_at, created_at, updated_at
		FROM lead_scores
		WHERE contact_id = $1
	`

	var (
		id, cID, userID  uuid.UUID
		score            int
		signalsJSON      []byte
		historyJSON      []byte
		lastCalculatedAt time.Time
		createdAt        time.Time
		updatedAt        time.Time
	)

	err := r.pool.QueryRow(ctx, query, contactID).Scan(
		&id, &cID, &userID, &score, &signalsJSON, &historyJSON,
		&lastCalculatedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScoreNotFound
		}
		return nil, err
	}

	var signals []domain.Signal
	if err := json.Unmarshal(signalsJSON, &signals); err != nil {
		return nil, err
	}
	var history []domain.HistoryEntry
	if err := json.Unmarshal(historyJSON, &history); err != nil {
		return nil, err
	}

	return domain.RehydrateLeadScore(
		sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		cID, userID, score, signals, history, lastCalculatedAt,
	), nil
}

// Insert persists a fresh snapshot. The contact_id unique constraint rejects
// a second snapshot for the same contact.
func (r *PostgresScoreRepository) Insert(ctx context.Context, score *domain.LeadScore) error {
	signalsJSON, err := json.Marshal(score.Signals())
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(score.History())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO lead_scores (
			id, contact_id, user_id, score, signals, score_history,
			last_calculated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (contact_id) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		score.ID(),
		score.ContactID(),
		score.UserID(),
		score.Score(),
		signalsJSON,
		historyJSON,
		score.LastCalculatedAt(),
		score.CreatedAt(),
		score.UpdatedAt(),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrScoreExists
	}
	return nil
}

// Update replaces the snapshot, but only if nobody recalculated it since it
// was read. The expected timestamp guards the read-modify-write cycle.
func (r *PostgresScoreRepository) Update(ctx context.Context, score *domain.LeadScore, expected time.Time) error {
	signalsJSON, err := json.Marshal(score.Signals())
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(score.History())
	if err != nil {
		return err
	}

	query := `
		UPDATE lead_scores SET
			score = $1, signals = $2, score_history = $3,
			last_calculated_at = $4, updated_at = $5
		WHERE contact_id = $6 AND last_calculated_at = $7
	`

	result, err := r.pool.Exec(ctx, query,
		score.Score(),
		signalsJSON,
		historyJSON,
		score.LastCalculatedAt(),
		score.UpdatedAt(),
		score.ContactID(),
		expected,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrStaleScore
	}
	return nil
}
