package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/scoring/domain"
	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

// sqliteTimeFormat keeps a fixed-width fraction so stored timestamps compare
// correctly as strings.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteScoreRepository implements domain.Repository using SQLite.
type SQLiteScoreRepository struct {
	db *sql.DB
}

// NewSQLiteScoreRepository creates a new SQLite score repository.
func NewSQLiteScoreRepository(db *sql.DB) *SQLiteScoreRepository {
	return &SQLiteScoreRepository{db: db}
}

// GetByContact retrieves the scoring snapshot for a contact.
func (r *SQLiteScoreRepository) GetByContact(ctx context.Context, contactID uuid.UUID) (*domain.LeadScore, error) {
	query := `
		SELECT id, contact_id, user_id, score, signals, score_history,
		       last_calculated_at, created_at, updated_at
		FROM lead_scores
		WHERE contact_id = ?
	`

	var (
		idStr, cIDStr, userIDStr                    string
		score                                       int
		signalsStr, historyStr                      string
		lastCalculatedStr, createdAtStr, updatedStr string
	)

	err := r.db.QueryRowContext(ctx, query, contactID.String()).Scan(
		&idStr, &cIDStr, &userIDStr, &score, &signalsStr, &historyStr,
		&lastCalculatedStr, &createdAtStr, &updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScoreNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	cID, err := uuid.Parse(cIDStr)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, err
	}

	var signals []domain.Signal
	if err := json.Unmarshal([]byte(signalsStr), &signals); err != nil {
		return nil, err
	}
	var history []domain.HistoryEntry
	if err := json.Unmarshal([]byte(historyStr), &history); err != nil {
		return nil, err
	}

	lastCalculatedAt, err := time.Parse(sqliteTimeFormat, lastCalculatedStr)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(sqliteTimeFormat, createdAtStr)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(sqliteTimeFormat, updatedStr)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateLeadScore(
		sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		cID, userID, score, signals, history, lastCalculatedAt,
	), nil
}

// Insert persists a fresh snapshot.
func (r *SQLiteScoreRepository) Insert(ctx context.Context, score *domain.LeadScore) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contact_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		score.ID().String(),
		score.ContactID().String(),
		score.UserID().String(),
		score.Score(),
		string(signalsJSON),
		string(historyJSON),
		score.LastCalculatedAt().Format(sqliteTimeFormat),
		score.CreatedAt().Format(sqliteTimeFormat),
		score.UpdatedAt().Format(sqliteTimeFormat),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrScoreExists
	}
	return nil
}

// Update replaces the snapshot if the stored last_calculated_at still matches
// the expected timestamp.
func (r *SQLiteScoreRepository) Update(ctx context.Context, score *domain.LeadScore, expected time.Time) error {
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
			score = ?, signals = ?, score_history = ?,
			last_calculated_at = ?, updated_at = ?
		WHERE contact_id = ? AND last_calculated_at = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		score.Score(),
		string(signalsJSON),
		string(historyJSON),
		score.LastCalculatedAt().Format(sqliteTimeFormat),
		score.UpdatedAt().Format(sqliteTimeFormat),
		score.ContactID().String(),
		expected.Format(sqliteTimeFormat),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrStaleScore
	}
	return nil
}
