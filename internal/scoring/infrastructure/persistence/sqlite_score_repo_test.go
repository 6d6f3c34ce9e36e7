package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/funnelworks/funnel/internal/scoring/domain"
	"github.com/funnelworks/funnel/internal/shared/infrastructure/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func seedContact(t *testing.T, db *sql.DB, userID uuid.UUID) uuid.UUID {
	contactID := uuid.New()
	now := time.Now().UTC().Format(sqliteTimeFormat)
	_, err := db.Exec(`
		INSERT INTO contacts (id, user_id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, contactID.String(), userID.String(), "amy@acme.io", now, now)
	require.NoError(t, err)
	return contactID
}

func testSignals() []domain.Signal {
	return []domain.Signal{
		{Type: domain.SignalProfileCompleteness, Weight: 10, Max: domain.MaxProfileCompleteness},
		{Type: domain.SignalActivityFrequency, Weight: 25, Max: domain.MaxActivityFrequency},
		{Type: domain.SignalActivityRecency, Weight: 20, Max: domain.MaxActivityRecency},
		{Type: domain.SignalTaskCompletion, Weight: 4, Max: domain.MaxTaskCompletion},
	}
}

func TestSQLiteScoreRepository_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScoreRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	contactID := seedContact(t, db, userID)

	score, err := domain.NewLeadScore(contactID, userID, testSignals(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, score))

	loaded, err := repo.GetByContact(ctx, contactID)
	require.NoError(t, err)
	assert.Equal(t, score.ID(), loaded.ID())
	assert.Equal(t, 59, loaded.Score())
	assert.Equal(t, score.Signals(), loaded.Signals())
	require.Len(t, loaded.History(), 1)
	assert.True(t, loaded.LastCalculatedAt().Equal(score.LastCalculatedAt()))
}

func TestSQLiteScoreRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScoreRepository(db)

	_, err := repo.GetByContact(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrScoreNotFound)
}

func TestSQLiteScoreRepository_DuplicateInsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScoreRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	contactID := seedContact(t, db, userID)

	first, err := domain.NewLeadScore(contactID, userID, testSignals(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, first))

	second, err := domain.NewLeadScore(contactID, userID, testSignals(), time.Now().UTC())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Insert(ctx, second), domain.ErrScoreExists)
}

func TestSQLiteScoreRepository_ConditionalUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScoreRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	contactID := seedContact(t, db, userID)

	score, err := domain.NewLeadScore(contactID, userID, testSignals(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, score))

	expected := score.LastCalculatedAt()
	require.NoError(t, score.Recalculate(testSignals(), time.Now().UTC().Add(time.Minute)))
	require.NoError(t, repo.Update(ctx, score, expected))

	loaded, err := repo.GetByContact(ctx, contactID)
	require.NoError(t, err)
	assert.Len(t, loaded.History(), 2)

	// A second write against the already-consumed timestamp is rejected.
	require.NoError(t, score.Recalculate(testSignals(), time.Now().UTC().Add(2*time.Minute)))
	assert.ErrorIs(t, repo.Update(ctx, score, expected), domain.ErrStaleScore)
}
