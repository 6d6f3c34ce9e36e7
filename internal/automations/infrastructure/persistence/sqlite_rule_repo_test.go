package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/funnelworks/funnel/internal/automations/domain"
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

func testRule(userID uuid.UUID, name string) *domain.Rule {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Rule{
		ID:            uuid.New(),
		UserID:        userID,
		Name:          name,
		TriggerType:   domain.TriggerDealStageChanged,
		TriggerConfig: map[string]any{"stage": "won"},
		ActionType:    domain.ActionSendNotification,
		ActionConfig:  map[string]any{"message": "deal won"},
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestSQLiteRuleRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRuleRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	rule := testRule(userID, "Notify on won deals")
	require.NoError(t, repo.Create(ctx, rule))

	got, err := repo.GetByID(ctx, userID, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, domain.TriggerDealStageChanged, got.TriggerType)
	assert.Equal(t, "won", got.TriggerConfig["stage"])
	assert.Equal(t, domain.ActionSendNotification, got.ActionType)
	assert.Equal(t, "deal won", got.ActionConfig["message"])
	assert.True(t, got.Enabled)

	_, err = repo.GetByID(ctx, uuid.New(), rule.ID)
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestSQLiteRuleRepository_ListEnabledSkipsDisabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRuleRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	first := testRule(userID, "first")
	require.NoError(t, repo.Create(ctx, first))

	second := testRule(userID, "second")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.SetEnabled(ctx, userID, second.ID, false))

	enabled, err := repo.ListEnabled(ctx, userID)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "first", enabled[0].Name)

	all, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Name)
	assert.Equal(t, "second", all[1].Name)
}

func TestSQLiteRuleRepository_SetEnabledUnknownRule(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRuleRepository(db)

	err := repo.SetEnabled(context.Background(), uuid.New(), uuid.New(), true)
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestSQLiteExecutionRepository_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	rules := NewSQLiteRuleRepository(db)
	executions := NewSQLiteExecutionRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	rule := testRule(userID, "log me")
	require.NoError(t, rules.Create(ctx, rule))

	base := time.Now().UTC().Truncate(time.Second)
	ok := domain.NewExecution(rule, map[string]any{"deal_id": "d1"}, []string{"send_notification"}, base)
	failed := domain.NewFailedExecution(rule, map[string]any{"deal_id": "d2"}, "provider unavailable", base.Add(time.Second))
	require.NoError(t, executions.Append(ctx, ok))
	require.NoError(t, executions.Append(ctx, failed))

	got, err := executions.ListByRule(ctx, rule.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.ExecutionFailed, got[0].Status)
	assert.Equal(t, "provider unavailable", got[0].ErrorMessage)
	assert.Empty(t, got[0].ActionsPerformed)

	assert.Equal(t, domain.ExecutionSucceeded, got[1].Status)
	assert.Equal(t, []string{"send_notification"}, got[1].ActionsPerformed)
	assert.Equal(t, "d1", got[1].TriggerData["deal_id"])

	limited, err := executions.ListByRule(ctx, rule.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, domain.ExecutionFailed, limited[0].Status)
}
