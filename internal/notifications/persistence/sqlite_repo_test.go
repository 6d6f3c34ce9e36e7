package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/funnelworks/funnel/internal/notifications"
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

func TestSQLiteRepository_NotifyAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	notifier := notifications.NewStoreNotifier(repo)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, notifier.Notify(ctx, userID, "Hot lead", "Amy Ward crossed 70", "/contacts/abc"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, notifier.Notify(ctx, userID, "Task overdue", "", ""))

	got, err := repo.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Task overdue", got[0].Title)
	assert.Equal(t, "Hot lead", got[1].Title)
	assert.Equal(t, "/contacts/abc", got[1].Link)

	other, err := repo.ListByUser(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
