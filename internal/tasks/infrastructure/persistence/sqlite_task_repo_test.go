package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteTaskRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)

	t.Run("save and find by id", func(t *testing.T) {
		repo := NewSQLiteTaskRepository(setupTestDB(t))
		ruleID := uuid.New()
		task, err := domain.NewGeneratedTask(uuid.New(), "Water plants", "balcony", due, ruleID, now)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, task))

		found, err := repo.FindByID(ctx, task.ID())
		require.NoError(t, err)
		assert.Equal(t, task.OwnerID(), found.OwnerID())
		assert.Equal(t, "Water plants", found.Title())
		assert.Equal(t, "balcony", found.Description())
		assert.Equal(t, domain.StatusOpen, found.Status())
		assert.True(t, due.Equal(found.DueAt()))
		require.NotNil(t, found.SourceRuleID())
		assert.Equal(t, ruleID, *found.SourceRuleID())
	})

	t.Run("missing task", func(t *testing.T) {
		repo := NewSQLiteTaskRepository(setupTestDB(t))

		_, err := repo.FindByID(ctx, uuid.New())

		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("find by source", func(t *testing.T) {
		repo := NewSQLiteTaskRepository(setupTestDB(t))
		ruleID := uuid.New()
		task, err := domain.NewGeneratedTask(uuid.New(), "Stand-up", "", due, ruleID, now)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, task))

		found, err := repo.FindBySource(ctx, ruleID, due)
		require.NoError(t, err)
		assert.Equal(t, task.ID(), found.ID())

		_, err = repo.FindBySource(ctx, ruleID, due.Add(24*time.Hour))
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("rejects a second task for the same occurrence", func(t *testing.T) {
		repo := NewSQLiteTaskRepository(setupTestDB(t))
		ruleID := uuid.New()
		owner := uuid.New()
		first, err := domain.NewGeneratedTask(owner, "Stand-up", "", due, ruleID, now)
		require.NoError(t, err)
		second, err := domain.NewGeneratedTask(owner, "Stand-up", "", due, ruleID, now)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, first))
		err = repo.Save(ctx, second)

		assert.ErrorIs(t, err, domain.ErrDuplicateOccurrence)
	})

	t.Run("updates status on resave", func(t *testing.T) {
		repo := NewSQLiteTaskRepository(setupTestDB(t))
		task, err := domain.NewGeneratedTask(uuid.New(), "Report", "", due, uuid.New(), now)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, task))

		require.NoError(t, task.Complete(now.Add(time.Hour)))
		require.NoError(t, repo.Save(ctx, task))

		found, err := repo.FindByID(ctx, task.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, found.Status())
	})

	t.Run("find by owner newest first", func(t *testing.T) {
		repo := NewSQLiteTaskRepository(setupTestDB(t))
		owner := uuid.New()
		ruleID := uuid.New()
		for i := 0; i < 3; i++ {
			task, err := domain.NewGeneratedTask(owner, "Daily", "", due.AddDate(0, 0, i), ruleID, now)
			require.NoError(t, err)
			require.NoError(t, repo.Save(ctx, task))
		}
		other, err := domain.NewGeneratedTask(uuid.New(), "Other", "", due, uuid.New(), now)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, other))

		tasks, err := repo.FindByOwner(ctx, owner, 2)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.True(t, due.AddDate(0, 0, 2).Equal(tasks[0].DueAt()))
		assert.True(t, due.AddDate(0, 0, 1).Equal(tasks[1].DueAt()))
	})
}
