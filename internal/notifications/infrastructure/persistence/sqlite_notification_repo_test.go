package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/migrations"
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

func newNotification(t *testing.T, recipient uuid.UUID, message string, at time.Time) *domain.Notification {
	t.Helper()
	n, err := domain.NewNotification(domain.Params{
		RecipientID:  recipient,
		Type:         domain.TypeComment,
		ResourceType: domain.ResourceRequirement,
		Message:      message,
	}, at)
	require.NoError(t, err)
	return n
}

func TestSQLiteNotificationRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	t.Run("save and find by id", func(t *testing.T) {
		repo := NewSQLiteNotificationRepository(setupTestDB(t))
		sender, resource, project := uuid.New(), uuid.New(), uuid.New()
		n, err := domain.NewNotification(domain.Params{
			RecipientID:  uuid.New(),
			SenderID:     &sender,
			Type:         domain.TypeMention,
			ResourceType: domain.ResourceComment,
			ResourceID:   &resource,
			ProjectID:    &project,
			Message:      "@you look at this",
		}, now)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, n))

		found, err := repo.FindByID(ctx, n.ID())
		require.NoError(t, err)
		assert.Equal(t, n.RecipientID(), found.RecipientID())
		assert.Equal(t, &sender, found.SenderID())
		assert.Equal(t, &resource, found.ResourceID())
		assert.Equal(t, &project, found.ProjectID())
		assert.Equal(t, domain.TypeMention, found.Type())
		assert.Equal(t, domain.ResourceComment, found.ResourceType())
		assert.Equal(t, "@you look at this", found.Message())
		assert.Nil(t, found.ReadAt())
		assert.True(t, now.Equal(found.CreatedAt()))
	})

	t.Run("find missing", func(t *testing.T) {
		repo := NewSQLiteNotificationRepository(setupTestDB(t))
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotificationNotFound)
	})

	t.Run("mark read persists", func(t *testing.T) {
		repo := NewSQLiteNotificationRepository(setupTestDB(t))
		n := newNotification(t, uuid.New(), "hello", now)
		require.NoError(t, repo.Save(ctx, n))

		n.MarkRead(now.Add(time.Minute))
		require.NoError(t, repo.Save(ctx, n))

		found, err := repo.FindByID(ctx, n.ID())
		require.NoError(t, err)
		require.NotNil(t, found.ReadAt())
		assert.True(t, now.Add(time.Minute).Equal(*found.ReadAt()))
	})

	t.Run("list by recipient newest first with unread filter", func(t *testing.T) {
		repo := NewSQLiteNotificationRepository(setupTestDB(t))
		recipient := uuid.New()
		first := newNotification(t, recipient, "first", now)
		second := newNotification(t, recipient, "second", now.Add(time.Minute))
		third := newNotification(t, recipient, "third", now.Add(2*time.Minute))
		other := newNotification(t, uuid.New(), "other", now)
		for _, n := range []*domain.Notification{first, second, third, other} {
			require.NoError(t, repo.Save(ctx, n))
		}
		second.MarkRead(now.Add(time.Hour))
		require.NoError(t, repo.Save(ctx, second))

		all, err := repo.FindByRecipient(ctx, recipient, domain.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "third", all[0].Message())
		assert.Equal(t, "first", all[2].Message())

		unread, err := repo.FindByRecipient(ctx, recipient, domain.ListFilter{UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, unread, 2)
		assert.Equal(t, third.ID(), unread[0].ID())
		assert.Equal(t, first.ID(), unread[1].ID())

		limited, err := repo.FindByRecipient(ctx, recipient, domain.ListFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)

		count, err := repo.CountUnread(ctx, recipient)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("mark all read", func(t *testing.T) {
		repo := NewSQLiteNotificationRepository(setupTestDB(t))
		recipient := uuid.New()
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.Save(ctx, newNotification(t, recipient, "n", now.Add(time.Duration(i)*time.Second))))
		}
		bystander := newNotification(t, uuid.New(), "keep", now)
		require.NoError(t, repo.Save(ctx, bystander))

		changed, err := repo.MarkAllRead(ctx, recipient, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, changed)

		changed, err = repo.MarkAllRead(ctx, recipient, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, changed)

		count, err := repo.CountUnread(ctx, recipient)
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = repo.CountUnread(ctx, bystander.RecipientID())
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
