package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory/internal/models"
)

// Runs against a real server only when TEST_DATABASE_URL is set.
func newPostgresStore(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPostgresImageLifecycle(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	pid, err := s.CreateParent(ctx, models.Products, "pg widget")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = s.DeleteParent(context.Background(), models.Products, pid) })

	for _, order := range []int{2, 0, 1} {
		_, err := s.AddImage(ctx, models.Products, pid, "resized-pg.jpg", "thumbnails/thumb-pg.jpg", order)
		require.NoError(t, err)
	}

	imgs, err := s.ListImages(ctx, models.Products, pid)
	require.NoError(t, err)
	require.Len(t, imgs, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{imgs[0].DisplayOrder, imgs[1].DisplayOrder, imgs[2].DisplayOrder})

	updated, err := s.SetImageOrder(ctx, models.Products, pid, imgs[0].ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.DisplayOrder)

	removed, err := s.RemoveImage(ctx, models.Products, pid, imgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, imgs[1].ID, removed.ID)

	_, err = s.RemoveImage(ctx, models.Products, pid, imgs[1].ID)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))

	deleted, err := s.DeleteParent(ctx, models.Products, pid)
	require.NoError(t, err)
	assert.True(t, deleted)

	n, err := s.CountImages(ctx, models.Products, pid)
	require.NoError(t, err)
	assert.Zero(t, n)
}
