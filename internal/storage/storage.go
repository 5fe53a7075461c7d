package storage

import (
	"context"
	"strings"

	"inventory/internal/models"
)

// Store persists parent entities and their ordered image records.
// Every image operation is scoped to a parent type and parent id.
type Store interface {
	ParentExists(ctx context.Context, pt models.ParentType, id int64) (bool, error)
	CreateParent(ctx context.Context, pt models.ParentType, name string) (int64, error)
	// DeleteParent reports false when no row matched. Image rows cascade.
	DeleteParent(ctx context.Context, pt models.ParentType, id int64) (bool, error)

	ListImages(ctx context.Context, pt models.ParentType, parentID int64) ([]models.ImageRecord, error)
	CountImages(ctx context.Context, pt models.ParentType, parentID int64) (int, error)
	AddImage(ctx context.Context, pt models.ParentType, parentID int64, imagePath, thumbnailPath string, displayOrder int) (*models.ImageRecord, error)
	RemoveImage(ctx context.Context, pt models.ParentType, parentID, imageID int64) (*models.ImageRecord, error)
	SetImageOrder(ctx context.Context, pt models.ParentType, parentID, imageID int64, displayOrder int) (*models.ImageRecord, error)

	// ReferencedPaths returns every image and thumbnail path known to the store.
	ReferencedPaths(ctx context.Context) (map[string]struct{}, error)

	Ping(ctx context.Context) error
	Close()
}

// Open picks the backend from the DSN: postgres URLs go to pgx, anything
// else is treated as a SQLite database file.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(ctx, dsn)
	}
	return NewSQLite(ctx, dsn)
}

func imageNotFound(op string) error {
	return models.NotFound(op, "Image not found")
}
