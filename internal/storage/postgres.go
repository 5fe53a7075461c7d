package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"inventory/internal/models"
)

type Postgres struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	const op = "storage.NewPostgres"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, models.StoreFailure(op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db, "postgres", postgresMigrations); err != nil {
		db.Close()
		pool.Close()
		return nil, models.StoreFailure(op, err)
	}

	return &Postgres{pool: pool, db: db}, nil
}

func (s *Postgres) Close() {
	s.db.Close()
	s.pool.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return models.StoreFailure("storage.Ping", err)
	}
	return nil
}

func (s *Postgres) ParentExists(ctx context.Context, pt models.ParentType, id int64) (bool, error) {
	const op = "storage.ParentExists"
	var exists bool
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, pt.Table()), id).Scan(&exists)
	if err != nil {
		return false, models.StoreFailure(op, err)
	}
	return exists, nil
}

func (s *Postgres) CreateParent(ctx context.Context, pt models.ParentType, name string) (int64, error) {
	const op = "storage.CreateParent"
	var id int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1) RETURNING id`, pt.Table()), name).Scan(&id)
	if err != nil {
		return 0, models.StoreFailure(op, err)
	}
	return id, nil
}

func (s *Postgres) DeleteParent(ctx context.Context, pt models.ParentType, id int64) (bool, error) {
	const op = "storage.DeleteParent"
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pt.Table()), id)
	if err != nil {
		return false, models.StoreFailure(op, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ListImages(ctx context.Context, pt models.ParentType, parentID int64) ([]models.ImageRecord, error) {
	const op = "storage.ListImages"
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1 ORDER BY display_order ASC, created_at ASC, id ASC`,
		imageColumns(pt), pt.ImageTable(), pt.ForeignKey()), parentID)
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	imgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ImageRecord])
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	return imgs, nil
}

func (s *Postgres) CountImages(ctx context.Context, pt models.ParentType, parentID int64) (int, error) {
	const op = "storage.CountImages"
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`,
		pt.ImageTable(), pt.ForeignKey()), parentID).Scan(&n)
	if err != nil {
		return 0, models.StoreFailure(op, err)
	}
	return n, nil
}

func (s *Postgres) AddImage(ctx context.Context, pt models.ParentType, parentID int64, imagePath, thumbnailPath string, displayOrder int) (*models.ImageRecord, error) {
	const op = "storage.AddImage"
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, image_path, thumbnail_path, display_order, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING %s`,
		pt.ImageTable(), pt.ForeignKey(), imageColumns(pt)),
		parentID, imagePath, thumbnailPath, displayOrder, time.Now().UTC())
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	img, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.ImageRecord])
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	return &img, nil
}

func (s *Postgres) RemoveImage(ctx context.Context, pt models.ParentType, parentID, imageID int64) (*models.ImageRecord, error) {
	const op = "storage.RemoveImage"
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND %s = $2 RETURNING %s`,
		pt.ImageTable(), pt.ForeignKey(), imageColumns(pt)), imageID, parentID)
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	return collectOne(op, rows)
}

func (s *Postgres) SetImageOrder(ctx context.Context, pt models.ParentType, parentID, imageID int64, displayOrder int) (*models.ImageRecord, error) {
	const op = "storage.SetImageOrder"
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`UPDATE %s SET display_order = $1 WHERE id = $2 AND %s = $3 RETURNING %s`,
		pt.ImageTable(), pt.ForeignKey(), imageColumns(pt)), displayOrder, imageID, parentID)
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	return collectOne(op, rows)
}

func (s *Postgres) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	const op = "storage.ReferencedPaths"
	paths := make(map[string]struct{})
	for _, pt := range models.ParentTypes {
		rows, err := s.pool.Query(ctx,
			fmt.Sprintf(`SELECT image_path, thumbnail_path FROM %s`, pt.ImageTable()))
		if err != nil {
			return nil, models.StoreFailure(op, err)
		}
		var imagePath, thumbPath string
		_, err = pgx.ForEachRow(rows, []any{&imagePath, &thumbPath}, func() error {
			paths[imagePath] = struct{}{}
			paths[thumbPath] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, models.StoreFailure(op, err)
		}
	}
	return paths, nil
}

func collectOne(op string, rows pgx.Rows) (*models.ImageRecord, error) {
	img, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.ImageRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, imageNotFound(op)
	}
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	return &img, nil
}

// imageColumns selects the foreign key as parent_id so rows map onto
// models.ImageRecord regardless of the parent type.
func imageColumns(pt models.ParentType) string {
	return fmt.Sprintf("id, %s AS parent_id, image_path, thumbnail_path, display_order, created_at", pt.ForeignKey())
}
