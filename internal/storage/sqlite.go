package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"inventory/internal/models"
)

var sqliteParams = []string{
	"_time_format=sqlite",
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

// imageRow decouples scanning from models.ImageRecord: the driver hands
// back created_at as text when it cannot see the declared column type.
type imageRow struct {
	ID            int64
	ParentID      int64
	ImagePath     string
	ThumbnailPath string
	DisplayOrder  int
	CreatedAt     sqliteTime
}

func (r imageRow) toModel() models.ImageRecord {
	return models.ImageRecord{
		ID:            r.ID,
		ParentID:      r.ParentID,
		ImagePath:     r.ImagePath,
		ThumbnailPath: r.ThumbnailPath,
		DisplayOrder:  r.DisplayOrder,
		CreatedAt:     r.CreatedAt.Time,
	}
}

var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

type sqliteTime struct {
	time.Time
}

func (t *sqliteTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = x
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("unsupported time value %T", v)
	}
	return nil
}

func (t *sqliteTime) parse(s string) error {
	for _, layout := range sqliteTimeFormats {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised time value %q", s)
}

// SQLite is the single-file backend used for local development and tests.
type SQLite struct {
	db  *gorm.DB
	sql *sql.DB
}

func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	const op = "storage.NewSQLite"

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        sqliteDSN(dsn),
		}),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)},
	)
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, models.StoreFailure(op, err)
	}
	if err := runMigrations(sqlDB, "sqlite3", sqliteMigrations); err != nil {
		sqlDB.Close()
		return nil, models.StoreFailure(op, err)
	}

	return &SQLite{db: db, sql: sqlDB}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqliteParams, "&")
}

func (s *SQLite) Close() {
	s.sql.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.sql.PingContext(ctx); err != nil {
		return models.StoreFailure("storage.Ping", err)
	}
	return nil
}

func (s *SQLite) ParentExists(ctx context.Context, pt models.ParentType, id int64) (bool, error) {
	const op = "storage.ParentExists"
	var n int64
	if err := s.db.WithContext(ctx).Table(pt.Table()).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, models.StoreFailure(op, err)
	}
	return n > 0, nil
}

func (s *SQLite) CreateParent(ctx context.Context, pt models.ParentType, name string) (int64, error) {
	const op = "storage.CreateParent"
	var id int64
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf(`INSERT INTO %s (name) VALUES (?) RETURNING id`, pt.Table()), name).
		Scan(&id).Error
	if err != nil {
		return 0, models.StoreFailure(op, err)
	}
	return id, nil
}

func (s *SQLite) DeleteParent(ctx context.Context, pt models.ParentType, id int64) (bool, error) {
	const op = "storage.DeleteParent"
	res := s.db.WithContext(ctx).Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, pt.Table()), id)
	if res.Error != nil {
		return false, models.StoreFailure(op, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLite) ListImages(ctx context.Context, pt models.ParentType, parentID int64) ([]models.ImageRecord, error) {
	const op = "storage.ListImages"
	var rows []imageRow
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = ? ORDER BY display_order ASC, created_at ASC, id ASC`,
		imageColumns(pt), pt.ImageTable(), pt.ForeignKey()), parentID).
		Scan(&rows).Error
	if err != nil {
		return nil, models.StoreFailure(op, err)
	}
	imgs := make([]models.ImageRecord, 0, len(rows))
	for _, r := range rows {
		imgs = append(imgs, r.toModel())
	}
	return imgs, nil
}

func (s *SQLite) CountImages(ctx context.Context, pt models.ParentType, parentID int64) (int, error) {
	const op = "storage.CountImages"
	var n int64
	err := s.db.WithContext(ctx).Table(pt.ImageTable()).
		Where(pt.ForeignKey()+" = ?", parentID).Count(&n).Error
	if err != nil {
		return 0, models.StoreFailure(op, err)
	}
	return int(n), nil
}

func (s *SQLite) AddImage(ctx context.Context, pt models.ParentType, parentID int64, imagePath, thumbnailPath string, displayOrder int) (*models.ImageRecord, error) {
	const op = "storage.AddImage"
	var row imageRow
	res := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`INSERT INTO %s (%s, image_path, thumbnail_path, display_order, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING %s`,
		pt.ImageTable(), pt.ForeignKey(), imageColumns(pt)),
		parentID, imagePath, thumbnailPath, displayOrder, time.Now().UTC()).
		Scan(&row)
	if res.Error != nil {
		return nil, models.StoreFailure(op, res.Error)
	}
	img := row.toModel()
	return &img, nil
}

func (s *SQLite) RemoveImage(ctx context.Context, pt models.ParentType, parentID, imageID int64) (*models.ImageRecord, error) {
	const op = "storage.RemoveImage"
	var row imageRow
	res := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`DELETE FROM %s WHERE id = ? AND %s = ? RETURNING %s`,
		pt.ImageTable(), pt.ForeignKey(), imageColumns(pt)), imageID, parentID).
		Scan(&row)
	if res.Error != nil {
		return nil, models.StoreFailure(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, imageNotFound(op)
	}
	img := row.toModel()
	return &img, nil
}

func (s *SQLite) SetImageOrder(ctx context.Context, pt models.ParentType, parentID, imageID int64, displayOrder int) (*models.ImageRecord, error) {
	const op = "storage.SetImageOrder"
	var row imageRow
	res := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`UPDATE %s SET display_order = ? WHERE id = ? AND %s = ? RETURNING %s`,
		pt.ImageTable(), pt.ForeignKey(), imageColumns(pt)), displayOrder, imageID, parentID).
		Scan(&row)
	if res.Error != nil {
		return nil, models.StoreFailure(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, imageNotFound(op)
	}
	img := row.toModel()
	return &img, nil
}

func (s *SQLite) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	const op = "storage.ReferencedPaths"
	type pathRow struct {
		ImagePath     string
		ThumbnailPath string
	}
	paths := make(map[string]struct{})
	for _, pt := range models.ParentTypes {
		var rows []pathRow
		err := s.db.WithContext(ctx).
			Raw(fmt.Sprintf(`SELECT image_path, thumbnail_path FROM %s`, pt.ImageTable())).
			Scan(&rows).Error
		if err != nil {
			return nil, models.StoreFailure(op, err)
		}
		for _, r := range rows {
			paths[r.ImagePath] = struct{}{}
			paths[r.ThumbnailPath] = struct{}{}
		}
	}
	return paths, nil
}
