package attachment

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"inventory/internal/events"
	"inventory/internal/models"
	"inventory/internal/processor"
)

type Store interface {
	ParentExists(ctx context.Context, pt models.ParentType, id int64) (bool, error)
	DeleteParent(ctx context.Context, pt models.ParentType, id int64) (bool, error)
	ListImages(ctx context.Context, pt models.ParentType, parentID int64) ([]models.ImageRecord, error)
	CountImages(ctx context.Context, pt models.ParentType, parentID int64) (int, error)
	AddImage(ctx context.Context, pt models.ParentType, parentID int64, imagePath, thumbnailPath string, displayOrder int) (*models.ImageRecord, error)
	RemoveImage(ctx context.Context, pt models.ParentType, parentID, imageID int64) (*models.ImageRecord, error)
	SetImageOrder(ctx context.Context, pt models.ParentType, parentID, imageID int64, displayOrder int) (*models.ImageRecord, error)
	ReferencedPaths(ctx context.Context) (map[string]struct{}, error)
}

type Generator interface {
	Generate(src string) (processor.Derivatives, error)
}

const (
	maxInflightEvents = 64
	publishTimeout    = 5 * time.Second
)

type Options struct {
	ThumbnailDir string
	TempDir      string
}

// Service attaches images to parent entities and keeps the store and the
// storage root in step when images or parents go away. Store and files are
// not updated atomically: the store is always written first on delete, and
// file removal failures are only logged.
type Service struct {
	store  Store
	gen    Generator
	fs     afero.Fs
	events events.Publisher
	opts   Options
	log    zerolog.Logger

	inflight chan struct{}
	wg       sync.WaitGroup
}

func NewService(store Store, gen Generator, fs afero.Fs, pub events.Publisher, opts Options, log zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:    store,
		gen:      gen,
		fs:       fs,
		events:   pub,
		opts:     opts,
		log:      log,
		inflight: make(chan struct{}, maxInflightEvents),
	}
}

// Wait blocks until every pending event has been handed to the publisher.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Attach turns each transient upload into a persisted image of the parent.
// Files succeed or fail independently; the call fails only when none
// succeeded. Every transient file is gone when Attach returns.
func (s *Service) Attach(ctx context.Context, pt models.ParentType, parentID int64, files []models.UploadedFile) (*models.AttachResult, error) {
	const op = "attachment.Attach"

	if len(files) == 0 {
		return nil, models.Validation(op, "No images provided")
	}

	if err := s.requireParent(ctx, op, pt, parentID); err != nil {
		for _, f := range files {
			s.removeFile(f.TempPath)
		}
		return nil, err
	}

	res := &models.AttachResult{Created: []models.ImageRecord{}}
	storeFailed := false
	for _, f := range files {
		img, err := s.attachOne(ctx, pt, parentID, f)
		if err != nil {
			if models.KindOf(err) == models.KindStore {
				storeFailed = true
			}
			s.log.Warn().Err(err).
				Str("parent_type", string(pt)).
				Int64("parent_id", parentID).
				Str("file", f.OriginalName).
				Msg("image attach failed")
			res.Errors = append(res.Errors, models.FileError{File: f.OriginalName, Error: models.MessageOf(err)})
			continue
		}
		res.Created = append(res.Created, *img)
	}

	if len(res.Created) == 0 {
		kind := models.KindValidation
		if storeFailed {
			kind = models.KindStore
		}
		return nil, &models.Error{Op: op, Kind: kind, Message: "Failed to upload images", Details: res.Errors}
	}
	return res, nil
}

func (s *Service) attachOne(ctx context.Context, pt models.ParentType, parentID int64, f models.UploadedFile) (*models.ImageRecord, error) {
	defer s.removeFile(f.TempPath)

	d, err := s.gen.Generate(f.TempPath)
	if err != nil {
		return nil, err
	}

	// Counted per file, so a batch appends in upload order. Concurrent
	// uploads may pick the same value; created_at breaks the tie.
	order, err := s.store.CountImages(ctx, pt, parentID)
	if err != nil {
		s.removeFiles(d.ImagePath, d.ThumbnailPath)
		return nil, err
	}

	img, err := s.store.AddImage(ctx, pt, parentID, d.ImagePath, d.ThumbnailPath, order)
	if err != nil {
		s.removeFiles(d.ImagePath, d.ThumbnailPath)
		return nil, err
	}

	s.publish(ctx, events.Event{Type: events.ImageCreated, ParentType: pt, ParentID: parentID, ImageID: img.ID, Image: img})
	return img, nil
}

func (s *Service) List(ctx context.Context, pt models.ParentType, parentID int64) ([]models.ImageRecord, error) {
	const op = "attachment.List"
	if err := s.requireParent(ctx, op, pt, parentID); err != nil {
		return nil, err
	}
	return s.store.ListImages(ctx, pt, parentID)
}

// DeleteImage removes the record, then its files.
func (s *Service) DeleteImage(ctx context.Context, pt models.ParentType, parentID, imageID int64) (*models.ImageRecord, error) {
	const op = "attachment.DeleteImage"
	if err := s.requireParent(ctx, op, pt, parentID); err != nil {
		return nil, err
	}

	img, err := s.store.RemoveImage(ctx, pt, parentID, imageID)
	if err != nil {
		return nil, err
	}
	s.removeFiles(img.ImagePath, img.ThumbnailPath)

	s.publish(ctx, events.Event{Type: events.ImageDeleted, ParentType: pt, ParentID: parentID, ImageID: img.ID, Image: img})
	return img, nil
}

// DeleteParent deletes the parent row, which cascades to its image rows,
// then removes the files of the images it had. It returns how many images
// were purged.
func (s *Service) DeleteParent(ctx context.Context, pt models.ParentType, parentID int64) (int, error) {
	const op = "attachment.DeleteParent"

	imgs, err := s.store.ListImages(ctx, pt, parentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("parent_type", string(pt)).
			Int64("parent_id", parentID).
			Msg("could not list images before parent delete, files will be orphaned")
		imgs = nil
	}

	deleted, err := s.store.DeleteParent(ctx, pt, parentID)
	if err != nil {
		return 0, err
	}
	if !deleted {
		return 0, models.NotFound(op, pt.Label()+" not found")
	}

	for _, img := range imgs {
		s.removeFiles(img.ImagePath, img.ThumbnailPath)
	}

	s.publish(ctx, events.Event{Type: events.ParentDeleted, ParentType: pt, ParentID: parentID})
	return len(imgs), nil
}

// Reorder sets one image's display order. Siblings are not renumbered.
func (s *Service) Reorder(ctx context.Context, pt models.ParentType, parentID, imageID int64, displayOrder int) (*models.ImageRecord, error) {
	const op = "attachment.Reorder"
	if displayOrder < 0 || displayOrder > math.MaxInt32 {
		return nil, models.Validation(op, "display_order must be a non-negative integer")
	}
	if err := s.requireParent(ctx, op, pt, parentID); err != nil {
		return nil, err
	}

	img, err := s.store.SetImageOrder(ctx, pt, parentID, imageID, displayOrder)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{Type: events.ImageReordered, ParentType: pt, ParentID: parentID, ImageID: img.ID, Image: img})
	return img, nil
}

func (s *Service) requireParent(ctx context.Context, op string, pt models.ParentType, id int64) error {
	ok, err := s.store.ParentExists(ctx, pt, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NotFound(op, pt.Label()+" not found")
	}
	return nil
}

func (s *Service) removeFiles(names ...string) {
	for _, name := range names {
		s.removeFile(name)
	}
}

// removeFile is idempotent: a missing file is not an error.
func (s *Service) removeFile(name string) {
	if name == "" {
		return
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", name).Msg("failed to remove file")
	}
}

// publish runs off the request path. When too many events are pending the
// event is dropped and logged.
func (s *Service) publish(ctx context.Context, e events.Event) {
	e.At = time.Now().UTC()

	select {
	case s.inflight <- struct{}{}:
	default:
		s.log.Warn().Str("event", string(e.Type)).Msg("event dropped, publisher backlog full")
		return
	}

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.inflight
			s.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, e); err != nil {
			s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to publish event")
		}
	}()
}
