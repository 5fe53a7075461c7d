package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inventory/internal/models"
)

const (
	uploadField = "images"
	uploadsKey  = "uploads"

	// multipartSlack covers boundaries and part headers on top of the
	// file payloads.
	multipartSlack = 1 << 20
)

var (
	allowedExts = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	}
	allowedMIMEs = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
)

const msgFileType = "Only image files are allowed (jpeg, jpg, png, gif, webp)"

// ingestUploads writes the multipart images to the temp subdir and passes
// them on as transient uploads. Any violation rejects the whole request,
// including a file whose content is not an image whatever its declared type.
// Whatever transient files remain once the handler returns are removed.
func (s *Server) ingestUploads(c *gin.Context) {
	const op = "server.ingestUploads"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body,
		s.cfg.MaxFileSize*int64(s.cfg.MaxFiles)+multipartSlack)

	var headers []*multipart.FileHeader
	form, err := c.MultipartForm()
	switch {
	case errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, models.Validation(op, s.tooLargeMessage()))
			return
		}
		s.writeError(c, models.Validation(op, "Invalid multipart form"))
		return
	default:
		defer form.RemoveAll()
		headers = form.File[uploadField]
	}

	if len(headers) > s.cfg.MaxFiles {
		s.writeError(c, models.Validation(op, fmt.Sprintf("Too many files. Maximum is %d", s.cfg.MaxFiles)))
		return
	}

	files := make([]models.UploadedFile, 0, len(headers))
	defer func() {
		for _, f := range files {
			s.discardUpload(f.TempPath)
		}
	}()

	for _, fh := range headers {
		if fh.Size > s.cfg.MaxFileSize {
			s.writeError(c, models.Validation(op, s.tooLargeMessage()))
			return
		}
		if _, ok := allowedExts[strings.ToLower(path.Ext(fh.Filename))]; !ok {
			s.writeError(c, models.Validation(op, msgFileType))
			return
		}

		f, err := s.saveUpload(fh)
		if err != nil {
			s.writeError(c, err)
			return
		}
		files = append(files, f)
	}

	c.Set(uploadsKey, files)
	c.Next()
}

func (s *Server) saveUpload(fh *multipart.FileHeader) (models.UploadedFile, error) {
	const op = "server.saveUpload"

	src, err := fh.Open()
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}
	if !mimetype.EqualsAny(mt.String(), allowedMIMEs...) {
		return models.UploadedFile{}, models.Validation(op, msgFileType)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.fs.MkdirAll(s.cfg.TempSubdir, 0o755); err != nil {
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}
	name := path.Join(s.cfg.TempSubdir, uuid.NewString()+strings.ToLower(path.Ext(fh.Filename)))
	dst, err := s.fs.Create(name)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		s.discardUpload(name)
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := dst.Close(); err != nil {
		s.discardUpload(name)
		return models.UploadedFile{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.UploadedFile{
		OriginalName: fh.Filename,
		MimeType:     mt.String(),
		TempPath:     name,
		Size:         fh.Size,
	}, nil
}

func (s *Server) discardUpload(name string) {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", name).Msg("failed to remove transient upload")
	}
}

func (s *Server) tooLargeMessage() string {
	return "File too large. Maximum size is " + humanize.IBytes(uint64(s.cfg.MaxFileSize))
}

func uploadsFrom(c *gin.Context) []models.UploadedFile {
	v, _ := c.Get(uploadsKey)
	files, _ := v.([]models.UploadedFile)
	return files
}
