package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"inventory/internal/attachment"
	"inventory/internal/logger"
	"inventory/internal/models"
)

type ImageService interface {
	Attach(ctx context.Context, pt models.ParentType, parentID int64, files []models.UploadedFile) (*models.AttachResult, error)
	List(ctx context.Context, pt models.ParentType, parentID int64) ([]models.ImageRecord, error)
	DeleteImage(ctx context.Context, pt models.ParentType, parentID, imageID int64) (*models.ImageRecord, error)
	DeleteParent(ctx context.Context, pt models.ParentType, parentID int64) (int, error)
	Reorder(ctx context.Context, pt models.ParentType, parentID, imageID int64, displayOrder int) (*models.ImageRecord, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

var _ ImageService = (*attachment.Service)(nil)

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	http   *http.Server
	images ImageService
	db     Pinger
	fs     afero.Fs
	log    zerolog.Logger
}

// NewServer wires the routes. fs must be rooted at the storage root; it is
// used for transient uploads and for serving stored files.
func NewServer(cfg *models.Config, images ImageService, db Pinger, fs afero.Fs, log zerolog.Logger) *Server {
	r := gin.New()
	s := &Server{cfg: cfg, router: r, images: images, db: db, fs: fs, log: log}

	r.Use(logger.Gin(log))
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.log.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	r.Use(s.cors())

	r.StaticFS(cfg.PublicPrefix, filesOnly{afero.NewHttpFs(fs).Dir("/")})

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	for _, pt := range models.ParentTypes {
		g := api.Group("/" + string(pt))
		g.GET("/:id/images", s.handleList(pt))
		g.POST("/:id/images", s.ingestUploads, s.handleUpload(pt))
		g.DELETE("/:id/images/:imageId", s.handleDeleteImage(pt))
		g.PUT("/:id/images/:imageId/order", s.handleReorder(pt))
		g.DELETE("/:id", s.handleDeleteParent(pt))
	}

	s.http = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.ServerAddr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Stop: %w", err)
	}
	return nil
}

func (s *Server) cors() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.cfg.CORSOrigins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	return cors.New(cfg)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Server is running"})
}

func (s *Server) handleList(pt models.ParentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id", pt.Label()+" id")
		if !ok {
			return
		}

		imgs, err := s.images.List(c.Request.Context(), pt, id)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, imgs)
	}
}

func (s *Server) handleUpload(pt models.ParentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id", pt.Label()+" id")
		if !ok {
			return
		}

		res, err := s.images.Attach(c.Request.Context(), pt, id, uploadsFrom(c))
		if err != nil {
			s.writeError(c, err)
			return
		}

		body := gin.H{
			"message": fmt.Sprintf("Successfully uploaded %d image(s)", len(res.Created)),
			"images":  res.Created,
		}
		if len(res.Errors) > 0 {
			body["errors"] = res.Errors
		}
		c.JSON(http.StatusCreated, body)
	}
}

func (s *Server) handleDeleteImage(pt models.ParentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id", pt.Label()+" id")
		if !ok {
			return
		}
		imageID, ok := s.paramID(c, "imageId", "image id")
		if !ok {
			return
		}

		img, err := s.images.DeleteImage(c.Request.Context(), pt, id, imageID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully", "image": img})
	}
}

type reorderRequest struct {
	DisplayOrder *int `json:"display_order"`
}

func (s *Server) handleReorder(pt models.ParentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "server.handleReorder"

		id, ok := s.paramID(c, "id", pt.Label()+" id")
		if !ok {
			return
		}
		imageID, ok := s.paramID(c, "imageId", "image id")
		if !ok {
			return
		}

		var req reorderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, models.Validation(op, "display_order must be a non-negative integer"))
			return
		}
		if req.DisplayOrder == nil {
			s.writeError(c, models.Validation(op, "display_order is required"))
			return
		}

		img, err := s.images.Reorder(c.Request.Context(), pt, id, imageID, *req.DisplayOrder)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, img)
	}
}

func (s *Server) handleDeleteParent(pt models.ParentType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id", pt.Label()+" id")
		if !ok {
			return
		}

		n, err := s.images.DeleteParent(c.Request.Context(), pt, id)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":        pt.Label() + " deleted successfully",
			"images_removed": n,
		})
	}
}

func (s *Server) paramID(c *gin.Context, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, models.Validation("server.paramID", "Invalid "+label))
		return 0, false
	}
	return id, true
}

// filesOnly refuses to open directories so the storage root is never listed.
type filesOnly struct {
	http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	if st, err := file.Stat(); err != nil || st.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
