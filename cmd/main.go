package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"inventory/internal/attachment"
	"inventory/internal/events"
	"inventory/internal/logger"
	"inventory/internal/models"
	"inventory/internal/processor"
	"inventory/internal/storage"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "inventory",
		Short:         "Image attachments for products, categories and suppliers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newSweepCmd(&configPath),
	)
	return root
}

func bootstrap(configPath string) (*models.Config, error) {
	cfg, err := models.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storageFs creates the storage layout on disk and returns a filesystem
// rooted at the storage root.
func storageFs(cfg *models.Config) (afero.Fs, error) {
	osFs := afero.NewOsFs()
	for _, dir := range []string{
		cfg.StorageRoot,
		filepath.Join(cfg.StorageRoot, cfg.ThumbnailSubdir),
		filepath.Join(cfg.StorageRoot, cfg.TempSubdir),
	} {
		if err := osFs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return afero.NewBasePathFs(osFs, cfg.StorageRoot), nil
}

func newService(cfg *models.Config, store storage.Store, fs afero.Fs, pub events.Publisher) *attachment.Service {
	proc := processor.New(fs, cfg.ThumbnailSubdir, logger.Component("processor"))
	return attachment.NewService(store, proc, fs, pub, attachment.Options{
		ThumbnailDir: cfg.ThumbnailSubdir,
		TempDir:      cfg.TempSubdir,
	}, logger.Component("attachment"))
}
