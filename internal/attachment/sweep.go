package attachment

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"

	"inventory/internal/processor"
)

type SweepOptions struct {
	// OlderThan protects files still being written by an in-flight upload.
	OlderThan time.Duration
	DryRun    bool
}

type SweepReport struct {
	Scanned int
	Removed []string
	Bytes   int64
}

// Sweep removes derivatives no image record references and stale transient
// uploads. Only files last modified before now-OlderThan are considered.
func (s *Service) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	refs, err := s.store.ReferencedPaths(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-opts.OlderThan)
	report := &SweepReport{}

	dirs := []struct {
		dir    string
		prefix string
	}{
		{dir: ".", prefix: processor.ResizedPrefix},
		{dir: s.opts.ThumbnailDir, prefix: processor.ThumbnailPrefix},
		{dir: s.opts.TempDir},
	}
	for _, d := range dirs {
		if d.dir == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.sweepDir(d.dir, d.prefix, cutoff, refs, opts.DryRun, report); err != nil {
			return report, err
		}
	}

	s.log.Info().
		Int("scanned", report.Scanned).
		Int("removed", len(report.Removed)).
		Int64("bytes", report.Bytes).
		Bool("dry_run", opts.DryRun).
		Msg("sweep finished")
	return report, nil
}

func (s *Service) sweepDir(dir, prefix string, cutoff time.Time, refs map[string]struct{}, dryRun bool, report *SweepReport) error {
	entries, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, fi := range entries {
		if fi.IsDir() || !strings.HasPrefix(fi.Name(), prefix) {
			continue
		}
		report.Scanned++

		name := path.Join(dir, fi.Name())
		if _, ok := refs[name]; ok || fi.ModTime().After(cutoff) {
			continue
		}

		if !dryRun {
			if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Warn().Err(err).Str("path", name).Msg("sweep failed to remove file")
				continue
			}
		}
		report.Removed = append(report.Removed, name)
		report.Bytes += fi.Size()
	}
	return nil
}
