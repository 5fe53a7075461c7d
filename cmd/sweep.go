package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"inventory/internal/attachment"
	"inventory/internal/events"
	"inventory/internal/storage"
)

func newSweepCmd(configPath *string) *cobra.Command {
	var opts attachment.SweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stored files that no image record references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			fs, err := storageFs(cfg)
			if err != nil {
				return err
			}
			store, err := storage.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := newService(cfg, store, fs, events.Nop{}).Sweep(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			verb := "removed"
			if opts.DryRun {
				verb = "would remove"
			}
			for _, name := range report.Removed {
				fmt.Fprintf(out, "%s %s\n", verb, name)
			}
			fmt.Fprintf(out, "scanned %d file(s), %s %d (%s)\n",
				report.Scanned, verb, len(report.Removed), humanize.IBytes(uint64(report.Bytes)))
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 24*time.Hour, "only consider files last modified before this long ago")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be removed without deleting")
	return cmd
}
