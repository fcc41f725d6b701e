package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callingest/internal/ingest"
	"callingest/internal/progress"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var dest destinationFlags
	var forceResumable bool
	var forceDirect bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file as-is, resuming an interrupted transfer when possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceResumable && forceDirect {
				return errors.New("--resumable and --direct are mutually exclusive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			asset, err := loadAsset(args[0])
			if err != nil {
				return err
			}
			pipeline, err := ctx.ensurePipeline()
			if err != nil {
				return err
			}
			defer ctx.close()

			var uploader ingest.Uploader = pipeline.Direct
			route := "direct"
			if forceResumable || (!forceDirect && asset.Size > cfg.ResumableThresholdBytes()) {
				uploader, route = pipeline.Coordinator, "resumable"
			}

			stderr := cmd.ErrOrStderr()
			fmt.Fprintf(stderr, "%s (%s): %s upload\n", asset.Name, humanize.Bytes(uint64(asset.Size)), route)
			renderer := newProgressRenderer(stderr, asset.Name, isTerminal(stderr))
			reporter := progress.NewReporter(renderer.Sink()).WithLogger(ctx.loggerFor())

			loc, err := uploader.Upload(cmd.Context(), asset, dest.destination(cfg), reporter.Sink())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc.URL)
			return nil
		},
	}

	dest.register(cmd)
	cmd.Flags().BoolVar(&forceResumable, "resumable", false, "Always use the resumable protocol")
	cmd.Flags().BoolVar(&forceDirect, "direct", false, "Always use a single request")
	return cmd
}
