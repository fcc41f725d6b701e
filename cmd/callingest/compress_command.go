package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callingest/internal/compression"
	"callingest/internal/ingest"
	"callingest/internal/progress"
)

func newCompressCommand(ctx *commandContext) *cobra.Command {
	var targetMB int
	var force bool

	cmd := &cobra.Command{
		Use:   "compress <file>",
		Short: "Transcode a recording to mono MP3 without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			asset, err := loadAsset(args[0])
			if err != nil {
				return err
			}
			if targetMB <= 0 {
				targetMB = cfg.Compression.TargetSizeMB
			}

			out := cmd.OutOrStdout()
			stderr := cmd.ErrOrStderr()
			if !force && !compression.ShouldCompress(asset.Size, targetMB) {
				fmt.Fprintf(stderr, "%s is %s, already under the %d MB target (use --force to compress anyway)\n",
					asset.Name, humanize.Bytes(uint64(asset.Size)), targetMB)
				fmt.Fprintln(out, asset.Path)
				return nil
			}

			engine := ingest.NewEngine(cfg, ctx.loggerFor())
			renderer := newProgressRenderer(stderr, asset.Name, isTerminal(stderr))
			reporter := progress.NewReporter(renderer.Sink()).WithLogger(ctx.loggerFor())
			fmt.Fprintf(stderr, "%s (%s): compressing at %d kbps\n",
				asset.Name, humanize.Bytes(uint64(asset.Size)), compression.SelectBitrate(asset.Size, targetMB))

			result, err := engine.Compress(cmd.Context(), asset, targetMB, reporter.Sink())
			if err != nil {
				return err
			}
			fmt.Fprintf(stderr, "%s -> %s\n", humanize.Bytes(uint64(asset.Size)), humanize.Bytes(uint64(result.Size)))
			fmt.Fprintln(out, result.Path)
			return nil
		},
	}

	cmd.Flags().IntVar(&targetMB, "target-mb", 0, "Override compression.target_size_mb")
	cmd.Flags().BoolVar(&force, "force", false, "Compress even when the file is under the target")
	return cmd
}
