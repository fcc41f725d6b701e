package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"callingest/internal/config"
	"callingest/internal/deps"
	"callingest/internal/ingest"
	"callingest/internal/media"
	"callingest/internal/preflight"
	"callingest/internal/progress"
	"callingest/internal/services"
	"callingest/internal/upload"
)

// destinationFlags are shared by the commands that upload.
type destinationFlags struct {
	bucket string
	object string
	prefix string
	unique bool
	upsert bool
}

func (f *destinationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "Override storage.bucket")
	cmd.Flags().StringVar(&f.object, "object", "", "Object name (defaults to the uploaded file name)")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "Folder prepended to the object name")
	cmd.Flags().BoolVar(&f.unique, "unique", false, "Store under a random folder so names never collide")
	cmd.Flags().BoolVar(&f.upsert, "upsert", false, "Overwrite an existing object")
}

func (f *destinationFlags) destination(cfg *config.Config) upload.Destination {
	dest := ingest.DestinationFromConfig(cfg, strings.TrimSpace(f.object))
	if bucket := strings.TrimSpace(f.bucket); bucket != "" {
		dest.Bucket = bucket
	}
	dest.Prefix = strings.TrimSpace(f.prefix)
	if f.unique {
		dest.Prefix = strings.Trim(dest.Prefix+"/"+uuid.NewString(), "/")
	}
	if f.upsert {
		dest.Upsert = true
	}
	return dest
}

func loadAsset(path string) (media.Asset, error) {
	asset, err := media.FromFile(path)
	if err != nil {
		return media.Asset{}, services.Wrap(services.ErrValidation, "cli", "open", "", err)
	}
	return asset, nil
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var dest destinationFlags
	var targetMB int
	var thresholdMB int
	var noCompress bool
	var keepCompressed bool
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Compress a recording when it is too large, then upload it",
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

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
					return preflightError(failed)
				}
			}

			pipeline, err := ctx.ensurePipeline()
			if err != nil {
				return err
			}
			defer ctx.close()

			opts := ingest.OptionsFromConfig(cfg)
			if targetMB > 0 {
				opts.CompressionTargetMB = targetMB
			}
			if thresholdMB > 0 {
				opts.ResumableThresholdBytes = int64(thresholdMB) * 1_000_000
			}
			opts.DisableCompression = noCompress
			opts.KeepCompressed = keepCompressed

			out := cmd.OutOrStdout()
			stderr := cmd.ErrOrStderr()
			plan := pipeline.Orchestrator.PlanFor(asset, opts)
			fmt.Fprintf(stderr, "%s (%s): %s\n", asset.Name, humanize.Bytes(uint64(asset.Size)), plan)
			if plan.Compress && !skipPreflight {
				if missing := deps.Unavailable(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
					return services.Wrap(services.ErrConfiguration, "cli", "dependencies",
						"compression requires "+deps.Describe(missing), nil)
				}
			}

			renderer := newProgressRenderer(stderr, asset.Name, isTerminal(stderr))
			reporter := progress.NewReporter(renderer.Sink()).WithLogger(ctx.loggerFor())
			loc, err := pipeline.Orchestrator.Ingest(cmd.Context(), asset, dest.destination(cfg), opts, reporter)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, loc.URL)
			return nil
		},
	}

	dest.register(cmd)
	cmd.Flags().IntVar(&targetMB, "target-mb", 0, "Override compression.target_size_mb")
	cmd.Flags().IntVar(&thresholdMB, "threshold-mb", 0, "Override upload.resumable_threshold_mb")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "Upload the original file without compressing")
	cmd.Flags().BoolVar(&keepCompressed, "keep-compressed", false, "Keep the compressed file in the work directory")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip directory, credential and storage checks")
	return cmd
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "cli", "preflight",
		"checks failed ("+strings.Join(parts, "; ")+"); run `callingest status` for details", nil)
}
