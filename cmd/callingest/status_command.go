package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callingest/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, dependencies and readiness checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)

			var lines []string
			lines = append(lines, renderSectionHeader("Configuration", colorize)...)
			configDetail := ctx.configPath
			if !ctx.configExists {
				configDetail += " (not found; using defaults)"
			}
			lines = append(lines,
				renderStatusLine("Config", statusInfo, configDetail, colorize),
				renderStatusLine("Endpoint", endpointKind(cfg.Storage.Endpoint), valueOr(cfg.Storage.Endpoint, "not configured"), colorize),
				renderStatusLine("Bucket", statusInfo, cfg.Storage.Bucket, colorize),
				renderStatusLine("Compression", statusInfo, fmt.Sprintf("target %d MB, verify %s", cfg.Compression.TargetSizeMB, yesNo(cfg.Compression.VerifyOutput)), colorize),
				renderStatusLine("Resumable above", statusInfo, humanize.Bytes(uint64(cfg.ResumableThresholdBytes())), colorize),
			)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				detail := dep.Command
				if !dep.Available {
					detail = dep.Detail
				}
				lines = append(lines, renderStatusLine(dep.Name, passKind(dep.Available, dep.Optional), detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			checks := []preflight.Result{
				preflight.CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
				preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
				preflight.CheckCredential(cmd.Context(), cfg),
			}
			if !offline && cfg.Storage.Endpoint != "" {
				checks = append(checks, preflight.CheckStorage(cmd.Context(), cfg))
			}
			for _, check := range checks {
				lines = append(lines, renderStatusLine(check.Name, passKind(check.Passed, false), check.Detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Sessions", colorize)...)
			lines = append(lines, sessionsStatusLine(ctx, cmd, colorize))

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the storage reachability check")
	return cmd
}

func sessionsStatusLine(ctx *commandContext, cmd *cobra.Command, colorize bool) string {
	store, err := openSessionStore(ctx)
	if err != nil {
		return renderStatusLine("Resumable", statusWarn, err.Error(), colorize)
	}
	defer store.Close()
	records, err := store.List(cmd.Context())
	if err != nil {
		return renderStatusLine("Resumable", statusWarn, err.Error(), colorize)
	}
	if len(records) == 0 {
		return renderStatusLine("Resumable", statusOK, "none pending", colorize)
	}
	return renderStatusLine("Resumable", statusWarn, fmt.Sprintf("%d unfinished (see `callingest sessions list`)", len(records)), colorize)
}

func endpointKind(endpoint string) statusKind {
	if strings.TrimSpace(endpoint) == "" {
		return statusError
	}
	return statusInfo
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
