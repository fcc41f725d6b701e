package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callingest/internal/sessionstore"
)

const fingerprintDisplayLen = 19

func openSessionStore(ctx *commandContext) (*sessionstore.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := sessionstore.Open(cfg.SessionDBPath(), cfg.LockDir())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect resumable upload sessions recorded on this machine",
	}
	cmd.AddCommand(newSessionsListCommand(ctx))
	cmd.AddCommand(newSessionsForgetCommand(ctx))
	cmd.AddCommand(newSessionsPruneCommand(ctx))
	return cmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List unfinished uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No resumable sessions")
				return nil
			}
			fmt.Fprintln(out, renderTable(sessionColumns(), sessionRows(records, time.Now())))
			return nil
		},
	}
}

func sessionColumns() []tableColumn {
	return []tableColumn{
		{Header: "Fingerprint"},
		{Header: "Object", MaxWidth: 48},
		{Header: "Uploaded", Align: alignRight},
		{Header: "Updated"},
	}
}

func sessionRows(records []sessionstore.Record, now time.Time) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		pct := 100.0
		if rec.Size > 0 {
			pct = float64(rec.Offset) / float64(rec.Size) * 100
		}
		rows = append(rows, []string{
			shortFingerprint(rec.Fingerprint),
			rec.Bucket + "/" + rec.Object,
			fmt.Sprintf("%s / %s (%.0f%%)", humanize.Bytes(uint64(rec.Offset)), humanize.Bytes(uint64(rec.Size)), pct),
			humanize.RelTime(rec.UpdatedAt, now, "ago", "from now"),
		})
	}
	return rows
}

func shortFingerprint(fp string) string {
	if len(fp) <= fingerprintDisplayLen {
		return fp
	}
	return fp[:fingerprintDisplayLen]
}

func newSessionsForgetCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "forget [fingerprint]",
		Short: "Drop the local record of an upload so the next attempt starts over",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("specify a fingerprint prefix or --all")
			}
			store, err := openSessionStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			var targets []sessionstore.Record
			if all {
				targets = records
			} else {
				targets, err = matchFingerprint(records, args[0])
				if err != nil {
					return err
				}
			}
			for _, rec := range targets {
				if err := store.DeleteSession(cmd.Context(), rec.Fingerprint); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %d session(s)\n", len(targets))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Forget every session")
	return cmd
}

func matchFingerprint(records []sessionstore.Record, prefix string) ([]sessionstore.Record, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("fingerprint prefix is empty")
	}
	var matches []sessionstore.Record
	for _, rec := range records {
		if strings.HasPrefix(rec.Fingerprint, prefix) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no session matches %q", prefix)
	case 1:
		return matches, nil
	default:
		return nil, fmt.Errorf("%q matches %d sessions; use a longer prefix", prefix, len(matches))
	}
}

func newSessionsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Forget sessions that have not progressed recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := openSessionStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d session(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Age of the last update beyond which sessions are dropped")
	return cmd
}
