package preflight

import (
	"context"

	"callingest/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks an ingest needs before it starts. The storage
// reachability check only runs when an endpoint is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckCredential(ctx, cfg),
	}

	if cfg.Storage.Endpoint != "" {
		results = append(results, CheckStorage(ctx, cfg))
	} else {
		results = append(results, Result{Name: "Storage", Detail: "endpoint not configured"})
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
