package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// LoadResult describes one write performed by load.
type LoadResult struct {
	File     string `json:"file"`
	Entry    int    `json:"entry,omitempty"`
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
}

func (r LoadResult) String() string {
	if r.Location == "" {
		return fmt.Sprintf("%s: %s", r.File, r.Status)
	}
	return fmt.Sprintf("%s: %s %s", r.File, r.Status, r.Location)
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.json>...",
		Short: "Write resources or run batch/transaction Bundles",
		Long: `Load JSON resources into the store.

A resource with an id is written with update (created at version 1 when
absent); one without an id is created with a server-assigned id. A Bundle
of type batch or transaction is executed and its response statuses are
printed, one line per entry.

Example:
  fhirkit load --db ./fhirkit.db patient.json observations-bundle.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				return runLoad(ctx, e, args)
			})
		},
	}
}

func runLoad(ctx context.Context, e *env, files []string) error {
	var results []LoadResult
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read file", err)
		}
		body, err := ir.UnmarshalObject(data)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to parse %s", file), err)
		}

		res, err := loadOne(ctx, e, file, body)
		if err != nil {
			return e.out.Fail(fmt.Sprintf("failed to load %s", file), err)
		}
		results = append(results, res...)
	}

	if e.out.Format == "json" {
		return e.out.Success(results)
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = r.String()
	}
	return e.out.Success(strings.Join(lines, "\n"))
}

func loadOne(ctx context.Context, e *env, file string, body ir.IRObject) ([]LoadResult, error) {
	resourceType := body.String("resourceType")
	if resourceType == "Bundle" {
		switch fhir.BundleType(body.String("type")) {
		case fhir.BundleBatch, fhir.BundleTransaction:
			resp, err := e.ops.Transact(ctx, body)
			if err != nil {
				return nil, err
			}
			out := make([]LoadResult, len(resp.Entries))
			for i, entry := range resp.Entries {
				out[i] = LoadResult{File: file, Entry: i, Status: entry.Response.Status, Location: entry.Response.Location}
			}
			e.logger.Info("bundle loaded", "file", file, "type", body.String("type"), "entries", len(out))
			return out, nil
		}
	}

	var version int
	var id fhir.Identity
	if rid := body.String("id"); rid != "" {
		rec, err := e.ops.Update(ctx, resourceType, rid, body, 0)
		if err != nil {
			return nil, err
		}
		id, version = rec.Identity, rec.Version
	} else {
		rec, err := e.ops.Create(ctx, resourceType, body)
		if err != nil {
			return nil, err
		}
		id, version = rec.Identity, rec.Version
	}
	e.logger.Info("resource loaded", "type", id.Type, "id", id.ID, "version", version)
	return []LoadResult{{File: file, Status: "ok", Location: fhir.Location(id, version)}}, nil
}
