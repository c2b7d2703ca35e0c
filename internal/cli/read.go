package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	Version int
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <Type/id>",
		Short: "Print the current or a historical version of a resource",
		Long: `Print a resource body.

Without --version the current version is read; deleted resources are not
found. With --version any historical version is read, including the
tombstone of a delete.

Example:
  fhirkit read Patient/p1
  fhirkit read Patient/p1 --version 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentityArg(args[0])
			if err != nil {
				return err
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				return runRead(ctx, e, id, opts.Version)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Version, "version", 0, "historical version to read")

	return cmd
}

func runRead(ctx context.Context, e *env, id fhir.Identity, version int) error {
	if version <= 0 {
		rec, err := e.ops.Read(ctx, id.Type, id.ID)
		if err != nil {
			return e.out.Fail("read failed", err)
		}
		return e.out.Resource(rec.Body)
	}

	rec, err := e.ops.ReadVersion(ctx, id.Type, id.ID, version)
	if err != nil {
		return e.out.Fail("read failed", err)
	}
	if rec.Deleted {
		return e.out.Success(fmt.Sprintf("%s deleted", fhir.Location(rec.Identity, rec.Version)))
	}
	return e.out.Resource(rec.Body)
}

// parseIdentityArg parses a Type/id argument.
func parseIdentityArg(arg string) (fhir.Identity, error) {
	id, err := fhir.ParseIdentity(arg)
	if err != nil {
		return fhir.Identity{}, WrapExitError(ExitCommandError, "invalid resource reference", err)
	}
	return id, nil
}
