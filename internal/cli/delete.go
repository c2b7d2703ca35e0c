package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
)

// DeleteResult is the output of delete.
type DeleteResult struct {
	Resource string `json:"resource"`
	Version  int    `json:"version"`
}

func (r DeleteResult) String() string {
	if r.Version == 0 {
		return fmt.Sprintf("%s: nothing to delete", r.Resource)
	}
	return fmt.Sprintf("%s: deleted at version %d", r.Resource, r.Version)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <Type/id>",
		Short: "Delete a resource, keeping its history",
		Long: `Append a tombstone for a resource. Its history stays readable.

With store.delete_policy = "idempotent" (the default) deleting an absent or
already deleted resource succeeds; with "strict" it fails with not-found.

Example:
  fhirkit delete Patient/p1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentityArg(args[0])
			if err != nil {
				return err
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				return runDelete(ctx, e, id)
			})
		},
	}
}

func runDelete(ctx context.Context, e *env, id fhir.Identity) error {
	version, err := e.ops.Delete(ctx, id.Type, id.ID)
	if err != nil {
		return e.out.Fail("delete failed", err)
	}
	return e.out.Success(DeleteResult{Resource: id.String(), Version: version})
}
