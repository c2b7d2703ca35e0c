package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// DigestResult is the output of digest.
type DigestResult struct {
	Digest  string `json:"digest"`
	Entries int    `json:"entries"`
}

func (r DigestResult) String() string {
	return r.Digest
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Print the state digest of the store",
		Long: `Print a SHA-256 digest over the canonical JSON of every ledger entry
and the index. Two stores holding the same history have the same digest.

Example:
  fhirkit digest --db ./fhirkit.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				d, err := e.store.Digest(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "digest failed", err)
				}
				n, err := e.db.Count(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "digest failed", err)
				}
				return e.out.Success(DigestResult{Digest: d, Entries: n})
			})
		},
	}
}
