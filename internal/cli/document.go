package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/config"
)

// NewDocumentCommand creates the document command.
func NewDocumentCommand(rootOpts *RootOptions) *cobra.Command {
	var persist bool

	cmd := &cobra.Command{
		Use:   "document <Type/id>",
		Short: "Assemble a document Bundle ($document)",
		Long: `Assemble a document Bundle: the root resource first, then every resource
reachable through its document references, breadth first, up to 10 hops.

With --persist (or document.persist = true) the Bundle is also stored.

Example:
  fhirkit document Composition/c1 --persist`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentityArg(args[0])
			if err != nil {
				return err
			}
			var adjust func(*config.Config)
			if cmd.Flags().Changed("persist") {
				adjust = func(c *config.Config) { c.Document.Persist = persist }
			}
			return withAdjustedEnv(rootOpts, cmd, adjust, func(ctx context.Context, e *env) error {
				b, err := e.ops.Document(ctx, id.Type, id.ID)
				if err != nil {
					return e.out.Fail("document failed", err)
				}
				return e.out.Resource(b.ToIR())
			})
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "store the assembled Bundle")

	return cmd
}
