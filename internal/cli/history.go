package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [Type[/id]]",
		Short: "Print version history as a history Bundle",
		Long: `Print every version newest first: of one resource (Type/id), of every
resource of a type (Type), or of the whole store (no argument).

Example:
  fhirkit history Patient/p1
  fhirkit history Observation
  fhirkit history`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				return runHistory(ctx, e, target)
			})
		},
	}
}

func runHistory(ctx context.Context, e *env, target string) error {
	var (
		b   *fhir.Bundle
		err error
	)
	switch {
	case target == "":
		b, err = e.ops.SystemHistory(ctx)
	case strings.Contains(target, "/"):
		id, perr := parseIdentityArg(target)
		if perr != nil {
			return perr
		}
		b, err = e.ops.History(ctx, id.Type, id.ID)
	default:
		if !fhir.ValidResourceType(target) {
			return NewExitError(ExitCommandError, "invalid resource type "+target)
		}
		b, err = e.ops.TypeHistory(ctx, target)
	}
	if err != nil {
		return e.out.Fail("history failed", err)
	}
	return e.out.Resource(b.ToIR())
}
