package cli

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
)

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <Type> [query]",
		Short: "Search resources and print a searchset Bundle",
		Long: `Search one resource type. The query is a URL query string using the
search parameters of the catalog plus _sort, _count, _offset, _elements,
_summary, _total, _include and _revinclude.

Example:
  fhirkit search Patient 'gender=female&_sort=-birthdate'
  fhirkit search Observation 'subject=Patient/p1&_include=Observation:subject'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseQueryArg(args)
			if err != nil {
				return err
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				b, err := e.ops.Search(ctx, args[0], params)
				if err != nil {
					return e.out.Fail("search failed", err)
				}
				return e.out.Resource(b.ToIR())
			})
		},
	}
}

// NewEverythingCommand creates the everything command.
func NewEverythingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "everything <Type/id> [query]",
		Short: "Print the compartment of a resource ($everything)",
		Long: `Print the root resource followed by every resource in its compartment.
Accepted query parameters: _type, _count, _offset, _elements, _summary.

Example:
  fhirkit everything Patient/p1
  fhirkit everything Patient/p1 '_type=Observation,Encounter&_count=50'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentityArg(args[0])
			if err != nil {
				return err
			}
			params, err := parseQueryArg(args)
			if err != nil {
				return err
			}
			return withEnv(rootOpts, cmd, func(ctx context.Context, e *env) error {
				return runEverything(ctx, e, id, params)
			})
		},
	}
}

func runEverything(ctx context.Context, e *env, id fhir.Identity, params url.Values) error {
	b, err := e.ops.Everything(ctx, id.Type, id.ID, params)
	if err != nil {
		return e.out.Fail("everything failed", err)
	}
	return e.out.Resource(b.ToIR())
}

// parseQueryArg parses the optional second argument as a query string.
func parseQueryArg(args []string) (url.Values, error) {
	if len(args) < 2 {
		return url.Values{}, nil
	}
	params, err := url.ParseQuery(args[1])
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid query", err)
	}
	return params, nil
}
