package cli

import (
	"bytes"
	"strings"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Long: `Print the configuration after defaults, the config file and flags are
applied. The output is a valid config file.

Example:
  fhirkit config > fhirkit.toml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts, nil)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			var buf bytes.Buffer
			if err := cfg.Write(&buf); err != nil {
				return WrapExitError(ExitFailure, "failed to render config", err)
			}
			return formatter(rootOpts, cmd).Success(strings.TrimRight(buf.String(), "\n"))
		},
	}
}
