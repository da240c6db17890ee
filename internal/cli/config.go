package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lttd/internal/config"
)

func newConfigCommand(opts *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect lttd configuration",
		Long: `Configuration sources (in priority order):
  1. Command line flags
  2. Environment variables (LTTD_*)
  3. Configuration file (--config)
  4. Defaults`,
		Example: `  # Show the effective configuration
  lttd config show

  # Check a configuration file
  lttd config validate --config /etc/lttd.yaml`,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.decode(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.decode(cmd)
			if err != nil {
				return err
			}

			err = cfg.Validate()
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				for _, suggestion := range verrs.GetFixSuggestions() {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", suggestion)
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	return configCmd
}

// decode loads the configuration without validating it
func (o *options) decode(cmd *cobra.Command) (*config.Config, error) {
	v, err := o.viper(cmd)
	if err != nil {
		return nil, err
	}
	return config.Decode(v)
}
