package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birdnotifier/internal/conf"
)

// Command returns the cobra command printing the effective configuration
func Command(settings *conf.Settings) *cobra.Command {
	var (
		defaults bool
		write    string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			switch {
			case write != "":
				if err := conf.WriteDefaultConfig(write); err != nil {
					return err
				}
				fmt.Fprintf(out, "Default configuration written to %s\n", write)
				return nil

			case defaults:
				data, err := conf.DefaultConfig()
				if err != nil {
					return err
				}
				fmt.Fprint(out, data)
				return nil
			}

			data, err := yaml.Marshal(settings.Redacted())
			if err != nil {
				return fmt.Errorf("failed to encode settings: %w", err)
			}
			if settings.ConfigFile != "" {
				fmt.Fprintf(out, "# %s\n", settings.ConfigFile)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "default", false, "Print the built-in default configuration")
	cmd.Flags().StringVar(&write, "write", "", "Write the default configuration to this path")

	return cmd
}
