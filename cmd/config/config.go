// Package config implements the config command.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiohal/internal/conf"
)

// SkipInit is the annotation key of commands that run without the audio
// runtime.
const SkipInit = "audiohal/skip-init"

// Command creates the config command and its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Create or inspect the configuration file",
		Annotations: map[string]string{SkipInit: ""},
	}
	cmd.AddCommand(initCommand(), showCommand())
	return cmd
}

func initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			} else {
				var err error
				if path, err = conf.DefaultConfigFile(); err != nil {
					return err
				}
			}
			if err := conf.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			settings, err := conf.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("error marshaling settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
