// Package volume implements the volume command.
package volume

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/internal/app"
)

// Command creates the volume command and its get and set subcommands.
func Command(env *app.Env) *cobra.Command {
	var (
		input bool
		uid   string
	)
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Read or change device volume",
	}
	cmd.PersistentFlags().BoolVarP(&input, "input", "i", false, "Use the input volume instead of the output volume")
	cmd.PersistentFlags().StringVar(&uid, "device", "", "Device UID (default: system default device)")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the volume in [0, 1]",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := env.DeviceUID(uid, !input)
			if err != nil {
				return err
			}
			var v float32
			if input {
				v, err = env.Directory.InputVolume(id)
			} else {
				v, err = env.Directory.OutputVolume(id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <level>",
		Short: "Set the volume; the level is clamped to [0, 1]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.ParseFloat(args[0], 32)
			if err != nil {
				return fmt.Errorf("invalid volume %q: %w", args[0], err)
			}
			id, err := env.DeviceUID(uid, !input)
			if err != nil {
				return err
			}
			if input {
				return env.Directory.SetInputVolume(id, float32(level))
			}
			return env.Directory.SetOutputVolume(id, float32(level))
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
