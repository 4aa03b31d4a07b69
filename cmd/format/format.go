// Package format implements the format command.
package format

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Command creates the format command.
func Command(env *app.Env) *cobra.Command {
	var (
		input    bool
		rate     float64
		channels uint32
	)
	cmd := &cobra.Command{
		Use:   "format [uid]",
		Short: "Show the negotiated device format",
		Long: "Show the native format of a device stream and the conversion ratio for the " +
			"configured application format. Without a UID the default device is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var uid string
			if len(args) > 0 {
				uid = args[0]
			}
			uid, err := env.DeviceUID(uid, !input)
			if err != nil {
				return err
			}

			dev, err := env.Controller.Negotiator().DeviceFormat(uid, !input)
			if err != nil {
				return err
			}
			appFormat := env.AppFormat(rate, channels)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device:      %s\n", uid)
			fmt.Fprintf(out, "native:      %s\n", dev)
			fmt.Fprintf(out, "application: %s\n", appFormat)
			ratio, err := pcm.Ratio(appFormat, dev)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ratio:       %.6f\n", ratio)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&input, "input", "i", false, "Query the input side instead of the output side")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Application sample rate (default from config)")
	cmd.Flags().Uint32Var(&channels, "channels", 0, "Application channel count (default from config)")
	return cmd
}
