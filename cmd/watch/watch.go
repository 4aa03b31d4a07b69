// Package watch implements the watch command.
package watch

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/cmd/devices"
	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/pkg/device"
)

// Command creates the watch command.
func Command(env *app.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report device arrivals and removals until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := env.Directory.List()
			if err != nil {
				return err
			}
			env.Metrics.Device.SetDevices(infos)
			out := cmd.OutOrStdout()
			if err := devices.PrintTable(out, infos); err != nil {
				return err
			}

			return env.Directory.Watch(cmd.Context(), func(c device.Change) {
				env.Metrics.Device.RecordChange(c)
				if current, err := env.Directory.List(); err == nil {
					env.Metrics.Device.SetDevices(current)
				}
				PrintChange(out, c)
			})
		},
	}
}

// PrintChange writes one line per added or removed device.
func PrintChange(w io.Writer, c device.Change) {
	for _, i := range c.Added {
		fmt.Fprintf(w, "+ %s (%s) in=%d out=%d\n", i.UID, i.Name, i.InputChannels, i.OutputChannels)
	}
	for _, i := range c.Removed {
		fmt.Fprintf(w, "- %s (%s)\n", i.UID, i.Name)
	}
}
