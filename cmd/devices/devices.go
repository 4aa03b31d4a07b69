// Package devices implements the devices command.
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/pkg/device"
)

// Command creates the devices command.
func Command(env *app.Env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "List every present audio device with its channels, sample rates and transport.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := env.Directory.List()
			if err != nil {
				return err
			}
			env.Metrics.Device.SetDevices(infos)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return PrintTable(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// PrintTable writes infos as an aligned table.
func PrintTable(w io.Writer, infos []device.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tNAME\tIN\tOUT\tRATE\tRANGE\tTRANSPORT\tDEFAULT")
	for _, i := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			i.UID, i.Name, i.InputChannels, i.OutputChannels,
			rate(i.NominalRate), rateRange(i), i.Transport, defaults(i))
	}
	return tw.Flush()
}

func rate(hz float64) string {
	if hz <= 0 {
		return "-"
	}
	return strconv.FormatFloat(hz, 'f', -1, 64)
}

func rateRange(i device.Info) string {
	if i.MinRate <= 0 && i.MaxRate <= 0 {
		return "-"
	}
	if i.MinRate == i.MaxRate {
		return rate(i.MinRate)
	}
	return rate(i.MinRate) + "-" + rate(i.MaxRate)
}

func defaults(i device.Info) string {
	switch {
	case i.DefaultInput && i.DefaultOutput:
		return "in,out"
	case i.DefaultInput:
		return "in"
	case i.DefaultOutput:
		return "out"
	}
	return ""
}
