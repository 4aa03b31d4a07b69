// Package info implements the info command.
package info

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/internal/logger"
)

// Report is the system summary printed by the info command.
type Report struct {
	Version     string
	Backend     string
	Devices     int
	OS          string
	Platform    string
	Kernel      string
	Arch        string
	CPUs        int
	MemoryTotal uint64
	MemoryUsed  float64
	GoVersion   string
}

// Command creates the info command.
func Command(env *app.Env, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print system and backend information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := Collect(env, version)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "audiohal %s (%s)\n", r.Version, r.GoVersion)
			fmt.Fprintf(out, "backend:  %s, %d devices\n", r.Backend, r.Devices)
			fmt.Fprintf(out, "system:   %s %s, kernel %s, %s\n", r.OS, r.Platform, r.Kernel, r.Arch)
			fmt.Fprintf(out, "cpus:     %d\n", r.CPUs)
			fmt.Fprintf(out, "memory:   %d MiB, %.1f%% used\n", r.MemoryTotal>>20, r.MemoryUsed)
			return nil
		},
	}
}

// Collect gathers the report. Host queries that fail leave their fields
// empty.
func Collect(env *app.Env, version string) Report {
	r := Report{
		Version:   version,
		Backend:   env.Settings.Backend,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
	if uids, err := env.Directory.UIDs(); err == nil {
		r.Devices = len(uids)
	}

	if h, err := host.Info(); err == nil {
		r.Platform = h.Platform + " " + h.PlatformVersion
		r.Kernel = h.KernelVersion
	} else {
		env.Log.Debug("host info unavailable", logger.Error(err))
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		r.CPUs = n
	}
	if m, err := mem.VirtualMemory(); err == nil {
		r.MemoryTotal = m.Total
		r.MemoryUsed = m.UsedPercent
	} else {
		env.Log.Debug("memory info unavailable", logger.Error(err))
	}
	return r
}
