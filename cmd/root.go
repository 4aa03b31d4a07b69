package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/cmd/config"
	"github.com/tphakala/audiohal/cmd/devices"
	"github.com/tphakala/audiohal/cmd/format"
	"github.com/tphakala/audiohal/cmd/info"
	"github.com/tphakala/audiohal/cmd/play"
	"github.com/tphakala/audiohal/cmd/record"
	"github.com/tphakala/audiohal/cmd/tone"
	"github.com/tphakala/audiohal/cmd/volume"
	"github.com/tphakala/audiohal/cmd/watch"
	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/internal/conf"
)

// Execute runs the CLI and releases the runtime once the command returns.
func Execute(ctx context.Context, version string) error {
	env := &app.Env{}
	defer env.Close()
	return RootCommand(env, version).ExecuteContext(ctx)
}

// RootCommand creates and returns the root command. env is initialized before
// any subcommand runs, except for commands annotated with config.SkipInit.
// The caller closes env.
func RootCommand(env *app.Env, version string) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "audiohal",
		Short:         "Audio device inspection and streaming",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, &configFile)

	subcommands := []*cobra.Command{
		devices.Command(env),
		format.Command(env),
		volume.Command(env),
		tone.Command(env),
		play.Command(env),
		record.Command(env),
		watch.Command(env),
		info.Command(env, version),
		config.Command(),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if skip(cmd) {
			return nil
		}
		settings, err := conf.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		return env.Init(settings, version)
	}

	return rootCmd
}

// skip reports whether cmd or one of its parents opted out of runtime setup.
func skip(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[config.SkipInit]; ok {
			return true
		}
	}
	return false
}

// setupFlags defines flags that are global to the command line interface.
// Flag names listed in conf.FlagKeys override the matching settings.
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(configFile, "config", "c", "", "Path to config file (default: search the config directories)")
	pf.BoolP("debug", "d", false, "Enable debug output")
	pf.String("backend", conf.DefaultBackend, fmt.Sprintf("Audio backend (%s, %s or %s)", conf.BackendMalgo, conf.BackendPortAudio, conf.BackendVirtual))
	pf.StringSlice("malgo-backends", nil, "Preferred miniaudio backends in order (alsa, pulseaudio, wasapi, coreaudio, ...)")
	pf.Bool("metrics", false, "Serve Prometheus metrics")
	pf.String("metrics-listen", conf.DefaultMetricsListen, "Listen address of the metrics endpoint")
	pf.Bool("telemetry", false, "Report errors to Sentry")
}
