// Package tone implements the tone command.
package tone

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/internal/probe"
	"github.com/tphakala/audiohal/pkg/bridge"
	"github.com/tphakala/audiohal/pkg/pcm"
	"github.com/tphakala/audiohal/pkg/stream"
)

// Options configures a tone run.
type Options struct {
	Frequency float64
	Amplitude float64
	Duration  time.Duration
	// Rate is the tone sample rate; zero uses the configured stream rate.
	Rate     float64
	Channels uint32
	// Verify is the input UID captured while the tone plays, or "" for none.
	Verify string
}

// Command creates the tone command.
func Command(env *app.Env) *cobra.Command {
	var (
		uid  string
		opts Options
	)
	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine test tone",
		Long: "Play a sine tone on an output device. With --verify the tone is captured " +
			"from the given input device and its dominant frequency is checked.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := env.DeviceUID(uid, true)
			if err != nil {
				return err
			}
			if opts.Verify != "" {
				if opts.Verify, err = env.DeviceUID(opts.Verify, false); err != nil {
					return err
				}
			}

			r, err := Tone(cmd.Context(), env, out, opts)
			if err != nil || opts.Verify == "" {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %d frames, peak %.1f dBFS, dominant %.1f Hz\n",
				r.Frames, r.PeakDBFS, r.DominantHz)
			return check(env, r, opts)
		},
	}
	cmd.Flags().StringVar(&uid, "device", "", "Output device UID (default: system default output)")
	cmd.Flags().Float64VarP(&opts.Frequency, "frequency", "f", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&opts.Amplitude, "amplitude", 0.5, "Peak amplitude in [0, 1]")
	cmd.Flags().DurationVarP(&opts.Duration, "duration", "t", 2*time.Second, "How long to play")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "Sample rate of the generated tone (default from config)")
	cmd.Flags().Uint32Var(&opts.Channels, "channels", 2, "Channels of the generated tone")
	cmd.Flags().StringVar(&opts.Verify, "verify", "", "Capture from this input UID and check the tone")
	return cmd
}

// Tone plays a float32 sine on the output device uid for opts.Duration or
// until ctx is done. With opts.Verify set the input is captured as mono
// float32 for the same time and its analysis is returned. Teardown errors of
// both streams are reported.
func Tone(ctx context.Context, env *app.Env, uid string, opts Options) (probe.Result, error) {
	rate := opts.Rate
	if rate <= 0 {
		rate = env.Settings.Stream.SampleRate
	}
	f := pcm.Build(rate, opts.Channels, 32, 32, true, false, false)
	sine := probe.NewSine(opts.Frequency, rate, int(opts.Channels))
	sine.Amplitude = opts.Amplitude

	var (
		capture       *bridge.Capture
		captureStream *stream.Stream
		captureFormat pcm.Format
	)
	if opts.Verify != "" {
		captureFormat = pcm.Build(rate, 1, 32, 32, true, false, false)
		capture = bridge.NewCapture(int(captureFormat.ByteRate() * (opts.Duration.Seconds() + 1)))
		var err error
		captureStream, err = env.Controller.Start(opts.Verify, capture.Push, captureFormat, stream.Input)
		if err != nil {
			return probe.Result{}, err
		}
	}

	s, err := env.Controller.Start(uid, sine.Fill, f, stream.Output)
	if err != nil {
		if captureStream != nil {
			err = errors.Join(err, stopStream(env, captureStream))
		}
		return probe.Result{}, err
	}
	env.Log.Info("playing tone",
		logger.String("device_uid", uid),
		logger.Float64("frequency", opts.Frequency),
		logger.Duration("duration", opts.Duration),
		logger.Float64("ratio", s.Ratio()))

	wait, cancel := context.WithTimeout(ctx, opts.Duration)
	<-wait.Done()
	cancel()

	err = stopStream(env, s)
	if captureStream == nil {
		return probe.Result{}, err
	}
	if cerr := stopStream(env, captureStream); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return probe.Result{}, err
	}

	_ = capture.Close()
	data := make([]byte, capture.Buffered())
	n, _ := capture.Read(data)
	return probe.AnalyzePCM(data[:n], captureFormat)
}

func stopStream(env *app.Env, s *stream.Stream) error {
	err := s.Stop()
	if err != nil {
		env.Log.Warn("tone stream stop failed",
			logger.String("device_uid", s.UID()),
			logger.String("direction", s.Direction().String()),
			logger.Error(err))
	}
	return err
}

// check compares the dominant frequency of r with the requested tone.
func check(env *app.Env, r probe.Result, opts Options) error {
	rate := opts.Rate
	if rate <= 0 {
		rate = env.Settings.Stream.SampleRate
	}
	// Within two FFT bins of the expected frequency.
	tolerance := 2 * rate / float64(max(r.Frames, 1))
	if r.PeakDBFS <= probe.Silence || math.Abs(r.DominantHz-opts.Frequency) > max(tolerance, 1) {
		env.Log.Warn("loopback check failed",
			logger.Float64("expected_hz", opts.Frequency),
			logger.Float64("measured_hz", r.DominantHz))
		return fmt.Errorf("expected a %.1f Hz tone, measured %.1f Hz", opts.Frequency, r.DominantHz)
	}
	return nil
}
