// Package record implements the record command.
package record

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/internal/audiofile"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/internal/probe"
	"github.com/tphakala/audiohal/pkg/bridge"
	"github.com/tphakala/audiohal/pkg/pcm"
	"github.com/tphakala/audiohal/pkg/stream"
)

// maxProbeSeconds bounds the audio kept in memory for --probe.
const maxProbeSeconds = 30

// Options configure one recording.
type Options struct {
	Duration time.Duration
	Rate     float64
	Channels uint32
	Probe    bool
}

// Command creates the record command.
func Command(env *app.Env) *cobra.Command {
	var (
		uid  string
		opts Options
	)
	cmd := &cobra.Command{
		Use:   "record <file.wav>",
		Short: "Record 16-bit WAV from an input device",
		Long:  "Record from an input device into a 16-bit WAV file. With --probe the level and dominant frequency are printed afterwards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := env.DeviceUID(uid, false)
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return errors.New(err).
					Component("record").
					Category(errors.CategoryFileIO).
					Context("path", args[0]).
					Build()
			}
			defer f.Close()

			r, err := Record(cmd.Context(), env, in, f, opts)
			if err != nil {
				return err
			}
			if opts.Probe {
				fmt.Fprintf(cmd.OutOrStdout(), "frames %d, peak %.1f dBFS, rms %.1f dBFS, dominant %.1f Hz, clipped %d\n",
					r.Frames, r.PeakDBFS, r.RMSDBFS, r.DominantHz, r.Clipped)
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&uid, "device", "", "Input device UID (default: system default input)")
	cmd.Flags().DurationVarP(&opts.Duration, "duration", "t", 5*time.Second, "How long to record")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "Sample rate of the file (default from config)")
	cmd.Flags().Uint32Var(&opts.Channels, "channels", 0, "Channels of the file (default from config)")
	cmd.Flags().BoolVar(&opts.Probe, "probe", false, "Analyze the recording")
	return cmd
}

// Record captures from uid into w for opts.Duration or until ctx is done.
// The probe result is empty unless opts.Probe is set.
func Record(ctx context.Context, env *app.Env, uid string, w io.WriteSeeker, opts Options) (probe.Result, error) {
	base := env.AppFormat(opts.Rate, opts.Channels)
	f := pcm.Build(base.SampleRate, base.ChannelsPerFrame, 16, 16, false, false, false)
	enc := audiofile.NewWAVWriter(w, int(f.SampleRate), int(f.ChannelsPerFrame))

	// One second of slack between the callback and the encoder.
	capture := bridge.NewCapture(int(f.ByteRate()))
	s, err := env.Controller.Start(uid, capture.Push, f, stream.Input)
	if err != nil {
		return probe.Result{}, err
	}
	log := env.Log.With(logger.String("device_uid", uid), logger.String("format", f.String()))
	log.Info("recording started", logger.Duration("duration", opts.Duration), logger.Float64("ratio", s.Ratio()))

	var kept bytes.Buffer
	limit := int(f.ByteRate()) * maxProbeSeconds

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, 4096*int(f.BytesPerFrame))
		for {
			n, err := capture.Read(buf)
			if n > 0 {
				if _, werr := enc.Write(buf[:n]); werr != nil {
					return werr
				}
				if opts.Probe && kept.Len() < limit {
					kept.Write(buf[:min(n, limit-kept.Len())])
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		defer capture.Close()
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-gctx.Done():
		}
		return s.Stop()
	})

	err = g.Wait()
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	log.Info("recording finished", logger.Uint64("dropped_bytes", capture.Dropped()))
	if err != nil {
		return probe.Result{}, err
	}
	if !opts.Probe {
		return probe.Result{}, nil
	}
	return probe.AnalyzePCM(kept.Bytes(), f)
}
