// Package play implements the play command.
package play

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/internal/audiofile"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/bridge"
	"github.com/tphakala/audiohal/pkg/stream"
)

// Command creates the play command.
func Command(env *app.Env) *cobra.Command {
	var (
		uid    string
		buffer time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a WAV, MP3 or Ogg Vorbis file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := env.DeviceUID(uid, true)
			if err != nil {
				return err
			}
			src, err := audiofile.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			return Play(cmd.Context(), env, out, src, buffer)
		},
	}
	cmd.Flags().StringVar(&uid, "device", "", "Output device UID (default: system default output)")
	cmd.Flags().DurationVar(&buffer, "buffer", 500*time.Millisecond, "Playback buffer length")
	return cmd
}

// Play streams src to the output device uid and returns once every decoded
// byte was played or ctx is done.
func Play(ctx context.Context, env *app.Env, uid string, src audiofile.Source, buffer time.Duration) error {
	f := src.Format()
	capacity := max(int(f.ByteRate()*buffer.Seconds()), 4*int(f.BytesPerFrame))
	capacity -= capacity % int(f.BytesPerFrame)
	playback := bridge.NewPlayback(capacity)

	s, err := env.Controller.Start(uid, playback.Fill, f, stream.Output)
	if err != nil {
		return err
	}
	log := env.Log.With(logger.String("device_uid", uid), logger.String("format", f.String()))
	log.Info("playback started", logger.Float64("ratio", s.Ratio()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer playback.Close()
		buf := make([]byte, capacity/2-(capacity/2)%int(f.BytesPerFrame))
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := playback.WriteContext(gctx, buf[:n]); werr != nil {
					return werr
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
		select {
		case <-playback.Drained():
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	err = g.Wait()
	log.Info("playback finished", logger.Uint64("underruns", playback.Underruns()))
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	if serr := s.Stop(); serr != nil {
		log.Warn("playback stream stop failed", logger.Error(serr))
		if err == nil {
			err = serr
		}
	}
	return err
}
