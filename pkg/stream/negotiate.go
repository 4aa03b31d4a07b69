package stream

import (
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/device"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Negotiator discovers the native stream format of a device.
type Negotiator struct {
	dir *device.Directory
	log logger.Logger
}

// NewNegotiator returns a Negotiator querying through dir.
func NewNegotiator(dir *device.Directory, log logger.Logger) *Negotiator {
	return &Negotiator{dir: dir, log: logger.OrNop(log).Module("negotiate")}
}

// DeviceFormat returns the native format of the first stream of uid in the
// requested direction. When the per-stream query fails it falls back to the
// legacy whole-device query, and when that fails too it returns
// pcm.DefaultFormat. Only a failure to resolve uid is returned as an error.
func (n *Negotiator) DeviceFormat(uid string, isOutput bool) (pcm.Format, error) {
	scope := hal.ScopeInput
	if isOutput {
		scope = hal.ScopeOutput
	}

	id, err := n.dir.Resolve(uid, scope)
	if err != nil {
		return pcm.Format{}, err
	}
	reg := n.dir.Registry()
	log := n.log.With(logger.String("device_uid", uid), logger.String("scope", scope.String()))

	f, err := streamFormat(reg, id, scope)
	if err == nil {
		return f, nil
	}
	log.Debug("stream format query failed, trying device format", logger.Error(err))

	f, err = reg.DeviceStreamFormat(id, scope)
	if err == nil {
		if err = f.Validate(); err == nil {
			return f, nil
		}
	}
	log.Warn("device format query failed, using default format",
		logger.Error(err),
		logger.String("format", pcm.DefaultFormat().String()))

	return pcm.DefaultFormat(), nil
}

func streamFormat(reg hal.Registry, id hal.DeviceID, scope hal.Scope) (pcm.Format, error) {
	streams, err := reg.Streams(id, scope)
	if err != nil {
		return pcm.Format{}, err
	}
	if len(streams) == 0 {
		return pcm.Format{}, hal.NewStatusError("streams", hal.StatusBadStream, nil)
	}
	f, err := reg.StreamVirtualFormat(streams[0])
	if err != nil {
		return pcm.Format{}, err
	}
	if err := f.Validate(); err != nil {
		return pcm.Format{}, err
	}
	return f, nil
}
