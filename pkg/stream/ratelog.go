package stream

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/audiohal/internal/logger"
)

// rtLogger throttles log output from the hardware thread. Suppressed
// messages are counted and reported with the next message that passes.
type rtLogger struct {
	log        logger.Logger
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

func newRTLogger(log logger.Logger, every time.Duration, burst int) *rtLogger {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	return &rtLogger{log: log, limiter: rate.NewLimiter(limit, max(burst, 1))}
}

func (r *rtLogger) Warn(msg string, fields ...logger.Field) {
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	if n := r.suppressed.Swap(0); n > 0 {
		fields = append(fields, logger.Uint64("suppressed", n))
	}
	r.log.Warn(msg, fields...)
}
