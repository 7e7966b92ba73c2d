package connreg

import (
	"context"

	"goa.design/amby/telemetry"
	"goa.design/amby/wire"
)

// FanOut writes payload, framed, to every connection in snapshot, in
// arbitrary order. Unlike a channel-backed broadcaster, each subscriber here
// is a raw TCP socket, so delivery is a blocking write rather than a
// buffered send; a slow or dead subscriber blocks FanOut until its write
// fails or completes. A write failure is logged and does not stop delivery
// to the remaining subscribers — partial delivery is expected and
// permitted — but FanOut returns the first error it encountered, if any.
// FanOut never removes a failing subscriber from the registry (see
// SPEC_FULL.md section 9 on stale entries).
func FanOut(ctx context.Context, snapshot map[string]wire.Conn, payload []byte, logger telemetry.Logger, metrics telemetry.Metrics) error {
	var first error
	for key, conn := range snapshot {
		if err := wire.WriteFrame(conn, payload); err != nil {
			logger.Warn(ctx, "event fan-out write failed", "subscriber", key, "err", err.Error())
			if first == nil {
				first = err
			}
			continue
		}
		metrics.IncCounter("amby.fanout.delivered", 1)
	}
	return first
}
