package broker

import (
	"context"
	"net"

	"goa.design/amby/wire"
)

// serveEvents implements spec.md section 4.5: a single dedicated accept
// loop, no per-connection worker. Every successful accept is registered
// synchronously under a monotonically increasing counter key.
func (b *Broker) serveEvents(ln net.Listener) {
	ctx := context.Background()
	for {
		conn, err := ln.Accept()
		if err != nil {
			b.logger.Warn(ctx, "event listener stopped accepting", "err", err.Error())
			return
		}
		key := b.events.NextEventKey(ctx)
		b.events.Set(ctx, key, wire.NewConn(conn))
		b.metrics.IncCounter("amby.event.subscriber.registered", 1)
		b.logger.Debug(ctx, "event subscriber registered", "key", key)
	}
}
