package broker

import (
	"context"
	"net"

	"goa.design/amby/connreg"
	"goa.design/amby/wire"
)

// serveApps accepts app connections on ln and spawns one worker per
// connection until ln is closed.
func (b *Broker) serveApps(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			b.logger.Warn(context.Background(), "app listener stopped accepting", "err", err.Error())
			return
		}
		go b.handleAppConn(wire.NewConn(conn))
	}
}

// handleAppConn implements spec.md section 4.4: parse metadata under retry,
// register, ack, and fan out to event subscribers. The worker performs no
// further reads from this socket; later reads for relay traffic happen on a
// cloned handle held by a protocol worker.
func (b *Broker) handleAppConn(conn wire.Conn) {
	ctx := context.Background()

	meta, ok := connreg.Retry(b.retryLimit, func() (wire.AppMetadata, bool) {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return wire.AppMetadata{}, false
		}
		m, err := wire.DecodeAppMetadata(frame)
		if err != nil {
			return wire.AppMetadata{}, false
		}
		return m, true
	})
	if !ok {
		b.logger.Warn(ctx, "app metadata read/parse exhausted retries, closing connection")
		b.metrics.IncCounter("amby.app.register.failed", 1)
		_ = conn.Close()
		return
	}

	b.apps.Set(ctx, meta.Name.String(), conn.Clone())
	b.metrics.IncCounter("amby.app.registered", 1)
	b.logger.Info(ctx, "app registered", "name", meta.Name.String())

	ack, err := wire.EncodeResponse(wire.EmptySuccess())
	if err != nil {
		b.logger.Error(ctx, "failed to encode registration ack", "err", err.Error())
		return
	}
	if err := wire.WriteFrame(conn, ack); err != nil {
		b.logger.Warn(ctx, "app disconnected before ack could be written", "name", meta.Name.String())
		return
	}

	payload, err := wire.EncodeAppMetadata(meta)
	if err != nil {
		b.logger.Error(ctx, "failed to encode app metadata for fan-out", "err", err.Error())
		return
	}
	snapshot := b.events.Snapshot(ctx)
	if err := connreg.FanOut(ctx, snapshot, payload, b.logger, b.metrics); err != nil {
		b.logger.Warn(ctx, "event fan-out encountered a write failure", "err", err.Error())
	}
}
