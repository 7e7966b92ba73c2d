package broker

import (
	"context"
	"fmt"
	"net"

	"goa.design/amby/connreg"
	"goa.design/amby/wire"
)

// serveProtocols accepts protocol-client connections on ln and spawns one
// worker per connection until ln is closed.
func (b *Broker) serveProtocols(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			b.logger.Warn(context.Background(), "protocol listener stopped accepting", "err", err.Error())
			return
		}
		go b.handleProtocolConn(wire.NewConn(conn))
	}
}

// handleProtocolConn implements spec.md section 4.6: a single-attempt
// registration phase followed by an unbounded relay loop.
func (b *Broker) handleProtocolConn(conn wire.Conn) {
	ctx := context.Background()

	name, ok := b.registerProtocol(ctx, conn)
	if !ok {
		_ = conn.Close()
		return
	}

	b.relayLoop(ctx, name, conn)
}

// registerProtocol runs Phase I: read one frame, parse as a UTF-8 name,
// reject duplicates, insert, and ack. There is no retry here — a single
// failure at any step ends the worker.
func (b *Broker) registerProtocol(ctx context.Context, conn wire.Conn) (string, bool) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		b.logger.Warn(ctx, "protocol registration read failed", "err", err.Error())
		return "", false
	}
	name, err := wire.DecodeName(frame)
	if err != nil {
		b.logger.Warn(ctx, "protocol registration name is not valid UTF-8", "err", err.Error())
		return "", false
	}

	if !b.protocols.SetIfAbsent(ctx, name, conn.Clone()) {
		b.logger.Warn(ctx, "protocol registration rejected: duplicate name", "name", name)
		b.metrics.IncCounter("amby.protocol.register.duplicate", 1)
		return "", false
	}

	ack, err := wire.EncodeResponse(wire.EmptySuccess())
	if err != nil {
		b.logger.Error(ctx, "failed to encode protocol registration ack", "err", err.Error())
		return "", false
	}
	if err := wire.WriteFrame(conn, ack); err != nil {
		b.logger.Warn(ctx, "protocol client disconnected before ack could be written", "name", name)
		return "", false
	}

	b.metrics.IncCounter("amby.protocol.registered", 1)
	b.logger.Info(ctx, "protocol registered", "name", name)
	return name, true
}

// relayLoop implements Phase II: an unbounded loop reading one request per
// iteration, forwarding it to the named app, awaiting the app's reply, and
// writing the reply back. Every step's failure mode matches spec.md
// section 4.6 exactly, including the two loop shapes it calls out: a
// request-read failure re-enters the loop (it never terminates the
// worker), while forward/await/return failures are each bounded by the
// retry policy and then dropped.
func (b *Broker) relayLoop(ctx context.Context, protocolName string, conn wire.Conn) {
	for {
		spanCtx, span := b.tracer.Start(ctx, "amby.relay.cycle")

		req, ok := b.receiveRequest(spanCtx, protocolName, conn)
		if !ok {
			span.End()
			continue
		}

		appConn, ok := b.forwardToApp(spanCtx, req)
		if !ok {
			b.metrics.IncCounter("amby.relay.dropped", 1)
			span.End()
			continue
		}

		resp, ok := b.awaitReply(spanCtx, appConn)
		if !ok {
			b.metrics.IncCounter("amby.relay.dropped", 1)
			span.End()
			continue
		}

		b.returnReply(spanCtx, conn, resp)
		b.metrics.IncCounter("amby.relay.completed", 1)
		span.End()
	}
}

// receiveRequest implements step 1: read and parse one request frame,
// re-checking that the embedded protocol name is still registered. A read,
// parse, or name-mismatch failure is logged and reported as "not ok" so the
// caller re-enters the loop without terminating the worker.
func (b *Broker) receiveRequest(ctx context.Context, protocolName string, conn wire.Conn) (wire.Request, bool) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		b.logger.Debug(ctx, "relay request read failed, retrying loop", "protocol", protocolName, "err", err.Error())
		return wire.Request{}, false
	}
	req, err := wire.DecodeRequest(frame)
	if err != nil {
		b.logger.Debug(ctx, "relay request parse failed, retrying loop", "protocol", protocolName, "err", err.Error())
		return wire.Request{}, false
	}
	if _, exists := b.protocols.Get(ctx, req.ProtocolName); !exists {
		b.logger.Debug(ctx, "relay request protocol_name not registered, skipping", "protocol_name", req.ProtocolName)
		return wire.Request{}, false
	}
	return req, true
}

// forwardToApp implements step 2: under the retry policy, look up and
// clone the target app's handle and write the request to it, re-looking up
// the registry on every attempt so a late app registration can still
// satisfy the request.
func (b *Broker) forwardToApp(ctx context.Context, req wire.Request) (wire.Conn, bool) {
	payload, err := wire.EncodeRequest(req)
	if err != nil {
		b.logger.Error(ctx, "failed to encode request for forwarding", "err", err.Error())
		return wire.Conn{}, false
	}

	return connreg.Retry(b.retryLimit, func() (wire.Conn, bool) {
		appConn, exists := b.apps.Get(ctx, req.AppName.String())
		if !exists {
			return wire.Conn{}, false
		}
		cloned := appConn.Clone()
		if err := wire.WriteFrame(cloned, payload); err != nil {
			return wire.Conn{}, false
		}
		return cloned, true
	})
}

// awaitReply implements step 3: under the retry policy, read one frame
// from the app's cloned handle and parse it as a Response.
func (b *Broker) awaitReply(ctx context.Context, appConn wire.Conn) (wire.Response, bool) {
	return connreg.Retry(b.retryLimit, func() (wire.Response, bool) {
		frame, err := wire.ReadFrame(appConn)
		if err != nil {
			return wire.Response{}, false
		}
		resp, err := wire.DecodeResponse(frame)
		if err != nil {
			return wire.Response{}, false
		}
		return resp, true
	})
}

// returnReply implements step 4: under the retry policy, write the
// response back to the protocol socket. A failure here is logged and
// dropped; there is no further retry beyond the bound.
func (b *Broker) returnReply(ctx context.Context, conn wire.Conn, resp wire.Response) {
	_, ok := connreg.Retry(b.retryLimit, func() (struct{}, bool) {
		payload, err := wire.EncodeResponse(resp)
		if err != nil {
			return struct{}{}, false
		}
		if err := wire.WriteFrame(conn, payload); err != nil {
			return struct{}{}, false
		}
		return struct{}{}, true
	})
	if !ok {
		b.logger.Warn(ctx, "failed to return relay reply to protocol client", "err", fmt.Sprintf("exhausted %d attempts", b.retryLimit))
	}
}
