package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/amby/config"
	"goa.design/amby/telemetry"
	"goa.design/amby/wire"
)

func startTestBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	cfg := config.Config{
		AppAddr:      "127.0.0.1:0",
		ProtocolAddr: "127.0.0.1:0",
		EventAddr:    "127.0.0.1:0",
		RetryLimit:   3,
	}
	b := New(cfg, telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), telemetry.NewNoopTracer())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()

	require.NoError(t, b.WaitReady(context.Background()))
	return b, cancel
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	return conn
}

func readResponse(t *testing.T, conn net.Conn) wire.Response {
	t.Helper()
	frame, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(frame)
	require.NoError(t, err)
	return resp
}

// TestSoloRegistration is spec.md section 8 scenario 1: an app registers
// and reads back an empty success ack.
func TestSoloRegistration(t *testing.T) {
	b, cancel := startTestBroker(t)
	defer cancel()

	app := dial(t, b.AppAddr())
	defer app.Close()

	meta := wire.AppMetadata{Name: wire.Name("echo")}
	payload, err := wire.EncodeAppMetadata(meta)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(app, payload))

	resp := readResponse(t, app)
	assert.Equal(t, wire.ResponseSuccess, resp.Kind)
	assert.Empty(t, resp.Payload)
}

// TestRoundTrip is spec.md section 8 scenario 2: a protocol client's
// request reaches a registered app verbatim, and the app's reply reaches
// the protocol client.
func TestRoundTrip(t *testing.T) {
	b, cancel := startTestBroker(t)
	defer cancel()

	app := dial(t, b.AppAddr())
	defer app.Close()
	meta := wire.AppMetadata{Name: wire.Name("echo")}
	payload, err := wire.EncodeAppMetadata(meta)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(app, payload))
	readResponse(t, app) // ack

	proto := dial(t, b.ProtocolAddr())
	defer proto.Close()
	require.NoError(t, wire.WriteFrame(proto, wire.EncodeName("http")))
	readResponse(t, proto) // registration ack

	req := wire.Request{Kind: wire.RequestRead, ProtocolName: "http", AppName: wire.Name("echo"), Payload: []byte{0x01}}
	reqPayload, err := wire.EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(proto, reqPayload))

	frame, err := wire.ReadFrame(app)
	require.NoError(t, err)
	gotReq, err := wire.DecodeRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, req, gotReq)

	appResp := wire.Response{Kind: wire.ResponseSuccess, Payload: []byte{0x02}}
	appPayload, err := wire.EncodeResponse(appResp)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(app, appPayload))

	clientResp := readResponse(t, proto)
	assert.Equal(t, appResp, clientResp)
}

// TestMissingAppDropsRequestSilently is spec.md section 8 scenario 3.
func TestMissingAppDropsRequestSilently(t *testing.T) {
	b, cancel := startTestBroker(t)
	defer cancel()

	proto := dial(t, b.ProtocolAddr())
	defer proto.Close()
	require.NoError(t, wire.WriteFrame(proto, wire.EncodeName("http")))
	readResponse(t, proto) // registration ack

	req := wire.Request{Kind: wire.RequestRead, ProtocolName: "http", AppName: wire.Name("ghost"), Payload: []byte{0x01}}
	reqPayload, err := wire.EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(proto, reqPayload))

	_ = proto.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = wire.ReadFrame(proto)
	assert.Error(t, err, "protocol client should receive no reply for a request to an unregistered app")
}

// TestDuplicateProtocolName is spec.md section 8 scenario 5.
func TestDuplicateProtocolName(t *testing.T) {
	b, cancel := startTestBroker(t)
	defer cancel()

	protoA := dial(t, b.ProtocolAddr())
	defer protoA.Close()
	require.NoError(t, wire.WriteFrame(protoA, wire.EncodeName("http")))
	ack := readResponse(t, protoA)
	assert.Equal(t, wire.ResponseSuccess, ack.Kind)

	protoB := dial(t, b.ProtocolAddr())
	defer protoB.Close()
	require.NoError(t, wire.WriteFrame(protoB, wire.EncodeName("http")))

	_ = protoB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err := wire.ReadFrame(protoB)
	assert.Error(t, err, "duplicate registration should close the connection with no response")
}

// TestEventFanOut is spec.md section 8 scenario 6.
func TestEventFanOut(t *testing.T) {
	b, cancel := startTestBroker(t)
	defer cancel()

	sub0 := dial(t, b.EventAddr())
	sub1 := dial(t, b.EventAddr())
	defer sub1.Close()

	// Give the event listener's single accept loop time to register both
	// subscribers before the app registers.
	time.Sleep(50 * time.Millisecond)

	app := dial(t, b.AppAddr())
	defer app.Close()
	meta := wire.AppMetadata{Name: wire.Name("svc")}
	payload, err := wire.EncodeAppMetadata(meta)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(app, payload))
	readResponse(t, app)

	for _, sub := range []net.Conn{sub0, sub1} {
		frame, err := wire.ReadFrame(sub)
		require.NoError(t, err)
		got, err := wire.DecodeAppMetadata(frame)
		require.NoError(t, err)
		assert.Equal(t, meta.Name, got.Name)
	}

	require.NoError(t, sub0.Close())
	time.Sleep(50 * time.Millisecond)

	app2 := dial(t, b.AppAddr())
	defer app2.Close()
	meta2 := wire.AppMetadata{Name: wire.Name("svc2")}
	payload2, err := wire.EncodeAppMetadata(meta2)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(app2, payload2))
	readResponse(t, app2)

	frame, err := wire.ReadFrame(sub1)
	require.NoError(t, err)
	got, err := wire.DecodeAppMetadata(frame)
	require.NoError(t, err)
	assert.Equal(t, meta2.Name, got.Name)
}
