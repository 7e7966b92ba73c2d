// Package broker implements the concurrent registry-and-routing engine: the
// three long-lived listeners, per-connection workers, the shared
// name->connection registries, the relay state machine, and event fan-out.
// The broker owns no business logic of its own.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"goa.design/amby/config"
	"goa.design/amby/connreg"
	"goa.design/amby/telemetry"
)

// Broker owns the three registries and the listeners built on top of them.
// It has no state beyond what New and Run construct; there is no
// persistence. Cancelling Run's context closes the three listeners but does
// not close connections or stop workers already running (see spec.md
// section 6's process exit codes).
type Broker struct {
	cfg        config.Config
	instanceID string
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	tracer     telemetry.Tracer
	retryLimit int

	apps      *connreg.Guarded
	protocols *connreg.Guarded
	events    *connreg.Guarded

	mu       sync.Mutex
	ready    chan struct{}
	appAddr  net.Addr
	protoAdr net.Addr
	eventAdr net.Addr
}

// New constructs a Broker with empty registries. logger, metrics, and
// tracer default to their no-op implementations when nil, mirroring the
// defaulting style the teacher's registry constructor applies to its own
// optional dependencies.
func New(cfg config.Config, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) *Broker {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	retryLimit := cfg.RetryLimit
	if retryLimit <= 0 {
		retryLimit = connreg.DefaultRetryLimit
	}

	return &Broker{
		cfg:        cfg,
		instanceID: uuid.NewString(),
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		retryLimit: retryLimit,
		apps:       connreg.NewGuarded(connreg.New(), logger),
		protocols:  connreg.NewGuarded(connreg.New(), logger),
		events:     connreg.NewGuarded(connreg.New(), logger),
		ready:      make(chan struct{}),
	}
}

// Run binds the three listeners and blocks until ctx is cancelled or a
// listener fails to bind. The broker itself never terminates cleanly in
// production use (spec.md section 6); Run accepts a context so tests can
// bound its lifetime, and cmd/amby calls it with context.Background().
func (b *Broker) Run(ctx context.Context) error {
	appLn, err := net.Listen("tcp", b.cfg.AppAddr)
	if err != nil {
		return fmt.Errorf("bind app listener on %s: %w", b.cfg.AppAddr, err)
	}
	protoLn, err := net.Listen("tcp", b.cfg.ProtocolAddr)
	if err != nil {
		_ = appLn.Close()
		return fmt.Errorf("bind protocol listener on %s: %w", b.cfg.ProtocolAddr, err)
	}
	eventLn, err := net.Listen("tcp", b.cfg.EventAddr)
	if err != nil {
		_ = appLn.Close()
		_ = protoLn.Close()
		return fmt.Errorf("bind event listener on %s: %w", b.cfg.EventAddr, err)
	}

	b.mu.Lock()
	b.appAddr = appLn.Addr()
	b.protoAdr = protoLn.Addr()
	b.eventAdr = eventLn.Addr()
	b.mu.Unlock()
	close(b.ready)

	go b.serveProtocols(protoLn)
	go b.serveApps(appLn)
	go b.serveEvents(eventLn)

	b.logger.Info(ctx, "broker listening",
		"instance_id", b.instanceID,
		"app_addr", appLn.Addr().String(),
		"protocol_addr", protoLn.Addr().String(),
		"event_addr", eventLn.Addr().String(),
	)

	<-ctx.Done()
	return errors.Join(appLn.Close(), protoLn.Close(), eventLn.Close())
}

// WaitReady blocks until Run has bound all three listeners, or ctx is
// cancelled first. Production callers don't need it; tests that bind
// listeners on ":0" use it to discover the ports actually chosen.
func (b *Broker) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InstanceID returns the broker's process-lifetime identifier, attached to
// its startup log line so multiple broker processes can be told apart in
// aggregated logs.
func (b *Broker) InstanceID() string { return b.instanceID }

// AppAddr returns the bound app-listener address. Valid only after
// WaitReady returns nil.
func (b *Broker) AppAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appAddr
}

// ProtocolAddr returns the bound protocol-listener address. Valid only
// after WaitReady returns nil.
func (b *Broker) ProtocolAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.protoAdr
}

// EventAddr returns the bound event-listener address. Valid only after
// WaitReady returns nil.
func (b *Broker) EventAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eventAdr
}
