// Package engine hosts the filter pipeline: a single ingress loop reads
// measurement datagrams off the shared socket and routes them by device id
// to per-device dispatchers, which evaluate rules and emit events on every
// activation edge.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ampfilter/internal/api"
	"ampfilter/internal/config"
	"ampfilter/internal/device"
	"ampfilter/internal/logger"
	"ampfilter/internal/metrics"
	"ampfilter/internal/models"
	"ampfilter/internal/rule"
	"ampfilter/internal/sink"
	"ampfilter/internal/transport"
	"ampfilter/internal/ws"
)

// Engine is the high-level coordinator owning the transport, the
// dispatchers, the emitter, and the front-end surfaces.
type Engine struct {
	cfg         *config.Config
	store       *rule.Store
	transport   *transport.UDP
	emitter     *Emitter
	hub         *ws.Hub
	kafka       *sink.Kafka
	dispatchers map[device.ID]*Dispatcher
	httpServer  *http.Server
	wg          sync.WaitGroup
	startTime   time.Time
	ready       chan struct{}

	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
	eventsEmitted   atomic.Uint64
}

// New constructs an Engine with the given config and rule store.
func New(cfg *config.Config, store *rule.Store) *Engine {
	return &Engine{
		cfg:         cfg,
		store:       store,
		dispatchers: make(map[device.ID]*Dispatcher),
		ready:       make(chan struct{}),
	}
}

// Store returns the engine's rule store.
func (e *Engine) Store() *rule.Store { return e.store }

// ReceiveAddr blocks until Run has acquired the transport, then reports
// the bound inbound address. Needed by callers binding port 0.
func (e *Engine) ReceiveAddr(ctx context.Context) (net.Addr, error) {
	select {
	case <-e.ready:
		return e.transport.LocalAddr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts background goroutines and blocks until ctx is cancelled.
// The only fatal startup condition is failure to acquire the transport.
func (e *Engine) Run(ctx context.Context) error {
	log := logger.WithComponent("engine")
	log.Info().Msg("engine starting")
	e.startTime = time.Now()

	t, err := transport.Open(transport.Config{
		ReceivePort:   e.cfg.ReceivePort,
		BindAddr:      e.cfg.BindAddr,
		SendPort:      e.cfg.SendPort,
		BroadcastAddr: e.cfg.BroadcastAddr,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire transport")
		return fmt.Errorf("failed to acquire transport: %w", err)
	}
	e.transport = t
	close(e.ready)

	e.hub = ws.NewHub()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.hub.Run(ctx)
	}()

	sinks := []Sink{e.hub}
	if brokers := e.cfg.Brokers(); len(brokers) > 0 {
		k, err := sink.NewKafka(brokers, e.cfg.KafkaTopic)
		if err != nil {
			t.Close()
			log.Error().Err(err).Msg("failed to initialize kafka sink")
			return fmt.Errorf("failed to initialize kafka sink: %w", err)
		}
		e.kafka = k
		sinks = append(sinks, k)
	}
	e.emitter = NewEmitter(&countingSender{transport: t, emitted: &e.eventsEmitted}, sinks...)

	// One worker per device, independent and parallel.
	for _, id := range device.All() {
		d := NewDispatcher(id, e.store, e.emitter, e.cfg.QueueSize)
		e.dispatchers[id] = d
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			d.Run(ctx)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.ingressLoop(ctx)
	}()

	e.initHTTPServer()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		log.Info().Str("addr", e.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := e.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return e.shutdown()
}

// initHTTPServer wires the rule API, event stream, and metrics endpoints.
func (e *Engine) initHTTPServer() {
	handler := api.NewHandler(e.store, e.hub, e.Stats)

	e.httpServer = &http.Server{
		Addr:         e.cfg.HTTPAddr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ingressLoop reads the shared inbound socket, decodes measurements, and
// routes them to the owning device's dispatcher. Malformed payloads and
// unknown device ids are dropped; receive errors never kill the loop.
func (e *Engine) ingressLoop(ctx context.Context) {
	log := logger.WithComponent("ingress")

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("ingress panic recovered")
			metrics.PanicsRecovered.WithLabelValues("ingress").Inc()
		}
	}()

	log.Info().Msg("ingress loop started")
	defer log.Info().Msg("ingress loop stopped")

	for {
		data, err := e.transport.Receive(ctx)
		if err != nil {
			if transport.Closed(err) || ctx.Err() != nil {
				return
			}
			metrics.ReceiveErrorsTotal.Inc()
			log.Warn().Err(err).Msg("receive error, continuing")
			continue
		}
		receivedAt := time.Now()

		e.packetsReceived.Add(1)
		metrics.PacketsReceivedTotal.Inc()

		m, err := models.DecodeMeasurement(data)
		if err != nil {
			e.drop("decode")
			log.Debug().Err(err).Msg("dropping undecodable packet")
			continue
		}
		m.ReceivedAt = receivedAt

		id := device.ID(m.DeviceID)
		if !id.Valid() {
			e.drop("unknown_device")
			log.Debug().Int("device_id", m.DeviceID).Msg("dropping packet for unknown device")
			continue
		}

		if !e.dispatchers[id].Enqueue(m) {
			e.drop("queue_full")
			log.Warn().Int("device_id", m.DeviceID).Msg("dispatch queue full, dropping packet")
		}
	}
}

func (e *Engine) drop(reason string) {
	e.packetsDropped.Add(1)
	metrics.PacketsDroppedTotal.WithLabelValues(reason).Inc()
}

// shutdown stops the front-end surface first, then unblocks the ingress
// loop by closing the transport, and waits for in-flight evaluations.
func (e *Engine) shutdown() error {
	log := logger.WithComponent("engine")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := e.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("releasing transport")
	if err := e.transport.Close(); err != nil {
		log.Error().Err(err).Msg("transport close error")
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	if e.kafka != nil {
		log.Info().Msg("closing kafka sink")
		if err := e.kafka.Close(); err != nil {
			log.Error().Err(err).Msg("kafka sink close error")
		}
	}

	log.Info().Msg("engine stopped gracefully")
	return nil
}

// Stats snapshots the engine counters for the /stats endpoint.
func (e *Engine) Stats() api.Stats {
	return api.Stats{
		PacketsReceived: e.packetsReceived.Load(),
		PacketsDropped:  e.packetsDropped.Load(),
		EventsEmitted:   e.eventsEmitted.Load(),
		UptimeSeconds:   time.Since(e.startTime).Seconds(),
	}
}

// reportStats periodically logs engine statistics.
func (e *Engine) reportStats(ctx context.Context) {
	log := logger.WithComponent("engine")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().
				Uint64("packets_received", e.packetsReceived.Load()).
				Uint64("packets_dropped", e.packetsDropped.Load()).
				Uint64("events_emitted", e.eventsEmitted.Load()).
				Msg("stats")
		}
	}
}

// countingSender counts successful sends for the stats endpoint.
type countingSender struct {
	transport *transport.UDP
	emitted   *atomic.Uint64
}

func (s *countingSender) Send(payload []byte) error {
	if err := s.transport.Send(payload); err != nil {
		return err
	}
	s.emitted.Add(1)
	return nil
}
