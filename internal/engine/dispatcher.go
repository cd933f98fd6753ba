package engine

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"ampfilter/internal/device"
	"ampfilter/internal/logger"
	"ampfilter/internal/metrics"
	"ampfilter/internal/models"
	"ampfilter/internal/rule"
)

// EventEmitter is what a dispatcher needs from the emitter.
type EventEmitter interface {
	Emit(ctx context.Context, id device.ID, ruleText string, achieved bool, receivedAt time.Time)
}

// Dispatcher is the per-device evaluation worker. The ingress loop routes
// decoded measurements into its queue; each one is checked against a
// snapshot of the device's rules and every state flip is emitted.
// Dispatchers for different devices share nothing but the store.
type Dispatcher struct {
	id      device.ID
	store   *rule.Store
	emitter EventEmitter
	queue   chan *models.Measurement
}

// NewDispatcher creates a dispatcher for one device with the given queue
// capacity.
func NewDispatcher(id device.ID, store *rule.Store, emitter EventEmitter, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		id:      id,
		store:   store,
		emitter: emitter,
		queue:   make(chan *models.Measurement, queueSize),
	}
}

// Enqueue hands a measurement to the worker without blocking the ingress
// loop. Returns false when the queue is full and the packet was dropped.
func (d *Dispatcher) Enqueue(m *models.Measurement) bool {
	select {
	case d.queue <- m:
		metrics.DispatchQueueSize.WithLabelValues(strconv.Itoa(int(d.id))).Set(float64(len(d.queue)))
		return true
	default:
		return false
	}
}

// Run consumes the queue until ctx is cancelled. Packets for one device
// are evaluated strictly in arrival order.
func (d *Dispatcher) Run(ctx context.Context) {
	log := logger.WithDevice("dispatcher", int(d.id))

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("dispatcher panic recovered")
			metrics.PanicsRecovered.WithLabelValues("dispatcher").Inc()
		}
	}()

	log.Info().Msg("dispatcher started")
	defer log.Info().Msg("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-d.queue:
			metrics.DispatchQueueSize.WithLabelValues(strconv.Itoa(int(d.id))).Set(float64(len(d.queue)))
			d.process(ctx, m)
		}
	}
}

// process runs one evaluation pass over a point-in-time snapshot of the
// device's rules. Edge-triggered: a rule whose evaluated result equals
// its stored state produces nothing.
func (d *Dispatcher) process(ctx context.Context, m *models.Measurement) {
	for _, v := range d.store.Snapshot(d.id) {
		result := v.Rule.Evaluate(m.Value)
		metrics.RuleEvaluationsTotal.Inc()

		if result == v.Active {
			continue
		}

		d.store.UpdateState(d.id, v.Handle, result)
		d.emitter.Emit(ctx, d.id, v.Rule.Text, result, m.ReceivedAt)
	}
}
