package engine

import (
	"context"
	"time"

	"ampfilter/internal/device"
	"ampfilter/internal/logger"
	"ampfilter/internal/metrics"
	"ampfilter/internal/models"
)

// Sender is the outbound side of the transport.
type Sender interface {
	Send(payload []byte) error
}

// Sink receives a best-effort copy of every emitted event (Kafka,
// WebSocket front ends). Sink failures never affect emission.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event *models.Event) error
}

// Emitter serializes filtered events, broadcasts them, and records
// processing latency. Transport failures are logged and swallowed: the
// state transition already committed, only its notification is lost.
type Emitter struct {
	sender Sender
	sinks  []Sink
}

// NewEmitter creates an emitter sending on sender and fanning out to sinks.
func NewEmitter(sender Sender, sinks ...Sink) *Emitter {
	return &Emitter{sender: sender, sinks: sinks}
}

// Emit builds and sends the event for one rule transition. receivedAt is
// the ingress timestamp of the datagram that caused the transition.
func (e *Emitter) Emit(ctx context.Context, id device.ID, ruleText string, achieved bool, receivedAt time.Time) {
	log := logger.WithDevice("emitter", int(id))

	event := &models.Event{
		DeviceID:          int(id),
		Filter:            ruleText,
		ThresholdAchieved: achieved,
	}

	payload, err := event.Encode()
	if err != nil {
		log.Error().Err(err).Str("filter", ruleText).Msg("failed to encode event")
		metrics.EventsEmittedTotal.WithLabelValues("failed").Inc()
		return
	}

	if err := e.sender.Send(payload); err != nil {
		log.Error().Err(err).Str("filter", ruleText).Msg("failed to send event")
		metrics.EventsEmittedTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.EventsEmittedTotal.WithLabelValues("success").Inc()
	}

	// Latency is an observability hook, never a control-flow dependency.
	elapsed := time.Since(receivedAt)
	metrics.ProcessingLatency.Observe(elapsed.Seconds())
	log.Debug().
		Str("filter", ruleText).
		Bool("threshold_achieved", achieved).
		Float64("processing_ms", float64(elapsed.Microseconds())/1000).
		Msg("event emitted")

	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Msg("sink publish failed")
		}
	}
}
