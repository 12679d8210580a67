package mqtt

import (
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logger"
)

// StatusFunc renders the full status payload for a system event.
type StatusFunc func(event, reason string) []byte

// Sink forwards control records and lifecycle events to a Publisher.
// Publish failures are logged and never stop the control loop.
type Sink struct {
	pub    Publisher
	status StatusFunc
	log    logger.Logger
}

// NewSink creates a Sink. status may be nil, in which case system events
// carry only the event name and reason.
func NewSink(pub Publisher, status StatusFunc, log logger.Logger) *Sink {
	if log == nil {
		log = logger.Nop()
	}
	return &Sink{pub: pub, status: status, log: log}
}

// Observe publishes one tick record.
func (s *Sink) Observe(rec control.Record) {
	if err := s.pub.Publish(rec); err != nil {
		s.log.Warnw("publish reading failed", "error", err)
	}
}

// System publishes a lifecycle event. STARTUP and SHUTDOWN are retained so
// late subscribers see whether the daemon is running.
func (s *Sink) System(ev control.SystemEvent) {
	event := SystemEvent{
		Timestamp: ev.Timestamp,
		Event:     ev.Event,
		Reason:    ev.Reason,
		Retained:  ev.Event != control.EventHeartbeat,
	}
	if s.status != nil {
		event.RawPayload = s.status(ev.Event, ev.Reason)
	}
	if err := s.pub.PublishSystem(event); err != nil {
		s.log.Warnw("publish system event failed", "event", ev.Event, "error", err)
		return
	}
	s.log.Infow("published system event", "event", ev.Event)
}
