package mqtt

import (
	"fmt"

	"github.com/sweeney/vent-controller/internal/control"
)

// FakePublisher stands in for a broker connection. Besides recording what
// was published, it keeps the retained message per topic the way a broker
// does, so tests can check what a late subscriber would see.
type FakePublisher struct {
	// Records and Payloads hold every published tick, in order.
	Records  []control.Record
	Payloads [][]byte

	// SystemEvents and SystemPayloads hold every published lifecycle event.
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Retained is the broker-side retained payload per topic.
	Retained map[string][]byte

	// RetainedEvent names the retained system event ("" before any).
	RetainedEvent string

	// PublishError and PublishSystemError, if set, fail every call.
	PublishError       error
	PublishSystemError error

	// FailNext, if > 0, fails that many publishes of either kind and then
	// clears itself.
	FailNext int

	// Closed tracks if Close was called. Publishing afterwards fails with
	// ErrPublisherClosed.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Retained: make(map[string][]byte)}
}

func (f *FakePublisher) check(err error) error {
	switch {
	case f.Closed:
		return ErrPublisherClosed
	case err != nil:
		return err
	case f.FailNext > 0:
		f.FailNext--
		return fmt.Errorf("publish: scripted failure")
	}
	return nil
}

// Publish records the tick record and its payload.
func (f *FakePublisher) Publish(rec control.Record) error {
	if err := f.check(f.PublishError); err != nil {
		return err
	}
	payload, err := FormatPayload(rec)
	if err != nil {
		return err
	}
	f.Records = append(f.Records, rec)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the event and updates the retained system state.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if err := f.check(f.PublishSystemError); err != nil {
		return err
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	if event.Retained {
		f.Retained[TopicSystem] = payload
		f.RetainedEvent = event.Event
	}
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages, retained state and flags.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{Retained: make(map[string][]byte)}
}
