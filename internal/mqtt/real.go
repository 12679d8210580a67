package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// bufferCapacity holds a little over an hour of readings at the default
	// 10s interval.
	bufferCapacity = 400
)

// ClientID returns the MQTT client id for a run.
func ClientID(runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return "vent-controller-" + runID
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are held in an outbox and replayed when it comes
// back.
type RealPublisher struct {
	client paho.Client
	log    logger.Logger
	runID  string

	// replayMu is held while the outbox is replayed and by every live
	// publish, so nothing overtakes older buffered messages.
	replayMu sync.Mutex

	mu            sync.Mutex
	buf           *outbox
	connected     bool
	everConnected bool
	closed        bool
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: the client keeps retrying in the background.
func NewRealPublisher(broker, runID string, log logger.Logger) *RealPublisher {
	if log == nil {
		log = logger.Nop()
	}
	p := &RealPublisher{
		log:   log,
		runID: runID,
		buf:   newOutbox(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID(runID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetWill(TopicSystem, string(WillPayload(runID)), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnw("mqtt broker not reachable yet, buffering until connected", "broker", broker)
	} else if err := token.Error(); err != nil {
		log.Warnw("mqtt connect failed, retrying in background", "broker", broker, "error", err)
	}
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.replayMu.Lock()
	defer p.replayMu.Unlock()

	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	p.connected = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Infow("mqtt connected", "reconnect", reconnect, "replaying", len(pending))
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	if reconnect {
		// Replaces the retained OFFLINE will.
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, true, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Warnw("mqtt connection lost", "error", err)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	if !p.connected {
		if p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}) {
			p.log.Warnw("mqtt buffer full, dropping oldest readings", "capacity", p.buf.capacity)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.replayMu.Lock()
	defer p.replayMu.Unlock()
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a tick record to the readings topic.
func (p *RealPublisher) Publish(rec control.Record) error {
	payload, err := FormatPayload(rec)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	if err := p.send(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("system %s: %w", event.Event, err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Dropped returns the number of readings lost to buffer overflow since start.
func (p *RealPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.dropped
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
