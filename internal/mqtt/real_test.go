package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/vent-controller/internal/logger"
)

// doneToken is an already-completed paho.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	open       bool
	publishErr error
	disconnect int

	// gate, if set, holds every Publish until closed. Each held call is
	// announced on entered first.
	gate    chan struct{}
	entered chan string

	mu   sync.Mutex
	sent []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	msg := published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)}
	if c.gate != nil {
		c.entered <- string(msg.payload)
		<-c.gate
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return doneToken{err: c.publishErr}
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }
func (c *fakeClient) Disconnect(uint)        { c.disconnect++ }

func newTestPublisher(capacity int) (*RealPublisher, *fakeClient) {
	c := &fakeClient{}
	return &RealPublisher{
		client: c,
		log:    logger.Nop(),
		runID:  "run",
		buf:    newOutbox(capacity),
	}, c
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	p, c := newTestPublisher(10)

	if err := p.Publish(onRecord()); err != nil {
		t.Fatalf("buffered publish should not fail: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("buffered publish should not fail: %v", err)
	}
	if len(c.sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(c.sent))
	}
	if p.Buffered() != 2 {
		t.Errorf("Buffered: got %d, want 2", p.Buffered())
	}
}

func TestRealPublisherReplaysOnConnect(t *testing.T) {
	p, c := newTestPublisher(10)
	p.Publish(onRecord())
	p.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true})

	c.open = true
	p.onConnect(c)

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(c.sent))
	}
	if c.sent[0].topic != Topic || c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("reading replayed with wrong options: %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 || !c.sent[1].retained {
		t.Errorf("system event replayed with wrong options: %+v", c.sent[1])
	}
	if p.Buffered() != 0 {
		t.Errorf("expected buffer drained, got %d", p.Buffered())
	}

	// Connected: publishes go straight out.
	if err := p.Publish(onRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.sent) != 3 {
		t.Errorf("expected direct publish, got %d sent", len(c.sent))
	}
}

func TestRealPublisherReconnectClearsWill(t *testing.T) {
	p, c := newTestPublisher(10)
	p.onConnect(c)
	p.onConnectionLost(c, errors.New("EOF"))
	p.Publish(onRecord())
	p.onConnect(c)

	last := c.sent[len(c.sent)-1]
	if last.topic != TopicSystem || !last.retained {
		t.Fatalf("expected retained system message last, got %+v", last)
	}
	var parsed SystemPayload
	if err := json.Unmarshal(last.payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "RECONNECTED" {
		t.Errorf("expected RECONNECTED, got %s", parsed.System.Event)
	}
	if c.sent[0].topic != Topic {
		t.Error("buffered reading should be replayed before RECONNECTED")
	}
}

func TestRealPublisherFirstConnectDoesNotAnnounce(t *testing.T) {
	p, c := newTestPublisher(10)
	p.onConnect(c)
	if len(c.sent) != 0 {
		t.Errorf("first connect should publish nothing, got %d", len(c.sent))
	}
}

func TestRealPublisherPublishError(t *testing.T) {
	p, c := newTestPublisher(10)
	p.onConnect(c)
	c.publishErr = errors.New("not authorized")

	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected publish error")
	}
}

func TestRealPublisherBufferOverflowKeepsNewest(t *testing.T) {
	p, c := newTestPublisher(2)
	for i := 0; i < 5; i++ {
		rec := onRecord()
		rec.DewPointC = float64(i)
		p.Publish(rec)
	}
	p.onConnect(c)

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 replayed, got %d", len(c.sent))
	}
	var parsed Payload
	json.Unmarshal(c.sent[1].payload, &parsed)
	if parsed.Reading.DewPointC == nil || *parsed.Reading.DewPointC != 4 {
		t.Errorf("expected newest reading last, got %v", parsed.Reading.DewPointC)
	}
	if p.Dropped() != 3 {
		t.Errorf("Dropped: got %d, want 3", p.Dropped())
	}
}

func TestRealPublisherOverflowKeepsStartup(t *testing.T) {
	p, c := newTestPublisher(2)
	p.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true})
	for i := 0; i < 5; i++ {
		p.Publish(onRecord())
	}
	p.onConnect(c)

	if len(c.sent) != 3 {
		t.Fatalf("expected 2 readings and STARTUP, got %d", len(c.sent))
	}
	if last := c.sent[2]; last.topic != TopicSystem || !last.retained {
		t.Errorf("expected retained STARTUP last, got %+v", last)
	}
}

func TestRealPublisherIsConnectedAndClose(t *testing.T) {
	p, c := newTestPublisher(1)
	if p.IsConnected() {
		t.Error("expected disconnected")
	}
	c.open = true
	if !p.IsConnected() {
		t.Error("expected connected")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.disconnect != 1 {
		t.Errorf("expected 1 disconnect, got %d", c.disconnect)
	}
	if err := p.Publish(onRecord()); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("publish after close: got %v, want ErrPublisherClosed", err)
	}
	if p.buf.len() != 0 {
		t.Error("nothing should be buffered after close")
	}
}

func TestRealPublisherLivePublishWaitsForReplay(t *testing.T) {
	p, c := newTestPublisher(10)
	startup := SystemEvent{Timestamp: ts, Event: "STARTUP", RawPayload: []byte("STARTUP"), Retained: true}
	shutdown := SystemEvent{Timestamp: ts, Event: "SHUTDOWN", RawPayload: []byte("SHUTDOWN"), Retained: true}
	if err := p.PublishSystem(startup); err != nil {
		t.Fatalf("buffered publish should not fail: %v", err)
	}

	c.gate = make(chan struct{})
	c.entered = make(chan string, 4)
	replayed := make(chan struct{})
	go func() {
		p.onConnect(c)
		close(replayed)
	}()
	if got := <-c.entered; got != "STARTUP" {
		t.Fatalf("expected STARTUP replay first, got %q", got)
	}

	done := make(chan error, 1)
	go func() { done <- p.PublishSystem(shutdown) }()

	select {
	case got := <-c.entered:
		t.Fatalf("live %s published while the replay was still running", got)
	case <-time.After(50 * time.Millisecond):
	}

	close(c.gate)
	<-replayed
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.sent))
	}
	last := c.sent[1]
	if string(last.payload) != "SHUTDOWN" || !last.retained {
		t.Errorf("broker's last retained message: got %q, want SHUTDOWN", last.payload)
	}
}
