package mqtt

import "sort"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable.
//
// Retained messages describe current state, so only the newest one per topic
// is kept and it never competes for space with readings. Everything else goes
// into a fixed-size queue that drops its oldest entry when full.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	queue    []bufferedMsg
	capacity int
	start    int
	retained map[string]bufferedMsg

	dropped      int  // total since creation
	droppedSince bool // dropped anything since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		queue:    make([]bufferedMsg, 0, capacity),
		capacity: capacity,
		retained: make(map[string]bufferedMsg),
	}
}

// push stores msg. It reports true when a reading was dropped for the first
// time since the last drain.
func (o *outbox) push(msg bufferedMsg) (firstDrop bool) {
	if msg.retained {
		o.retained[msg.topic] = msg
		return false
	}
	if len(o.queue) < o.capacity {
		o.queue = append(o.queue, msg)
		return false
	}

	o.queue[o.start] = msg
	o.start = (o.start + 1) % o.capacity
	o.dropped++
	firstDrop = !o.droppedSince
	o.droppedSince = true
	return firstDrop
}

// drainAll empties the outbox. Queued messages come first, oldest first,
// followed by the retained state per topic, so the broker ends up holding
// the newest state.
func (o *outbox) drainAll() []bufferedMsg {
	if o.len() == 0 {
		return nil
	}

	out := make([]bufferedMsg, 0, o.len())
	for i := range o.queue {
		out = append(out, o.queue[(o.start+i)%len(o.queue)])
	}
	topics := make([]string, 0, len(o.retained))
	for t := range o.retained {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		out = append(out, o.retained[t])
	}

	o.queue = o.queue[:0]
	o.start = 0
	o.retained = make(map[string]bufferedMsg)
	o.droppedSince = false
	return out
}

func (o *outbox) len() int {
	return len(o.queue) + len(o.retained)
}
