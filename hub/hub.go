// Package hub fans per-tag telemetry updates out to subscribed
// connections. Topics are the literal "all" and "device:<id>"; every
// connection owns a bounded queue with a drop-oldest policy so a slow
// subscriber never stalls the rest.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
)

// TopicAll receives every published update.
const TopicAll = "all"

// DeviceTopic is the per-device topic name.
func DeviceTopic(deviceID string) string {
	return "device:" + deviceID
}

// TelemetryEvent is the payload streamed for each new sample.
type TelemetryEvent struct {
	Event     string      `json:"event"` // always "ReceiveTelemetry"
	DeviceID  string      `json:"deviceId"`
	TagID     string      `json:"tagId"`
	Ts        int64       `json:"ts"`
	Quality   int         `json:"quality"`
	Value     interface{} `json:"value"`
	ValueType string      `json:"valueType"`
}

// EncodeTelemetry marshals the broadcast event for a point.
func EncodeTelemetry(p model.TelemetryPoint) ([]byte, error) {
	return json.Marshal(TelemetryEvent{
		Event:     "ReceiveTelemetry",
		DeviceID:  p.DeviceID,
		TagID:     p.TagID,
		Ts:        p.Ts,
		Quality:   p.Quality,
		Value:     p.JSONValue(),
		ValueType: p.ValueType.String(),
	})
}

// Conn is one registered subscriber. The adapter drains Outbound; the
// hub never blocks on it.
type Conn struct {
	id   string
	out  chan []byte
	done chan struct{}
	lag  atomic.Uint64
}

// ID returns the connection id assigned at registration.
func (c *Conn) ID() string { return c.id }

// Outbound is the queue the transport adapter drains.
func (c *Conn) Outbound() <-chan []byte { return c.out }

// Done is closed when the connection is removed from the hub.
func (c *Conn) Done() <-chan struct{} { return c.done }

// LagEvents counts payloads dropped for this connection.
func (c *Conn) LagEvents() uint64 { return c.lag.Load() }

// Hub is the connection registry and fan-out point.
type Hub struct {
	log    *zap.Logger
	buffer int

	published prometheus.Counter
	dropped   prometheus.Counter

	mu     sync.Mutex
	conns  map[string]*Conn
	topics map[string]map[string]*Conn
}

// New creates a hub with the given per-connection buffer. reg may be
// nil to leave the self-metrics unregistered.
func New(buffer int, reg prometheus.Registerer, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	h := &Hub{
		log:    log,
		buffer: buffer,
		conns:  make(map[string]*Conn),
		topics: make(map[string]map[string]*Conn),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intellimaint_hub_published_total",
			Help: "Payloads delivered to subscriber queues.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intellimaint_hub_dropped_total",
			Help: "Payloads dropped from full subscriber queues.",
		}),
	}
	if reg != nil {
		reg.MustRegister(h.published, h.dropped)
	}
	return h
}

// OnConnect registers a new connection and returns it.
func (h *Hub) OnConnect() *Conn {
	c := &Conn{id: uuid.NewString(), out: make(chan []byte, h.buffer), done: make(chan struct{})}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	return c
}

// OnDisconnect removes the connection from the registry and all topics.
func (h *Hub) OnDisconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	for _, members := range h.topics {
		delete(members, id)
	}
	close(c.done)
}

// Subscribe adds the connection to a topic group.
func (h *Hub) Subscribe(id, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return fmt.Errorf("%w: connection %s", model.ErrNotFound, id)
	}
	members := h.topics[topic]
	if members == nil {
		members = make(map[string]*Conn)
		h.topics[topic] = members
	}
	members[id] = c
	return nil
}

// Unsubscribe removes the connection from a topic group.
func (h *Hub) Unsubscribe(id, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.topics[topic]; ok {
		delete(members, id)
	}
}

// Publish fans the payload out to every subscriber of the topic without
// blocking. A full queue drops its oldest payload and records a lag
// event.
func (h *Hub) Publish(topic string, payload []byte) {
	h.deliver(h.subscribers(topic), payload)
}

// PublishDevice delivers one payload to the union of the "all" group
// and the device group, at most once per connection.
func (h *Hub) PublishDevice(deviceID string, payload []byte) {
	all := h.subscribers(TopicAll)
	dev := h.subscribers(DeviceTopic(deviceID))
	seen := make(map[string]bool, len(all)+len(dev))
	union := make([]*Conn, 0, len(all)+len(dev))
	for _, c := range append(all, dev...) {
		if !seen[c.id] {
			seen[c.id] = true
			union = append(union, c)
		}
	}
	h.deliver(union, payload)
}

// subscribers copies the member list so delivery runs without the lock.
func (h *Hub) subscribers(topic string) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.topics[topic]
	out := make([]*Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (h *Hub) deliver(conns []*Conn, payload []byte) {
	for _, c := range conns {
		select {
		case c.out <- payload:
			h.published.Inc()
			continue
		default:
		}
		// Queue full: drop the oldest payload to make room.
		select {
		case <-c.out:
			c.lag.Add(1)
			h.dropped.Inc()
			h.log.Debug("subscriber lagging, payload dropped", zap.String("conn", c.id))
		default:
		}
		select {
		case c.out <- payload:
			h.published.Inc()
		default:
			c.lag.Add(1)
			h.dropped.Inc()
		}
	}
}
