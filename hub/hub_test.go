package hub

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
)

func drain(t *testing.T, c *Conn) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		select {
		case p := <-c.Outbound():
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestPublishFanOut(t *testing.T) {
	h := New(8, nil, zap.NewNop())
	a := h.OnConnect()
	b := h.OnConnect()
	if err := h.Subscribe(a.ID(), TopicAll); err != nil {
		t.Fatal(err)
	}
	if err := h.Subscribe(b.ID(), TopicAll); err != nil {
		t.Fatal(err)
	}

	h.Publish(TopicAll, []byte("one"))
	if got := drain(t, a); len(got) != 1 || string(got[0]) != "one" {
		t.Errorf("a received %q, want one payload", got)
	}
	if got := drain(t, b); len(got) != 1 {
		t.Errorf("b received %d payloads, want 1", len(got))
	}
}

func TestPublishUnknownTopicIsNoop(t *testing.T) {
	h := New(8, nil, zap.NewNop())
	c := h.OnConnect()
	h.Publish("device:ghost", []byte("x"))
	if got := drain(t, c); len(got) != 0 {
		t.Errorf("unsubscribed connection received %d payloads", len(got))
	}
}

func TestSubscribeUnknownConnection(t *testing.T) {
	h := New(8, nil, zap.NewNop())
	if err := h.Subscribe("ghost", TopicAll); err == nil {
		t.Fatal("subscribing an unregistered connection must fail")
	}
}

func TestPublishDeviceUnion(t *testing.T) {
	h := New(8, nil, zap.NewNop())
	both := h.OnConnect() // all + the device topic
	allOnly := h.OnConnect()
	other := h.OnConnect() // different device only
	for _, sub := range []struct{ id, topic string }{
		{both.ID(), TopicAll},
		{both.ID(), DeviceTopic("dev1")},
		{allOnly.ID(), TopicAll},
		{other.ID(), DeviceTopic("dev2")},
	} {
		if err := h.Subscribe(sub.id, sub.topic); err != nil {
			t.Fatal(err)
		}
	}

	h.PublishDevice("dev1", []byte("p"))

	// Double subscription still delivers exactly once.
	if got := drain(t, both); len(got) != 1 {
		t.Errorf("dual subscriber received %d payloads, want 1", len(got))
	}
	if got := drain(t, allOnly); len(got) != 1 {
		t.Errorf("all-subscriber received %d payloads, want 1", len(got))
	}
	if got := drain(t, other); len(got) != 0 {
		t.Errorf("unrelated device subscriber received %d payloads, want 0", len(got))
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := New(2, nil, zap.NewNop())
	slow := h.OnConnect()
	fast := h.OnConnect()
	if err := h.Subscribe(slow.ID(), TopicAll); err != nil {
		t.Fatal(err)
	}
	if err := h.Subscribe(fast.ID(), TopicAll); err != nil {
		t.Fatal(err)
	}

	h.Publish(TopicAll, []byte("1"))
	h.Publish(TopicAll, []byte("2"))
	// The fast subscriber keeps up; the slow one has a full queue now.
	if got := drain(t, fast); len(got) != 2 {
		t.Fatalf("fast subscriber received %d payloads, want 2", len(got))
	}
	h.Publish(TopicAll, []byte("3"))

	got := drain(t, slow)
	if len(got) != 2 {
		t.Fatalf("slow subscriber received %d payloads, want buffer size 2", len(got))
	}
	// The oldest payload went overboard; the newest survived.
	if string(got[0]) != "2" || string(got[1]) != "3" {
		t.Errorf("slow subscriber kept %q %q, want 2 3", got[0], got[1])
	}
	if slow.LagEvents() != 1 {
		t.Errorf("lag events = %d, want 1", slow.LagEvents())
	}
	if fast.LagEvents() != 0 {
		t.Errorf("fast subscriber lag = %d, want 0", fast.LagEvents())
	}
	if got := drain(t, fast); len(got) != 1 {
		t.Errorf("fast subscriber received %d more payloads, want 1", len(got))
	}
}

func TestOnDisconnect(t *testing.T) {
	h := New(8, nil, zap.NewNop())
	c := h.OnConnect()
	if err := h.Subscribe(c.ID(), TopicAll); err != nil {
		t.Fatal(err)
	}
	h.OnDisconnect(c.ID())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after disconnect")
	}
	h.Publish(TopicAll, []byte("x"))
	if got := drain(t, c); len(got) != 0 {
		t.Errorf("disconnected connection received %d payloads", len(got))
	}
	// Repeated disconnects are harmless.
	h.OnDisconnect(c.ID())
}

func TestUnsubscribe(t *testing.T) {
	h := New(8, nil, zap.NewNop())
	c := h.OnConnect()
	if err := h.Subscribe(c.ID(), TopicAll); err != nil {
		t.Fatal(err)
	}
	h.Unsubscribe(c.ID(), TopicAll)
	h.Publish(TopicAll, []byte("x"))
	if got := drain(t, c); len(got) != 0 {
		t.Errorf("unsubscribed connection received %d payloads", len(got))
	}
}

func TestEncodeTelemetry(t *testing.T) {
	v := 42.5
	payload, err := EncodeTelemetry(model.TelemetryPoint{
		DeviceID:  "dev1",
		TagID:     "temp",
		Ts:        1_700_000_000_000,
		Quality:   model.QualityGood,
		ValueType: model.ValueFloat64,
		FloatVal:  &v,
	})
	if err != nil {
		t.Fatalf("EncodeTelemetry: %v", err)
	}
	var got TelemetryEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != "ReceiveTelemetry" || got.DeviceID != "dev1" || got.TagID != "temp" {
		t.Errorf("event header wrong: %+v", got)
	}
	if f, ok := got.Value.(float64); !ok || f != 42.5 {
		t.Errorf("value = %v (%T), want 42.5", got.Value, got.Value)
	}
}
