package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"clinicvoice/internal/domain"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic string
	qos   byte
	body  []byte
}

type fakePublisher struct {
	sent []published
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	p.sent = append(p.sent, published{topic: topic, qos: qos, body: payload.([]byte)})
	return newDoneToken(p.err)
}

func newTestHub() (*Hub, *fakePublisher) {
	pub := &fakePublisher{}
	h := NewHub(HubConfig{TopicPrefix: "clinic"}, NewOperatorRegistry(time.Minute), slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.pub = pub
	return h, pub
}

func TestHandleStatusPayloads(t *testing.T) {
	h, _ := newTestHub()

	h.handleStatus(nil, fakeMessage{topic: "clinic/operator/anna/status", payload: []byte(`{"number":"+15550001","available":true}`)})
	if got := h.HandoffNumber(); got != "+15550001" {
		t.Fatalf("handoff number=%q", got)
	}

	h.handleStatus(nil, fakeMessage{topic: "clinic/operator/anna/status", payload: []byte("busy")})
	if got := h.HandoffNumber(); got != "" {
		t.Fatalf("busy operator offered: %q", got)
	}

	h.handleStatus(nil, fakeMessage{topic: "clinic/operator/anna/status", payload: []byte("available")})
	if got := h.HandoffNumber(); got != "+15550001" {
		t.Fatalf("number should survive plain-text status, got %q", got)
	}

	h.handleStatus(nil, fakeMessage{topic: "clinic/operator/anna/status", payload: []byte("offline")})
	if got := h.HandoffNumber(); got != "" {
		t.Fatalf("offline operator offered: %q", got)
	}

	h.handleStatus(nil, fakeMessage{topic: "clinic/operator/anna/status", payload: []byte("???")})
	h.handleStatus(nil, fakeMessage{topic: "elsewhere/operator/bob/status", payload: []byte(`{"number":"+1","available":true}`)})
	if got := h.HandoffNumber(); got != "" {
		t.Fatalf("invalid messages changed the registry: %q", got)
	}
}

func TestPublishCallEvent(t *testing.T) {
	h, pub := newTestHub()
	err := h.PublishCallEvent(context.Background(), domain.CallEvent{CallID: "CA1", Turn: 2, Reply: "hi", NextAction: domain.ActionContinue})
	if err != nil {
		t.Fatalf("PublishCallEvent: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].topic != "clinic/call/CA1/event" {
		t.Fatalf("sent=%+v", pub.sent)
	}
	var ev domain.CallEvent
	if err := json.Unmarshal(pub.sent[0].body, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.EventID == "" || ev.Turn != 2 || ev.NextAction != domain.ActionContinue {
		t.Fatalf("event=%+v", ev)
	}
}

func TestRequestHandoffClaimsOperator(t *testing.T) {
	h, pub := newTestHub()
	h.registry.SetStatus("anna", "+15550001", true)

	if err := h.RequestHandoff(context.Background(), "CA1", h.HandoffNumber()); err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].topic != "clinic/operator/handoff" || pub.sent[0].qos != 1 {
		t.Fatalf("sent=%+v", pub.sent)
	}
	var req HandoffRequest
	if err := json.Unmarshal(pub.sent[0].body, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.CallID != "CA1" || req.Number != "+15550001" || req.OperatorID != "anna" {
		t.Fatalf("request=%+v", req)
	}
	if got := h.HandoffNumber(); got != "" {
		t.Fatalf("claimed operator still offered: %q", got)
	}
}

func TestPublishErrors(t *testing.T) {
	h := NewHub(HubConfig{TopicPrefix: "clinic"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := h.PublishCallEvent(context.Background(), domain.CallEvent{CallID: "CA1"}); !errors.Is(err, errNotConnected) {
		t.Fatalf("err=%v, want errNotConnected", err)
	}

	h, pub := newTestHub()
	pub.err = errors.New("broker gone")
	if err := h.RequestHandoff(context.Background(), "CA1", "+15550100"); err == nil {
		t.Fatal("expected publish error")
	}
}
