package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"clinicvoice/internal/domain"
)

type HubConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// OperatorStatus is the payload of {prefix}/operator/{id}/status. A plain
// "available", "busy" or "offline" payload is accepted too.
type OperatorStatus struct {
	Number    string `json:"number"`
	Available bool   `json:"available"`
	Online    *bool  `json:"online,omitempty"`
}

// HandoffRequest asks an operator console to pick up a call.
type HandoffRequest struct {
	RequestID  string    `json:"request_id"`
	CallID     string    `json:"call_id"`
	Number     string    `json:"number"`
	OperatorID string    `json:"operator_id,omitempty"`
	At         time.Time `json:"at"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type Hub struct {
	cfg      HubConfig
	client   paho.Client
	pub      publisher
	registry *OperatorRegistry
	logger   *slog.Logger
}

func NewHub(cfg HubConfig, registry *OperatorRegistry, logger *slog.Logger) *Hub {
	if registry == nil {
		registry = NewOperatorRegistry(0)
	}
	return &Hub{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
	}
}

func (h *Hub) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(h.cfg.BrokerURL).
		SetClientID(h.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		h.logger.Error("mqtt connection lost", "error", err)
	})
	// Subscriptions are restored on every reconnect.
	opts.SetOnConnectHandler(func(_ paho.Client) {
		if err := h.subscribeHandlers(); err != nil {
			h.logger.Error("mqtt subscribe failed", "error", err)
		}
	})

	h.client = paho.NewClient(opts)
	h.pub = h.client
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	go func() {
		<-ctx.Done()
		h.client.Disconnect(100)
	}()

	return nil
}

func (h *Hub) subscribeHandlers() error {
	if token := h.client.Subscribe(TopicOperatorStatus(h.cfg.TopicPrefix), 1, h.handleStatus); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Subscribe(TopicOperatorHeartbeat(h.cfg.TopicPrefix), 1, h.handleHeartbeat); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (h *Hub) handleStatus(_ paho.Client, msg paho.Message) {
	operatorID, err := ParseOperatorID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid status topic", "topic", msg.Topic(), "error", err)
		return
	}

	status, err := parseStatus(msg.Payload())
	if err != nil {
		h.logger.Warn("invalid operator status payload", "operator_id", operatorID, "error", err)
		return
	}
	if status.Online != nil && !*status.Online {
		h.registry.SetOnline(operatorID, false)
		h.logger.Info("operator offline", "operator_id", operatorID)
		return
	}
	h.registry.SetStatus(operatorID, status.Number, status.Available)
	h.logger.Info("operator status", "operator_id", operatorID, "available", status.Available)
}

func (h *Hub) handleHeartbeat(_ paho.Client, msg paho.Message) {
	operatorID, err := ParseOperatorID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid heartbeat topic", "topic", msg.Topic(), "error", err)
		return
	}
	h.registry.SetOnline(operatorID, true)
}

func parseStatus(payload []byte) (OperatorStatus, error) {
	var status OperatorStatus
	if err := json.Unmarshal(payload, &status); err == nil {
		return status, nil
	}
	// plain-text payloads from simple consoles
	switch strings.TrimSpace(strings.ToLower(string(payload))) {
	case "available", "1", "true", "online":
		return OperatorStatus{Available: true}, nil
	case "busy":
		return OperatorStatus{Available: false}, nil
	case "offline", "0", "false":
		off := false
		return OperatorStatus{Online: &off}, nil
	}
	return OperatorStatus{}, fmt.Errorf("unrecognized status %q", string(payload))
}

// HandoffNumber returns the number of the operator waiting longest, or "" when
// nobody is available.
func (h *Hub) HandoffNumber() string {
	available := h.registry.ListAvailable()
	if len(available) == 0 {
		return ""
	}
	return available[0].Number
}

func (h *Hub) PublishCallEvent(ctx context.Context, ev domain.CallEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.publish(ctx, TopicCallEvent(h.cfg.TopicPrefix, ev.CallID), 0, body)
}

// RequestHandoff announces the call to operator consoles and marks the
// operator behind number as busy.
func (h *Hub) RequestHandoff(ctx context.Context, callID, number string) error {
	req := HandoffRequest{
		RequestID: uuid.NewString(),
		CallID:    callID,
		Number:    number,
		At:        time.Now().UTC(),
	}
	if op, ok := h.registry.Claim(number); ok {
		req.OperatorID = op.OperatorID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := h.publish(ctx, TopicHandoff(h.cfg.TopicPrefix), 1, body); err != nil {
		return err
	}
	h.logger.Info("operator handoff requested", "call_id", callID, "operator_id", req.OperatorID)
	return nil
}

var errNotConnected = errors.New("mqtt hub not started")

func (h *Hub) publish(ctx context.Context, topic string, qos byte, body []byte) error {
	if h.pub == nil {
		return errNotConnected
	}
	token := h.pub.Publish(topic, qos, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
