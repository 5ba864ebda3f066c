package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// CommandHandler executes a command received from the broker
type CommandHandler func(ctx context.Context, cmd models.Command) error

type mqttMessage struct {
	topic    string
	retained bool
	payload  []byte
}

// MQTTService publishes reconciled state for remote dashboards and accepts commands from them
type MQTTService struct {
	client    mqtt.Client
	sessionID string
	topics    mqttTopics
	clock     Clock
	logger    *zap.Logger
	outbox    chan mqttMessage
	commands  chan models.Command
	handler   CommandHandler
}

type mqttTopics struct {
	state    string
	events   string
	commands string
}

func newMQTTTopics(prefix, sessionID string) mqttTopics {
	base := fmt.Sprintf("%s/%s", prefix, sessionID)
	return mqttTopics{
		state:    base + "/state",
		events:   base + "/events",
		commands: base + "/commands",
	}
}

// NewMQTTService connects to the broker
func NewMQTTService(cfg *config.Config, sessionID string, clock Clock, logger *zap.Logger) (*MQTTService, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTTBroker))
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.MQTTClientID, sessionID))
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newMQTTService(client, cfg.MQTTTopicPrefix, sessionID, clock, logger), nil
}

func newMQTTService(client mqtt.Client, prefix, sessionID string, clock Clock, logger *zap.Logger) *MQTTService {
	return &MQTTService{
		client:    client,
		sessionID: sessionID,
		topics:    newMQTTTopics(prefix, sessionID),
		clock:     clock,
		logger:    logger,
		outbox:    make(chan mqttMessage, 64),
		commands:  make(chan models.Command, 16),
	}
}

// SubscribeCommands routes messages on the session command topic to handler.
// Commands are executed one at a time by Start, in arrival order.
func (m *MQTTService) SubscribeCommands(handler CommandHandler) error {
	m.handler = handler

	token := m.client.Subscribe(m.topics.commands, 1, func(_ mqtt.Client, msg mqtt.Message) {
		m.receiveCommand(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", m.topics.commands, token.Error())
	}

	m.logger.Info("Subscribed to command topic", zap.String("topic", m.topics.commands))
	return nil
}

func (m *MQTTService) receiveCommand(payload []byte) {
	var cmd models.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		m.logger.Warn("Discarding malformed command message", zap.Error(err))
		return
	}
	if cmd.Kind == "" {
		m.logger.Warn("Discarding command message without kind")
		return
	}

	select {
	case m.commands <- cmd:
	default:
		m.logger.Warn("Command queue full, dropping command", zap.String("kind", string(cmd.Kind)))
	}
}

// Start publishes queued messages and executes received commands until ctx is cancelled
func (m *MQTTService) Start(ctx context.Context) {
	go m.runCommands(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("MQTT publisher stopped")
			return
		case msg := <-m.outbox:
			m.publish(msg)
		}
	}
}

func (m *MQTTService) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.commands:
			if m.handler == nil {
				continue
			}
			if err := m.handler(ctx, cmd); err != nil {
				m.logger.Info("Remote command not executed",
					zap.String("kind", string(cmd.Kind)),
					zap.Error(err))
			}
		}
	}
}

func (m *MQTTService) publish(msg mqttMessage) {
	token := m.client.Publish(msg.topic, 1, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		m.logger.Warn("MQTT publish timed out", zap.String("topic", msg.topic))
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Error("Failed to publish MQTT message",
			zap.String("topic", msg.topic),
			zap.Error(err))
		return
	}
	m.logger.Debug("Published MQTT message", zap.String("topic", msg.topic))
}

func (m *MQTTService) queue(topic string, retained bool, event models.StateEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Failed to marshal state event", zap.Error(err))
		return
	}

	select {
	case m.outbox <- mqttMessage{topic: topic, retained: retained, payload: payload}:
	default:
		m.logger.Warn("MQTT outbox full, dropping message", zap.String("topic", topic))
	}
}

func (m *MQTTService) event(eventType models.EventType) models.StateEvent {
	return models.StateEvent{
		Type:      eventType,
		SessionID: m.sessionID,
		Timestamp: m.clock.Now(),
	}
}

func (m *MQTTService) OnStateChanged(state models.DeviceState) {
	event := m.event(models.EventStateChanged)
	event.State = &state
	m.queue(m.topics.state, true, event)
}

func (m *MQTTService) OnCommandFailed(reason string) {
	event := m.event(models.EventCommandFailed)
	event.Reason = reason
	m.queue(m.topics.events, false, event)
}

func (m *MQTTService) OnCameraUnavailable() {
	m.queue(m.topics.events, false, m.event(models.EventCameraUnavailable))
}

func (m *MQTTService) OnCameraAvailable() {
	m.queue(m.topics.events, false, m.event(models.EventCameraAvailable))
}

// Close disconnects from the broker
func (m *MQTTService) Close() {
	m.logger.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(250)
}
