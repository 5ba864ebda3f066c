package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const routingKeyPrefix = "wheelchair"

// amqpChannel is the part of *amqp.Channel the publisher uses
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQService publishes presentation events to a topic exchange
type RabbitMQService struct {
	url       string
	exchange  string
	sessionID string
	clock     Clock
	logger    *zap.Logger

	conn      *amqp.Connection
	channel   amqpChannel
	mu        sync.RWMutex
	isClosing atomic.Bool

	outbox    chan models.StateEvent
	lastState *models.DeviceState
}

// NewRabbitMQService connects to the broker and declares the event exchange
func NewRabbitMQService(cfg *config.Config, sessionID string, clock Clock, logger *zap.Logger) (*RabbitMQService, error) {
	r := newRabbitMQService(nil, cfg.RabbitMQExchange, sessionID, clock, logger)
	r.url = cfg.RabbitMQURL

	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func newRabbitMQService(channel amqpChannel, exchange, sessionID string, clock Clock, logger *zap.Logger) *RabbitMQService {
	return &RabbitMQService{
		exchange:  exchange,
		sessionID: sessionID,
		clock:     clock,
		logger:    logger,
		channel:   channel,
		outbox:    make(chan models.StateEvent, 64),
	}
}

// connect establishes connection to RabbitMQ and declares the exchange
func (r *RabbitMQService) connect() error {
	var (
		conn *amqp.Connection
		err  error
	)

	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.exchange))

	// Connect to RabbitMQ with retry
	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(r.url)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	r.logger.Info("Connected to RabbitMQ successfully")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		r.exchange, // name
		"topic",    // type - consumers bind per event type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.logger.Info("Exchange declared", zap.String("exchange", r.exchange))

	r.mu.Lock()
	r.conn = conn
	r.channel = channel
	r.mu.Unlock()

	// Setup connection close notification
	go r.handleReconnect(conn)

	return nil
}

// handleReconnect handles automatic reconnection when connection is lost
func (r *RabbitMQService) handleReconnect(conn *amqp.Connection) {
	closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if r.isClosing.Load() {
		r.logger.Info("RabbitMQ connection closed gracefully")
		return
	}

	r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

	for !r.isClosing.Load() {
		r.logger.Info("Attempting to reconnect to RabbitMQ...")
		err := r.connect()
		if err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			return
		}

		r.logger.Error("Failed to reconnect", zap.Error(err))
		time.Sleep(5 * time.Second)
	}
}

// Start publishes queued events until ctx is cancelled
func (r *RabbitMQService) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("RabbitMQ publisher stopped")
			return
		case event := <-r.outbox:
			if err := r.Publish(ctx, event); err != nil {
				r.logger.Error("Failed to publish event",
					zap.String("type", string(event.Type)),
					zap.Error(err))
			}
		}
	}
}

// Publish sends one event, routed by its type
func (r *RabbitMQService) Publish(ctx context.Context, event models.StateEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.mu.RLock()
	channel := r.channel
	r.mu.RUnlock()
	if channel == nil {
		return fmt.Errorf("no RabbitMQ channel")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	routingKey := routingKey(event.Type)
	err = channel.PublishWithContext(ctx,
		r.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			AppId:        "wheelsync",
			Headers:      amqp.Table{"session_id": event.SessionID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.logger.Debug("Published event to RabbitMQ",
		zap.String("routing_key", routingKey),
		zap.String("session_id", event.SessionID))
	return nil
}

func routingKey(eventType models.EventType) string {
	return routingKeyPrefix + "." + string(eventType)
}

func (r *RabbitMQService) queue(event models.StateEvent) {
	select {
	case r.outbox <- event:
	default:
		r.logger.Warn("RabbitMQ outbox full, dropping event", zap.String("type", string(event.Type)))
	}
}

func (r *RabbitMQService) event(eventType models.EventType) models.StateEvent {
	return models.StateEvent{
		Type:      eventType,
		SessionID: r.sessionID,
		Timestamp: r.clock.Now(),
	}
}

// OnStateChanged publishes material changes only; frame refreshes are not events
func (r *RabbitMQService) OnStateChanged(state models.DeviceState) {
	if r.lastState != nil && !MaterialChange(*r.lastState, state) {
		return
	}
	r.lastState = &state

	event := r.event(models.EventStateChanged)
	event.State = &state
	r.queue(event)
}

func (r *RabbitMQService) OnCommandFailed(reason string) {
	event := r.event(models.EventCommandFailed)
	event.Reason = reason
	r.queue(event)
}

func (r *RabbitMQService) OnCameraUnavailable() {
	r.queue(r.event(models.EventCameraUnavailable))
}

func (r *RabbitMQService) OnCameraAvailable() {
	r.queue(r.event(models.EventCameraAvailable))
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.isClosing.Store(true)

	r.logger.Info("Closing RabbitMQ connection")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
