package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

// Message is the body published for every request event.
type Message struct {
	EventType  string          `json:"eventType"`
	RequestID  *int64          `json:"requestId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// RoutingKey maps REQUEST_CONFLICT_RESOLVED to request.conflict_resolved.
func RoutingKey(eventType string) string {
	key := strings.ToLower(eventType)
	if rest, ok := strings.CutPrefix(key, "request_"); ok {
		return "request." + rest
	}
	return key
}

func NewMessage(ev appointment.EventLog) Message {
	msg := Message{
		EventType:  ev.EventType,
		RequestID:  ev.RequestID,
		OccurredAt: ev.CreatedAt.UTC(),
	}
	if len(ev.Payload) > 0 {
		msg.Payload = json.RawMessage(ev.Payload)
	}
	return msg
}

// RabbitPublisher sends request events to a durable topic exchange.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func NewRabbitPublisher(url, exchange string, logger zerolog.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "events").Str("exchange", exchange).Logger(),
	}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, ev appointment.EventLog) error {
	body, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := RoutingKey(ev.EventType)

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.CreatedAt,
		Type:         ev.EventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	p.logger.Debug().Str("routing_key", key).Msg("event published")
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, appointment.EventLog) error { return nil }

func (NopPublisher) Close() error { return nil }
