// Package bus wires the two topic exchanges and five durable queues the
// probe-classify-dispatch pipeline communicates over, and provides small
// Publish/Consume helpers around amqp091-go.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"

	"github.com/fleetmon/fleetmon/pkg/config"
)

// ProbeEvent is the bus payload shared by every component in the pipeline.
type ProbeEvent struct {
	ID          int                    `json:"id"`
	URL         string                 `json:"url"`
	Name        string                 `json:"name"`
	Com         map[string]interface{} `json:"com"`
	Logs        ProbeLogs              `json:"logs"`
	Explanation *string                `json:"explanation,omitempty"`
}

// ProbeLogs mirrors one ProbeSnapshot on the wire.
type ProbeLogs struct {
	Timestamp    string   `json:"timestamp"`
	TrafficLight string   `json:"traffic_light"`
	HTTPStatus   *int     `json:"http_status"`
	LatencyMs    *int     `json:"latency_ms"`
	PingMs       *float64 `json:"ping_ms"`
	SSLDaysLeft  *int     `json:"ssl_days_left"`
	DNSResolved  bool     `json:"dns_resolved"`
	Redirects    *int     `json:"redirects"`
	ErrorsLast   *int     `json:"errors_last"`
}

// SkipNotification reads the com bag's skip_notification flag, defaulting
// to false when absent or of the wrong type.
func (e *ProbeEvent) SkipNotification() bool {
	v, ok := e.Com["skip_notification"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// LLMRequested reads the com bag's llm flag.
func (e *ProbeEvent) LLMRequested() bool {
	v, ok := e.Com["llm"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// TelegramOverride reads the com bag's tg destination override, if present.
func (e *ProbeEvent) TelegramOverride() (int64, bool) {
	v, ok := e.Com["tg"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Bus owns the AMQP connection/channel and declares the fixed topology.
type Bus struct {
	cfg  *config.Config
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials rabbit and declares the topology described in the bus
// topology table: two durable topic exchanges and five durable queues, each
// bound with a single literal routing key.
func Connect(cfg *config.Config) (*Bus, error) {
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbit: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	b := &Bus{cfg: cfg, conn: conn, ch: ch}
	if err := b.declareTopology(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) declareTopology() error {
	r := b.cfg.Rabbit

	if err := b.ch.ExchangeDeclare(r.PingerExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare pinger exchange: %w", err)
	}
	if err := b.ch.ExchangeDeclare(r.LLMExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare llm exchange: %w", err)
	}

	queues := []struct {
		name, exchange, key string
	}{
		{r.PingerToLLMQueue, r.PingerExchange, r.PingerRoutingKey},
		{r.PingerToWebQueue, r.PingerExchange, r.PingerRoutingKey},
		{r.LLMToDispatcherQueue, r.LLMExchange, r.LLMRoutingKey},
		{r.LLMToSenderQueue, r.LLMExchange, r.LLMRoutingKey},
		{r.LLMToWebQueue, r.LLMExchange, r.LLMRoutingKey},
	}

	for _, q := range queues {
		if _, err := b.ch.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
		if err := b.ch.QueueBind(q.name, q.key, q.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.name, err)
		}
	}

	return nil
}

// Close tears down the channel and connection.
func (b *Bus) Close() error {
	var err error
	if b.ch != nil {
		err = b.ch.Close()
	}
	if b.conn != nil {
		if cerr := b.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Publish sends a persistent ProbeEvent message to exchange with routingKey,
// retrying exactly once after a reconnect attempt on failure, matching the
// source publisher's single-retry policy.
func (b *Bus) Publish(ctx context.Context, exchange, routingKey string, event ProbeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal probe event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	}

	err = b.ch.PublishWithContext(ctx, exchange, routingKey, false, false, publishing)
	if err == nil {
		return nil
	}

	if reconnErr := b.reconnect(); reconnErr != nil {
		return fmt.Errorf("publish failed and reconnect failed: %w (original: %v)", reconnErr, err)
	}

	if retryErr := b.ch.PublishWithContext(ctx, exchange, routingKey, false, false, publishing); retryErr != nil {
		return fmt.Errorf("publish failed after retry: %w", retryErr)
	}
	return nil
}

func (b *Bus) reconnect() error {
	conn, err := amqp.Dial(b.cfg.Rabbit.URL)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	b.Close()
	b.conn = conn
	b.ch = ch
	return b.declareTopology()
}

// Consume opens a consumer on queue with manual ack. Callers must Ack
// successfully-handled deliveries and Nack (without requeue) failed ones, per
// the spec's "drop and rely on re-emission" error policy.
func (b *Bus) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	return b.ch.Consume(queue, consumerTag, false, false, false, false, nil)
}
