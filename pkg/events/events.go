// Package events announces committed state changes (awards issued, approved,
// paid, payouts completed) on a RabbitMQ topic exchange so CRM and finance
// systems can follow along. Publishing is best effort: the database is the
// source of truth and a lost event never rolls anything back.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"partner-incentives/pkg/config"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(ProvidePublisher),
)

// Routing keys.
const (
	AwardIssued      = "award.issued"
	AwardVerified    = "award.verified"
	AwardApproved    = "award.approved"
	AwardPaid        = "award.paid"
	AwardRejected    = "award.rejected"
	AwardClawback    = "award.clawback"
	PayoutRequested  = "payout.requested"
	PayoutApproved   = "payout.approved"
	PayoutRejected   = "payout.rejected"
	PayoutProcessing = "payout.processing"
	PayoutCompleted  = "payout.completed"
	PayoutFailed     = "payout.failed"
	PayoutCancelled  = "payout.cancelled"
)

// Envelope wraps every payload with a unique id consumers can dedupe on.
type Envelope struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func NewEnvelope(routingKey string, data any) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		Type:       routingKey,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

// Fallback drops events. It stands in when no broker is configured or the
// broker was unreachable at startup.
type Fallback struct {
	Logger *zap.Logger
}

func (f Fallback) Publish(_ context.Context, routingKey string, _ any) error {
	if f.Logger != nil {
		f.Logger.Debug("event publish skipped", zap.String("routing_key", routingKey))
	}
	return nil
}

// AMQPPublisher publishes JSON envelopes to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP url must start with amqp:// or amqps://")
	}
	return clean, nil
}

// Dial connects and declares the exchange once.
func Dial(rawURL, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	clean, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(clean, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: log}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	p.channel = ch
	return nil
}

// Publish retries once on a fresh channel. A closed channel is the usual
// failure after a broker restart.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	body, err := json.Marshal(NewEnvelope(routingKey, data))
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed, reopening channel", zap.String("routing_key", routingKey), zap.Error(err))
	if rerr := p.reopen(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	return p.conn.Close()
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.Logger `optional:"true"`
}

// ProvidePublisher dials EVENTS.AMQP_URL. Without a url, or when the broker is
// down at startup, events are dropped through Fallback.
func ProvidePublisher(p Params) Publisher {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("events")

	cfg := p.Config.Events
	if cfg.AmqpURL == "" {
		return Fallback{Logger: log}
	}
	pub, err := Dial(cfg.AmqpURL, cfg.Exchange, log)
	if err != nil {
		log.Warn("broker unavailable, events disabled", zap.Error(err))
		return Fallback{Logger: log}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	log.Info("publishing events", zap.String("exchange", cfg.Exchange))
	return pub
}

// Emit publishes and logs a failure instead of returning it. Call it after
// the owning transaction commits.
func Emit(ctx context.Context, pub Publisher, log *zap.Logger, routingKey string, data any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, routingKey, data); err != nil {
		log.Warn("event not published", zap.String("routing_key", routingKey), zap.Error(err))
	}
}
