package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialer opens a channel and returns a closer for the whole session.
type dialer func(url string) (channel, func() error, error)

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// Publisher writes events to one durable queue on the default exchange.
// The session is opened lazily and re-opened after a failed publish.
// Messages are persistent.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
	dial  dialer

	mu       sync.Mutex
	ch       channel
	closeFn  func() error
	declared bool
}

// NewPublisher returns a Publisher; it does not connect until the first
// Publish.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: log.Named("publisher"), dial: dialAMQP}
}

// Publish marshals ev and sends it.  Errors are logged and returned so
// callers may ignore them without interrupting the request flow.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event failed", zap.String("type", ev.Type), zap.Error(err))
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensure(); err != nil {
		p.log.Warn("rabbitmq unavailable", zap.String("type", ev.Type), zap.Error(err))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.String("type", ev.Type), zap.Error(err))
		p.reset()
		return err
	}
	p.log.Debug("event published", zap.String("type", ev.Type))
	return nil
}

func (p *Publisher) ensure() error {
	if p.ch == nil {
		ch, closeFn, err := p.dial(p.url)
		if err != nil {
			return err
		}
		p.ch, p.closeFn, p.declared = ch, closeFn, false
	}
	if !p.declared {
		if _, err := p.ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			p.reset()
			return err
		}
		p.declared = true
	}
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeFn != nil {
		_ = p.closeFn()
	}
	p.ch, p.closeFn, p.declared = nil, nil, false
}

// Close releases the broker session.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	var errs []error
	if err := p.ch.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.closeFn != nil {
		if err := p.closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	p.ch, p.closeFn, p.declared = nil, nil, false
	return errors.Join(errs...)
}

// Nop discards events.  It stands in when RabbitMQ is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
