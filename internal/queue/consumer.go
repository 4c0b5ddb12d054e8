package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StartAuditConsumer connects to RabbitMQ, declares the queue (durable)
// and writes every event to the audit logger.  It reconnects with a
// doubling delay capped at 30s and returns when ctx is done.
func StartAuditConsumer(ctx context.Context, url, queue string, audit *zap.Logger) error {
	log := audit.Named("audit-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(d.Body, log); err != nil {
				log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// rawEvent defers decoding of Data until the type is known.
type rawEvent struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func handleMessage(body []byte, log *zap.Logger) error {
	var ev rawEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	fields := []zap.Field{zap.String("type", ev.Type), zap.Time("occurred_at", ev.OccurredAt)}

	switch ev.Type {
	case TypeReservationCreated:
		var d ReservationCreated
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return fmt.Errorf("unmarshal %s: %w", ev.Type, err)
		}
		fields = append(fields,
			zap.Uint64("reservation_id", d.ReservationID),
			zap.String("national_id", d.NationalID),
			zap.Int("total_quantity", d.TotalQuantity),
			zap.String("total_price", d.TotalPrice.StringFixed(2)),
			zap.Int("lines", len(d.Lines)))
	case TypeReservationStatusChanged:
		var d StatusChanged
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return fmt.Errorf("unmarshal %s: %w", ev.Type, err)
		}
		fields = append(fields,
			zap.Uint64("reservation_id", d.ReservationID),
			zap.String("from", d.From),
			zap.String("to", d.To),
			zap.Bool("stock_restored", d.StockRestored))
	case TypePaymentCompleted:
		var d PaymentCompleted
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return fmt.Errorf("unmarshal %s: %w", ev.Type, err)
		}
		fields = append(fields,
			zap.Uint64("payment_id", d.PaymentID),
			zap.Uint64("reservation_id", d.ReservationID),
			zap.String("amount", d.Amount.StringFixed(2)),
			zap.String("method", d.Method),
			zap.String("transaction_ref", d.TransactionRef),
			zap.Bool("reconciled", d.Reconciled))
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	log.Info("event", fields...)
	return nil
}
