package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditLogFile is the file, under the consumer's log directory, that
// receives one line per consumed event.
const AuditLogFile = "settlement.log"

// StartEventConsumer consumes booking.settled and payout.updated and
// appends each event to <logDir>/settlement.log. It reconnects with
// exponential backoff and returns only when ctx is cancelled.
func StartEventConsumer(ctx context.Context, url, logDir string) error {
	if url == "" {
		url = DefaultURL
	}
	log := logrus.WithField("component", "event-consumer")

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker, retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, logDir, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("consume loop ended, reconnecting")
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

type delivery struct {
	queue string
	msg   amqp.Delivery
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logDir string, log *logrus.Entry) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
	}

	merged := make(chan delivery)
	for _, name := range []string{BookingSettledQueue, PayoutUpdatedQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(name string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- delivery{queue: name, msg: d}:
				case <-ctx.Done():
					return
				}
			}
		}(name, msgs)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("channel closed")
		case d := <-merged:
			if err := handleMessage(logDir, d.queue, d.msg.Body); err != nil {
				log.WithError(err).WithField("queue", d.queue).Error("handle message failed")
				// reject without requeue to avoid tight redelivery loops
				_ = d.msg.Nack(false, false)
				continue
			}
			_ = d.msg.Ack(false)
		}
	}
}

func handleMessage(logDir, queueName string, body []byte) error {
	line, err := formatEvent(queueName, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, AuditLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatEvent(queueName string, body []byte) (string, error) {
	switch queueName {
	case BookingSettledQueue:
		var ev BookingSettledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", queueName, err)
		}
		ref := "-"
		if ev.PaymentReference != nil {
			ref = *ev.PaymentReference
		}
		coupon := "-"
		if ev.CouponCode != nil {
			coupon = *ev.CouponCode
		}
		return fmt.Sprintf("[%s] Booking settled | booking_id=%s | listing_id=%s | user_id=%s | dates=%s..%s | total=%d | discount=%d | paid=%d | reference=%s | coupon=%s\n",
			ev.SettledAt, ev.BookingID, ev.ListingID, ev.UserID, ev.StartDate, ev.EndDate,
			ev.TotalAmount, ev.CouponDiscount, ev.AmountPaid, ref, coupon), nil
	case PayoutUpdatedQueue:
		var ev PayoutUpdatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", queueName, err)
		}
		return fmt.Sprintf("[%s] Payout %s | payout_id=%s | user_id=%s | amount=%d | reference=%s | transfer_code=%s | source=%s\n",
			ev.UpdatedAt, ev.Status, ev.PayoutID, ev.UserID, ev.Amount, ev.Reference, ev.TransferCode, ev.Source), nil
	}
	return "", fmt.Errorf("unknown queue %q", queueName)
}
