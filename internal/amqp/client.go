package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"bookkeep/internal/budget"
	"bookkeep/internal/core"
)

const publishTimeout = 5 * time.Second

// Client publishes transaction events and budget alerts through one
// direct exchange with a queue per message kind.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	eventsQueue  string
	alertsQueue  string
}

func NewClient(url, exchangeName, eventsQueue, alertsQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		eventsQueue:  eventsQueue,
		alertsQueue:  alertsQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.eventsQueue, c.alertsQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key matches the queue name on a direct exchange.
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (c *Client) publishTransactionEvent(ctx context.Context, txn core.Transaction, kind string) error {
	msg := &TransactionEvent{
		ID:        txn.ID,
		AccountID: txn.AccountID,
		UserID:    txn.UserID,
		Kind:      kind,
		Timestamp: time.Now(),
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.eventsQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published transaction event",
		"transaction_id", txn.ID,
		"kind", kind,
		"exchange", c.exchangeName,
		"queue", c.eventsQueue)
	return nil
}

// PublishCommitted announces a committed transaction.
func (c *Client) PublishCommitted(ctx context.Context, txn core.Transaction) error {
	return c.publishTransactionEvent(ctx, txn, KindCommitted)
}

// PublishReversed announces a reversed transaction.
func (c *Client) PublishReversed(ctx context.Context, txn core.Transaction) error {
	return c.publishTransactionEvent(ctx, txn, KindReversed)
}

// PublishBudgetAlert announces a crossed budget threshold.
func (c *Client) PublishBudgetAlert(ctx context.Context, alert budget.Alert) error {
	msg := &BudgetAlertMessage{
		UserID:    alert.UserID,
		Period:    alert.Period,
		Threshold: alert.Threshold,
		Spent:     alert.Spent.Amount().String(),
		Limit:     alert.Limit.Amount().String(),
		Currency:  alert.Limit.Currency(),
		Timestamp: time.Now(),
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.alertsQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published budget alert",
		"user_id", alert.UserID,
		"threshold", alert.Threshold,
		"exchange", c.exchangeName,
		"queue", c.alertsQueue)
	return nil
}

// ConsumeTransactionEvents delivers transaction events to handler until
// ctx is cancelled. Handler failures nack with requeue; undecodable
// messages are dropped.
func (c *Client) ConsumeTransactionEvents(ctx context.Context, handler func(*TransactionEvent) error) error {
	msgs, err := c.channel.Consume(
		c.eventsQueue, // queue
		"",            // consumer
		false,         // auto-ack (we want manual ack)
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming transaction events", "queue", c.eventsQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := TransactionEventFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"transaction_id", msg.ID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
