package mq

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/museauction/internal/config"
)

// AuctionEventsQueue carries won/payment/shipping events to the notify worker.
const AuctionEventsQueue = "auction_events"

var (
	conn *amqp.Connection
	once sync.Once
)

// Init opens the RabbitMQ connection.
func Init(cfg *config.RabbitMQConfig) *amqp.Connection {
	once.Do(func() {
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Fatalf("failed to connect rabbitmq: %v", err)
		}
		conn = c
	})
	return conn
}

// Conn returns the connection.
func Conn() *amqp.Connection {
	return conn
}

// Publisher abstracts queue publishing so services can run without a broker
// in tests.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

type queuePublisher struct {
	conn  *amqp.Connection
	queue string
}

// NewPublisher returns a Publisher writing JSON bodies to queue.
func NewPublisher(conn *amqp.Connection, queue string) Publisher {
	return &queuePublisher{conn: conn, queue: queue}
}

func (p *queuePublisher) Publish(ctx context.Context, event any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
