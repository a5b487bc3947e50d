package main

import (
	"encoding/json"
	"log"

	"go.uber.org/zap"

	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/infra/mq"
	"github.com/example/museauction/internal/logger"
	"github.com/example/museauction/internal/service"
)

// The notify worker drains the auction events queue and performs the
// out-of-band delivery (email/push). Delivery here is a structured log;
// swapping in a real mailer only touches deliver().
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init()

	mqConn := mq.Init(&cfg.RabbitMQ)

	ch, err := mqConn.Channel()
	if err != nil {
		log.Fatalf("failed to open channel: %v", err)
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(mq.AuctionEventsQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("failed to declare queue: %v", err)
	}

	// Manual acks: a crashed delivery attempt requeues instead of vanishing.
	msgs, err := ch.Consume(mq.AuctionEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	zap.L().Info("notify worker started")

	for d := range msgs {
		var event service.AuctionEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			zap.L().Warn("invalid event payload", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		if err := deliver(&event); err != nil {
			zap.L().Error("deliver failed", zap.String("type", event.Type), zap.Error(err))
			_ = d.Nack(false, true)
			continue
		}
		if err := d.Ack(false); err != nil {
			zap.L().Warn("ack failed", zap.Error(err))
		}
	}
}

func deliver(event *service.AuctionEvent) error {
	zap.L().Info("notification delivered",
		zap.String("type", event.Type),
		zap.Int64("user_id", event.UserID),
		zap.String("title", event.Title),
		zap.String("link", event.Link))
	return nil
}
