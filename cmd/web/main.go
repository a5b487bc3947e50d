package main

import (
	"context"
	"log"

	"github.com/kataras/iris/v12"

	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/infra/mq"
	"github.com/example/museauction/internal/logger"
	"github.com/example/museauction/internal/repository/mysql"
	"github.com/example/museauction/internal/server"
	"github.com/example/museauction/internal/service"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init()

	app := iris.New()
	server.RegisterRoutes(app, cfg)

	// Background sweeper: ends overdue auctions and issues winner payments
	// even when nobody is browsing.
	db := mysql.DB()
	auctionRepo := mysql.NewAuctionRepository(db)
	paymentRepo := mysql.NewPaymentRepository(db)
	userRepo := mysql.NewUserRepository(db)
	museRepo := mysql.NewMuseRepository(db)
	shipmentRepo := mysql.NewShipmentRepository(db)
	addressRepo := mysql.NewAddressRepository(db)
	auditRepo := mysql.NewAuditRepository(db)
	notificationRepo := mysql.NewNotificationRepository(db)

	// Same publisher as the request path so sweep-issued payments reach the
	// notify worker too.
	publisher := mq.NewPublisher(mq.Conn(), mq.AuctionEventsQueue)
	notifySvc := service.NewNotificationService(notificationRepo, publisher)
	paymentSvc := service.NewPaymentService(paymentRepo, auctionRepo, userRepo, museRepo,
		shipmentRepo, addressRepo, auditRepo, notifySvc, cfg.Auction, cfg.Shipping, clock.System{})
	lifecycleSvc := service.NewLifecycleService(auctionRepo, paymentSvc, cfg.Auction, clock.System{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lifecycleSvc.Run(ctx)

	addr := cfg.Server.Addr()
	log.Printf("web server listening on %s", addr)
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run web server: %v", err)
	}
}
