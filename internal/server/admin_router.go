package server

import (
	"time"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/example/museauction/internal/auth"
	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/user"
	"github.com/example/museauction/internal/infra/mq"
	"github.com/example/museauction/internal/infra/redis"
	"github.com/example/museauction/internal/repository/mysql"
	"github.com/example/museauction/internal/service"
)

// RegisterAdminRoutes wires the back-office API, served on its own port.
func RegisterAdminRoutes(app *iris.Application, cfg *config.Config) {
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	auctionRepo := mysql.NewAuctionRepository(db)
	bidRepo := mysql.NewBidRepository(db)
	paymentRepo := mysql.NewPaymentRepository(db)
	museRepo := mysql.NewMuseRepository(db)
	userRepo := mysql.NewUserRepository(db)
	notificationRepo := mysql.NewNotificationRepository(db)
	shipmentRepo := mysql.NewShipmentRepository(db)
	addressRepo := mysql.NewAddressRepository(db)
	auditRepo := mysql.NewAuditRepository(db)

	clk := clock.System{}
	publisher := mq.NewPublisher(mqConn, mq.AuctionEventsQueue)
	notifySvc := service.NewNotificationService(notificationRepo, publisher)
	paymentSvc := service.NewPaymentService(paymentRepo, auctionRepo, userRepo, museRepo,
		shipmentRepo, addressRepo, auditRepo, notifySvc, cfg.Auction, cfg.Shipping, clk)
	lifecycleSvc := service.NewLifecycleService(auctionRepo, paymentSvc, cfg.Auction, clk)
	auctionSvc := service.NewAuctionService(auctionRepo, bidRepo, museRepo, userRepo, auditRepo,
		lifecycleSvc, paymentSvc, cfg.Auction, clk)
	museSvc := service.NewMuseService(museRepo, auctionRepo, auditRepo)
	userSvc := service.NewUserService(userRepo, auditRepo, &cfg.JWT, clk)

	ring := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	tokenCache := auth.NewTokenCache(redisClient, ring,
		time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)

	app.Get("/metrics", iris.FromStd(promhttp.Handler()))

	api := app.Party("/api", authMiddleware(cfg, tokenCache), adminOnly())

	adminID := func(ctx iris.Context) int64 {
		return ctx.Values().GetInt64Default("user_id", 0)
	}

	// ---------- dashboard ----------

	api.Get("/stats", func(ctx iris.Context) {
		auctions, err := auctionSvc.Stats(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		orders, err := paymentSvc.Stats(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"auctions": auctions, "orders": orders}})
	})

	// ---------- auction management ----------

	api.Get("/auctions", func(ctx iris.Context) {
		list, err := auctionSvc.ListAll(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Post("/auctions", func(ctx iris.Context) {
		var req struct {
			MuseID          int64   `json:"muse_id"`
			Title           string  `json:"title"`
			Description     string  `json:"description"`
			Category        string  `json:"category"`
			WearDuration    string  `json:"wear_duration"`
			Image           string  `json:"image"`
			StartingBid     float64 `json:"starting_bid"`
			DurationMinutes int64   `json:"duration_minutes"`
			Draft           bool    `json:"draft"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		a, err := auctionSvc.Create(ctx.Request().Context(), service.CreateInput{
			MuseID:       req.MuseID,
			Title:        req.Title,
			Description:  req.Description,
			Category:     req.Category,
			WearDuration: req.WearDuration,
			Image:        req.Image,
			StartingBid:  decimal.NewFromFloat(req.StartingBid),
			Duration:     time.Duration(req.DurationMinutes) * time.Minute,
			Draft:        req.Draft,
		}, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": a})
	})

	api.Put("/auctions/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Title        *string  `json:"title"`
			Description  *string  `json:"description"`
			Category     *string  `json:"category"`
			WearDuration *string  `json:"wear_duration"`
			Image        *string  `json:"image"`
			StartingBid  *float64 `json:"starting_bid"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		in := service.UpdateInput{
			Title:        req.Title,
			Description:  req.Description,
			Category:     req.Category,
			WearDuration: req.WearDuration,
			Image:        req.Image,
		}
		if req.StartingBid != nil {
			v := decimal.NewFromFloat(*req.StartingBid)
			in.StartingBid = &v
		}
		a, err := auctionSvc.Update(ctx.Request().Context(), int64(id), in, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": a})
	})

	api.Post("/auctions/{id:uint64}/publish", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			DurationMinutes int64 `json:"duration_minutes"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		a, err := auctionSvc.Publish(ctx.Request().Context(), int64(id),
			time.Duration(req.DurationMinutes)*time.Minute, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": a})
	})

	api.Post("/auctions/{id:uint64}/extend", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Minutes int64 `json:"minutes"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		a, err := auctionSvc.Extend(ctx.Request().Context(), int64(id),
			time.Duration(req.Minutes)*time.Minute, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": a})
	})

	api.Post("/auctions/{id:uint64}/end", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		a, err := lifecycleSvc.EndNow(ctx.Request().Context(), int64(id))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": a})
	})

	api.Get("/auctions/{id:uint64}/bids", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		list, err := auctionSvc.BidsFor(ctx.Request().Context(), int64(id))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// ---------- muse management ----------

	api.Get("/muses", func(ctx iris.Context) {
		list, err := museSvc.List(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Post("/muses", func(ctx iris.Context) {
		var req struct {
			DisplayName string `json:"display_name"`
			Bio         string `json:"bio"`
			AvatarURL   string `json:"avatar_url"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		m, err := museSvc.Create(ctx.Request().Context(), req.DisplayName, req.Bio, req.AvatarURL, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": m})
	})

	api.Put("/muses/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			DisplayName string `json:"display_name"`
			Bio         string `json:"bio"`
			AvatarURL   string `json:"avatar_url"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		m, err := museSvc.Update(ctx.Request().Context(), int64(id), req.DisplayName, req.Bio, req.AvatarURL, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": m})
	})

	api.Post("/muses/{id:uint64}/verify", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		m, err := museSvc.Verify(ctx.Request().Context(), int64(id), adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": m})
	})

	// ---------- order pipeline ----------

	api.Get("/orders", func(ctx iris.Context) {
		list, err := paymentSvc.ListOrders(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Get("/orders/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		detail, err := paymentSvc.OrderByID(ctx.Request().Context(), int64(id))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": detail})
	})

	api.Post("/orders", func(ctx iris.Context) {
		var req struct {
			AuctionID int64   `json:"auction_id"`
			BuyerID   int64   `json:"buyer_id"`
			Amount    float64 `json:"amount"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		p, err := paymentSvc.CreateManual(ctx.Request().Context(), req.AuctionID, req.BuyerID,
			decimal.NewFromFloat(req.Amount), adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	api.Post("/orders/{id:uint64}/mark-paid", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		p, err := paymentSvc.MarkPaid(ctx.Request().Context(), int64(id), adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	api.Post("/orders/{id:uint64}/ship", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Carrier        string `json:"carrier"`
			TrackingNumber string `json:"tracking_number"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if req.TrackingNumber == "" {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "tracking_number is required"})
			return
		}
		if err := paymentSvc.Ship(ctx.Request().Context(), int64(id), req.Carrier, req.TrackingNumber, adminID(ctx)); err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "shipped"})
	})

	api.Post("/orders/{id:uint64}/deliver", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		if err := paymentSvc.Deliver(ctx.Request().Context(), int64(id), adminID(ctx)); err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "delivered"})
	})

	api.Put("/orders/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Status         string `json:"status"`
			TrackingNumber string `json:"tracking_number"`
			Carrier        string `json:"carrier"`
			Notes          string `json:"notes"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		p, err := paymentSvc.Edit(ctx.Request().Context(), int64(id), service.EditOrderInput{
			Status:         req.Status,
			TrackingNumber: req.TrackingNumber,
			Carrier:        req.Carrier,
			Notes:          req.Notes,
		}, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	api.Delete("/orders/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		if err := paymentSvc.Delete(ctx.Request().Context(), int64(id), adminID(ctx)); err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "deleted"})
	})

	// ---------- user management ----------

	api.Get("/users", func(ctx iris.Context) {
		filter := user.ListFilter{
			Search: ctx.URLParam("q"),
			Role:   ctx.URLParam("role"),
			Status: ctx.URLParam("status"),
		}
		list, err := userSvc.List(ctx.Request().Context(), filter)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		counts, err := userSvc.Counts(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"users": list, "counts": counts}})
	})

	api.Post("/users", func(ctx iris.Context) {
		var req struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"display_name"`
			Role        string `json:"role"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if req.Role == "" {
			req.Role = user.RoleBuyer
		}
		u, err := userSvc.AdminCreate(ctx.Request().Context(), req.Email, req.Password, req.DisplayName, req.Role, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": u})
	})

	api.Put("/users/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			DisplayName string `json:"display_name"`
			Email       string `json:"email"`
			Role        string `json:"role"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, err := userSvc.AdminEdit(ctx.Request().Context(), int64(id), req.DisplayName, req.Email, req.Role, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": u})
	})

	api.Post("/users/{id:uint64}/reset-password", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			NewPassword string `json:"new_password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := userSvc.ResetPassword(ctx.Request().Context(), int64(id), req.NewPassword, adminID(ctx)); err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "password reset"})
	})

	api.Post("/users/{id:uint64}/active", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Active bool `json:"active"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, err := userSvc.SetActive(ctx.Request().Context(), int64(id), req.Active, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": u})
	})

	api.Post("/users/{id:uint64}/role", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Role string `json:"role"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, err := userSvc.SetRole(ctx.Request().Context(), int64(id), req.Role, adminID(ctx))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": u})
	})
}
