package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/museauction/internal/auth"
	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/address"
	"github.com/example/museauction/internal/datamodels/user"
	"github.com/example/museauction/internal/infra/mq"
	"github.com/example/museauction/internal/infra/redis"
	"github.com/example/museauction/internal/middleware"
	"github.com/example/museauction/internal/repository/mysql"
	"github.com/example/museauction/internal/service"
)

// RegisterRoutes wires the buyer-facing JSON API.
func RegisterRoutes(app *iris.Application, cfg *config.Config) {
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
	biddingSvc := service.NewBiddingService(db, cfg.Auction, clk, paymentSvc, redisClient)
	auctionSvc := service.NewAuctionService(auctionRepo, bidRepo, museRepo, userRepo, auditRepo,
		lifecycleSvc, paymentSvc, cfg.Auction, clk)
	museSvc := service.NewMuseService(museRepo, auctionRepo, auditRepo)
	userSvc := service.NewUserService(userRepo, auditRepo, &cfg.JWT, clk)

	ring := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	tokenCache := auth.NewTokenCache(redisClient, ring,
		time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)

	api := app.Party("/api")

	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	api.Post("/register", func(ctx iris.Context) {
		var req struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"display_name"`
			DOB         string `json:"dob"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, token, err := userSvc.Register(ctx.Request().Context(), req.Email, req.Password, req.DisplayName, req.DOB)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"user": u, "token": token}})
	})

	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, token, err := userSvc.Login(ctx.Request().Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"user": u, "token": token}})
	})

	// Public browse endpoints.

	api.Get("/auctions", func(ctx iris.Context) {
		list, err := auctionSvc.ListHome(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Get("/auctions/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		listing, err := auctionSvc.GetListing(ctx.Request().Context(), int64(id))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": listing})
	})

	api.Get("/auction/{id:uint64}/status", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		snap, err := biddingSvc.Status(ctx.Request().Context(), int64(id))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": snap})
	})

	api.Get("/muses", func(ctx iris.Context) {
		list, err := museSvc.ListVerified(ctx.Request().Context())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Get("/muses/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		profile, auctions, err := museSvc.Get(ctx.Request().Context(), int64(id))
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"muse": profile, "auctions": auctions}})
	})

	// Authenticated endpoints.
	authAPI := api.Party("/", authMiddleware(cfg, tokenCache))

	authAPI.Post("/bid/{id:uint64}", middleware.BidRateLimit(), func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		userID := ctx.Values().GetInt64Default("user_id", 0)
		displayName := ctx.Values().GetStringDefault("display_name", "")

		var req struct {
			Amount json.Number `json:"amount"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		// An unparseable amount still runs the engine so the not-found and
		// not-active rejections keep precedence over invalid-amount.
		amount, err := decimal.NewFromString(req.Amount.String())
		if err != nil {
			amount = decimal.Zero
		}

		result, err := biddingSvc.PlaceBid(ctx.Request().Context(), int64(id), userID, amount, ctx.RemoteAddr())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}

		recent, err := bidRepo.ListRecentByAuction(ctx.Request().Context(), result.Auction.ID, cfg.Auction.RecentBids)
		if err != nil {
			// The bid already committed; render without the trailing window.
			zap.L().Warn("recent bids read failed", zap.Int64("auction_id", result.Auction.ID), zap.Error(err))
		}
		recentOut := make([]iris.Map, 0, len(recent))
		for _, b := range recent {
			recentOut = append(recentOut, iris.Map{
				"bidder": b.BidderName,
				"amount": b.Amount.StringFixed(2),
			})
		}
		minNext := result.Auction.LeadingPrice().Add(cfg.Auction.MinIncrement)
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{
			"current_bid": result.Auction.CurrentBid.Decimal.StringFixed(2),
			"bidder_name": displayName,
			"bid_count":   result.Auction.BidCount,
			"ends_at":     result.Auction.EndsAt,
			"min_next":    minNext.StringFixed(2),
			"extended":    result.Extended,
			"recent_bids": recentOut,
		}})
	})

	authAPI.Get("/dashboard", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		d, err := auctionSvc.DashboardFor(ctx.Request().Context(), userID)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": d})
	})

	// Payment flow, keyed by the unguessable token from the winner link.

	authAPI.Get("/pay/{token:string}", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		page, err := paymentSvc.PageForBuyer(ctx.Request().Context(), ctx.Params().GetString("token"), userID)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": page})
	})

	authAPI.Post("/pay/{token:string}/address", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		var req struct {
			FullName     string `json:"full_name"`
			AddressLine1 string `json:"address_line1"`
			AddressLine2 string `json:"address_line2"`
			City         string `json:"city"`
			State        string `json:"state"`
			PostalCode   string `json:"postal_code"`
			Country      string `json:"country"`
			Phone        string `json:"phone"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if req.FullName == "" || req.AddressLine1 == "" || req.City == "" || req.PostalCode == "" || len(req.Country) != 2 {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "incomplete address"})
			return
		}
		a := &address.Address{
			UserID:       userID,
			FullName:     req.FullName,
			AddressLine1: req.AddressLine1,
			AddressLine2: req.AddressLine2,
			City:         req.City,
			State:        req.State,
			PostalCode:   req.PostalCode,
			Country:      req.Country,
			Phone:        req.Phone,
		}
		if err := paymentSvc.SaveAddress(ctx.Request().Context(), a); err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": a})
	})

	authAPI.Post("/pay/{token:string}/card", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		p, err := paymentSvc.ProcessCard(ctx.Request().Context(), ctx.Params().GetString("token"), userID)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	authAPI.Post("/pay/{token:string}/crypto", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		var req struct {
			TxnRef string `json:"txn_ref"`
		}
		if err := ctx.ReadJSON(&req); err != nil || req.TxnRef == "" {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "txn_ref is required"})
			return
		}
		p, err := paymentSvc.ConfirmCrypto(ctx.Request().Context(), ctx.Params().GetString("token"), userID, req.TxnRef)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	authAPI.Get("/notifications", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		list, err := notifySvc.ListForUser(ctx.Request().Context(), userID, 20)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	authAPI.Get("/notifications/unread", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		n, err := notifySvc.UnreadCount(ctx.Request().Context(), userID)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"unread": n}})
	})

	authAPI.Post("/notifications/read-all", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		if err := notifySvc.MarkAllRead(ctx.Request().Context(), userID); err != nil {
			writeServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})
}

// authMiddleware validates the bearer token, consulting the sharded Redis
// claims cache before verifying signatures.
func authMiddleware(cfg *config.Config, cache *auth.TokenCache) iris.Handler {
	return func(ctx iris.Context) {
		token := ctx.GetHeader("Authorization")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
			return
		}

		claims, hit, err := cache.Get(ctx.Request().Context(), token)
		if err != nil || !hit {
			claims, err = auth.ParseToken(&cfg.JWT, token)
			if err != nil {
				ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
				return
			}
			_ = cache.Set(ctx.Request().Context(), token, claims)
		}

		ctx.Values().Set("user_id", claims.UserID)
		ctx.Values().Set("display_name", claims.DisplayName)
		ctx.Values().Set("role", claims.Role)
		ctx.Next()
	}
}

// adminOnly rejects non-admin sessions after authMiddleware has run.
func adminOnly() iris.Handler {
	return func(ctx iris.Context) {
		if ctx.Values().GetStringDefault("role", "") != user.RoleAdmin {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "admin only"})
			return
		}
		ctx.Next()
	}
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(ctx iris.Context, err error) {
	var tooLow *service.BidTooLowError
	switch {
	case errors.Is(err, service.ErrAuctionNotFound), errors.Is(err, service.ErrNotFound):
		ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": err.Error()})
	case errors.Is(err, service.ErrAuctionNotActive),
		errors.Is(err, service.ErrAuctionEnded),
		errors.Is(err, service.ErrInvalidAmount):
		ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
	case errors.As(err, &tooLow):
		ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": tooLow.Error(),
			"data": iris.Map{"min": tooLow.Min.StringFixed(2)}})
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrAccountDisabled):
		ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": err.Error()})
	case errors.Is(err, service.ErrBadCredentials):
		ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		ctx.StopWithJSON(409, iris.Map{"code": 409, "msg": err.Error()})
	default:
		ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
	}
}
