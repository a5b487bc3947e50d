package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/auth"
	"github.com/example/museauction/internal/clock"
	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/address"
	"github.com/example/museauction/internal/datamodels/audit"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/muse"
	"github.com/example/museauction/internal/datamodels/notification"
	"github.com/example/museauction/internal/datamodels/payment"
	"github.com/example/museauction/internal/datamodels/shipment"
	"github.com/example/museauction/internal/datamodels/user"
	"github.com/example/museauction/internal/metrics"
)

// Payment processors.
const (
	ProcessorCard   = "card"
	ProcessorCrypto = "crypto"
	ProcessorManual = "manual"
)

// PaymentPage is everything the payment screen needs: the obligation, its
// auction, the buyer's saved address and the shipping quote. Deadline is
// advisory; an overdue payment still goes through.
type PaymentPage struct {
	Payment      *payment.Payment  `json:"payment"`
	Auction      *auction.Auction  `json:"auction"`
	Address      *address.Address  `json:"address"`
	ShippingCost decimal.Decimal   `json:"shipping_cost"`
	Deadline     time.Time         `json:"deadline"`
	Overdue      bool              `json:"overdue"`
}

// OrderView is a payment joined with its auction, buyer and shipment for the
// admin pipeline.
type OrderView struct {
	Payment      *payment.Payment   `json:"payment"`
	AuctionTitle string             `json:"auction_title"`
	BuyerName    string             `json:"buyer_name"`
	BuyerEmail   string             `json:"buyer_email"`
	Shipment     *shipment.Shipment `json:"shipment,omitempty"`
}

// OrderDetail adds the audit trail to an order view.
type OrderDetail struct {
	OrderView
	History []*audit.WithAdmin `json:"history"`
}

// OrderStats is the admin pipeline summary.
type OrderStats struct {
	PendingReview   int64           `json:"pending_review"`
	AwaitingPayment int64           `json:"awaiting_payment"`
	Paid            int64           `json:"paid"`
	Shipped         int64           `json:"shipped"`
	Completed       int64           `json:"completed"`
	Revenue         decimal.Decimal `json:"revenue"`
}

// PaymentService issues payment obligations to auction winners and drives
// them through the fulfillment pipeline.
type PaymentService struct {
	paymentRepo   payment.Repository
	auctionRepo   auction.Repository
	userRepo      user.Repository
	museRepo      muse.Repository
	shipmentRepo  shipment.Repository
	addressRepo   address.Repository
	auditRepo     audit.Repository
	notifications *NotificationService
	auctionCfg    config.AuctionConfig
	shippingCfg   config.ShippingConfig
	clock         clock.Clock
}

func NewPaymentService(
	paymentRepo payment.Repository,
	auctionRepo auction.Repository,
	userRepo user.Repository,
	museRepo muse.Repository,
	shipmentRepo shipment.Repository,
	addressRepo address.Repository,
	auditRepo audit.Repository,
	notifications *NotificationService,
	auctionCfg config.AuctionConfig,
	shippingCfg config.ShippingConfig,
	clk clock.Clock,
) *PaymentService {
	if clk == nil {
		clk = clock.System{}
	}
	return &PaymentService{
		paymentRepo:   paymentRepo,
		auctionRepo:   auctionRepo,
		userRepo:      userRepo,
		museRepo:      museRepo,
		shipmentRepo:  shipmentRepo,
		addressRepo:   addressRepo,
		auditRepo:     auditRepo,
		notifications: notifications,
		auctionCfg:    auctionCfg,
		shippingCfg:   shippingCfg,
		clock:         clk,
	}
}

// IssueForAuction creates the payment obligation for an ended auction's
// winner. Idempotent: a second call (or a concurrent one, via the unique
// index on auction_id) returns the existing record. Auctions that ended with
// no bids get nothing.
func (s *PaymentService) IssueForAuction(ctx context.Context, auctionID int64) (*payment.Payment, error) {
	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if !a.HasWinner() {
		return nil, nil
	}
	// Callers normally end the auction first; if one didn't, the obligation
	// still implies the auction is over.
	if a.Status == auction.StatusLive {
		if err := s.auctionRepo.UpdateStatus(ctx, auctionID, auction.StatusEnded); err != nil {
			return nil, err
		}
	}

	if existing, err := s.paymentRepo.GetByAuctionID(ctx, auctionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	token, err := auth.NewURLToken(32)
	if err != nil {
		return nil, err
	}
	p := &payment.Payment{
		AuctionID: a.ID,
		BuyerID:   *a.CurrentBidderID,
		Amount:    a.CurrentBid.Decimal,
		Status:    payment.StatusAwaitingPayment,
		Token:     token,
	}
	if err := s.paymentRepo.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against another issuer; theirs stands.
			return s.paymentRepo.GetByAuctionID(ctx, auctionID)
		}
		return nil, err
	}
	metrics.PaymentsIssued.Inc()

	hours := int(s.auctionCfg.PaymentWindow / time.Hour)
	if s.notifications != nil {
		if err := s.notifications.Notify(ctx, p.BuyerID, notification.TypeAuctionWon,
			"You won: "+a.Title,
			fmt.Sprintf("Your winning bid of $%s was accepted. Complete payment within %d hours.",
				p.Amount.StringFixed(2), hours),
			"/pay/"+p.Token); err != nil {
			zap.L().Warn("winner notification failed", zap.Int64("payment_id", p.ID), zap.Error(err))
		}
	}

	zap.L().Info("payment issued",
		zap.Int64("auction_id", a.ID),
		zap.Int64("buyer_id", p.BuyerID),
		zap.String("amount", p.Amount.StringFixed(2)))
	return p, nil
}

// PageForBuyer resolves a payment link for its owner. Unknown tokens and
// foreign buyers both come back as errors; the page includes the shipping
// quote for the buyer's saved address.
func (s *PaymentService) PageForBuyer(ctx context.Context, token string, buyerID int64) (*PaymentPage, error) {
	p, err := s.paymentRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	a, err := s.auctionRepo.GetByID(ctx, p.AuctionID)
	if err != nil {
		return nil, err
	}

	page := &PaymentPage{
		Payment:      p,
		Auction:      a,
		ShippingCost: s.shippingCfg.Default,
		Deadline:     p.CreatedAt.Add(s.auctionCfg.PaymentWindow),
	}
	page.Overdue = s.clock.Now().After(page.Deadline)

	addr, err := s.addressRepo.GetDefault(ctx, buyerID)
	if err == nil {
		page.Address = addr
		page.ShippingCost = s.shippingCfg.RateFor(addr.Country)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return page, nil
}

// SaveAddress stores the buyer's shipping address as their new default.
func (s *PaymentService) SaveAddress(ctx context.Context, a *address.Address) error {
	return s.addressRepo.SaveDefault(ctx, a)
}

// ProcessCard runs the simulated card charge for a payment link and settles
// it immediately.
func (s *PaymentService) ProcessCard(ctx context.Context, token string, buyerID int64) (*payment.Payment, error) {
	p, err := s.ownedAwaiting(ctx, token, buyerID)
	if err != nil {
		return nil, err
	}
	p.Processor = ProcessorCard
	p.ProcessorTxn = "ch_" + uuid.NewString()
	if err := s.settle(ctx, p, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// ConfirmCrypto records a claimed on-chain transfer. The payment parks in
// pending until an admin verifies the transaction and marks it paid.
func (s *PaymentService) ConfirmCrypto(ctx context.Context, token string, buyerID int64, txnRef string) (*payment.Payment, error) {
	p, err := s.ownedAwaiting(ctx, token, buyerID)
	if err != nil {
		return nil, err
	}
	p.Processor = ProcessorCrypto
	p.ProcessorTxn = txnRef
	p.Status = payment.StatusPending
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	if s.notifications != nil {
		_ = s.notifications.Notify(ctx, p.BuyerID, notification.TypePaymentPending,
			"Payment under review",
			"Your crypto payment is being verified. You'll be notified once it clears.",
			"/pay/"+p.Token)
	}
	return p, nil
}

func (s *PaymentService) ownedAwaiting(ctx context.Context, token string, buyerID int64) (*payment.Payment, error) {
	p, err := s.paymentRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if p.Status != payment.StatusAwaitingPayment {
		return nil, ErrNotFound
	}
	return p, nil
}

// MarkPaid settles a payment from the admin side, typically after verifying
// a pending crypto transfer.
func (s *PaymentService) MarkPaid(ctx context.Context, paymentID int64, adminID int64) (*payment.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.Status != payment.StatusAwaitingPayment && p.Status != payment.StatusPending {
		return nil, ErrNotFound
	}
	if p.Processor == "" {
		p.Processor = ProcessorManual
	}
	if err := s.settle(ctx, p, &adminID); err != nil {
		return nil, err
	}
	return p, nil
}

// settle flips the payment to paid, advances the auction, opens the
// shipment and notifies the buyer.
func (s *PaymentService) settle(ctx context.Context, p *payment.Payment, adminID *int64) error {
	now := s.clock.Now()
	p.Status = payment.StatusPaid
	p.CompletedAt = &now
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return err
	}
	if err := s.auctionRepo.UpdateStatus(ctx, p.AuctionID, auction.StatusPaid); err != nil {
		return err
	}

	a, err := s.auctionRepo.GetByID(ctx, p.AuctionID)
	if err == nil {
		if err := s.museRepo.IncrementSales(ctx, a.MuseID); err != nil {
			zap.L().Warn("increment muse sales failed", zap.Int64("muse_id", a.MuseID), zap.Error(err))
		}
	}

	destination := ""
	cost := s.shippingCfg.Default
	if addr, err := s.addressRepo.GetDefault(ctx, p.BuyerID); err == nil {
		destination = addr.Country
		cost = s.shippingCfg.RateFor(addr.Country)
	}
	sh := &shipment.Shipment{
		PaymentID:    p.ID,
		Status:       shipment.StatusPreparing,
		Destination:  destination,
		ShippingCost: cost,
		Carrier:      "DHL",
	}
	if err := s.shipmentRepo.Create(ctx, sh); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	s.recordAudit(ctx, p.ID, "payment_settled", map[string]any{
		"processor": p.Processor,
		"amount":    p.Amount.StringFixed(2),
	}, adminID)

	if s.notifications != nil {
		_ = s.notifications.Notify(ctx, p.BuyerID, notification.TypePaymentConfirmed,
			"Payment confirmed",
			"Your payment was received. Your order is being prepared for shipment.",
			"/pay/"+p.Token)
	}
	return nil
}

// Ship records carrier and tracking and moves the order to shipped.
func (s *PaymentService) Ship(ctx context.Context, paymentID int64, carrier, trackingNumber string, adminID int64) error {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.Status != payment.StatusPaid {
		return ErrNotFound
	}

	now := s.clock.Now()
	sh, err := s.shipmentRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		sh = &shipment.Shipment{PaymentID: paymentID, ShippingCost: s.shippingCfg.Default}
		if err := s.shipmentRepo.Create(ctx, sh); err != nil {
			return err
		}
	}
	if carrier != "" {
		sh.Carrier = carrier
	}
	sh.TrackingNumber = trackingNumber
	sh.Status = shipment.StatusShipped
	sh.ShippedAt = &now
	if err := s.shipmentRepo.Update(ctx, sh); err != nil {
		return err
	}

	p.Status = payment.StatusShipped
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return err
	}
	if err := s.auctionRepo.UpdateStatus(ctx, p.AuctionID, auction.StatusShipped); err != nil {
		return err
	}

	s.recordAudit(ctx, p.ID, "order_shipped", map[string]any{
		"carrier":  sh.Carrier,
		"tracking": trackingNumber,
	}, &adminID)

	if s.notifications != nil {
		_ = s.notifications.Notify(ctx, p.BuyerID, notification.TypeOrderShipped,
			"Order shipped",
			fmt.Sprintf("Your order is on its way via %s. Tracking: %s", sh.Carrier, trackingNumber),
			"/pay/"+p.Token)
	}
	return nil
}

// Deliver closes out a shipped order.
func (s *PaymentService) Deliver(ctx context.Context, paymentID int64, adminID int64) error {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.Status != payment.StatusShipped {
		return ErrNotFound
	}

	now := s.clock.Now()
	if sh, err := s.shipmentRepo.GetByPaymentID(ctx, paymentID); err == nil {
		sh.Status = shipment.StatusDelivered
		sh.DeliveredAt = &now
		if err := s.shipmentRepo.Update(ctx, sh); err != nil {
			return err
		}
	}

	p.Status = payment.StatusCompleted
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return err
	}
	if err := s.auctionRepo.UpdateStatus(ctx, p.AuctionID, auction.StatusCompleted); err != nil {
		return err
	}

	s.recordAudit(ctx, p.ID, "order_delivered", nil, &adminID)

	if s.notifications != nil {
		_ = s.notifications.Notify(ctx, p.BuyerID, notification.TypeOrderDelivered,
			"Order delivered",
			"Your order has been delivered. Enjoy!",
			"/pay/"+p.Token)
	}
	return nil
}

// EditOrderInput carries the admin order-edit form. Empty fields leave the
// record alone.
type EditOrderInput struct {
	Status         string
	TrackingNumber string
	Carrier        string
	Notes          string
}

func validPaymentStatus(status string) bool {
	switch status {
	case payment.StatusAwaitingPayment, payment.StatusPending, payment.StatusPaid,
		payment.StatusShipped, payment.StatusCompleted:
		return true
	}
	return false
}

// Edit overrides order state from the admin screen: status (synced onto the
// auction), shipment tracking and carrier, notes. Every change lands in the
// audit trail as a from/to diff.
func (s *PaymentService) Edit(ctx context.Context, paymentID int64, in EditOrderInput, adminID int64) (*payment.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	changes := map[string]any{}
	if in.Status != "" && in.Status != p.Status {
		if !validPaymentStatus(in.Status) {
			return nil, ErrInvalidAmount
		}
		changes["status"] = map[string]string{"from": p.Status, "to": in.Status}
		p.Status = in.Status
		if in.Status == payment.StatusPaid && p.CompletedAt == nil {
			now := s.clock.Now()
			p.CompletedAt = &now
		}
		if err := s.auctionRepo.UpdateStatus(ctx, p.AuctionID, in.Status); err != nil {
			return nil, err
		}
	}
	if in.Notes != p.AdminNotes {
		changes["notes"] = in.Notes
		p.AdminNotes = in.Notes
	}
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	if sh, err := s.shipmentRepo.GetByPaymentID(ctx, paymentID); err == nil {
		dirty := false
		if in.TrackingNumber != "" && in.TrackingNumber != sh.TrackingNumber {
			changes["tracking_number"] = map[string]string{"from": sh.TrackingNumber, "to": in.TrackingNumber}
			sh.TrackingNumber = in.TrackingNumber
			dirty = true
		}
		if in.Carrier != "" && in.Carrier != sh.Carrier {
			changes["carrier"] = map[string]string{"from": sh.Carrier, "to": in.Carrier}
			sh.Carrier = in.Carrier
			dirty = true
		}
		if dirty {
			if err := s.shipmentRepo.Update(ctx, sh); err != nil {
				return nil, err
			}
		}
	}

	if len(changes) > 0 {
		s.recordAudit(ctx, p.ID, "payment_edited", changes, &adminID)
	}
	return p, nil
}

// Delete removes an unpaid payment and everything hanging off it. Orders that
// took money are immutable; only awaiting_payment ones can go.
func (s *PaymentService) Delete(ctx context.Context, paymentID int64, adminID int64) error {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.Status != payment.StatusAwaitingPayment {
		return ErrForbidden
	}
	if err := s.shipmentRepo.DeleteByPaymentID(ctx, paymentID); err != nil {
		return err
	}
	if s.notifications != nil && p.Token != "" {
		if err := s.notifications.repo.DeleteByLinkFragment(ctx, p.Token); err != nil {
			zap.L().Warn("purge payment notifications failed", zap.Int64("payment_id", paymentID), zap.Error(err))
		}
	}
	if err := s.paymentRepo.Delete(ctx, paymentID); err != nil {
		return err
	}
	if err := s.auctionRepo.UpdateStatus(ctx, p.AuctionID, auction.StatusEnded); err != nil {
		return err
	}
	s.recordAudit(ctx, paymentID, "payment_deleted", map[string]any{
		"auction_id": p.AuctionID,
		"amount":     p.Amount.StringFixed(2),
	}, &adminID)
	return nil
}

// CreateManual issues a payment outside the normal settlement flow, for
// auctions resolved off-platform.
func (s *PaymentService) CreateManual(ctx context.Context, auctionID, buyerID int64, amount decimal.Decimal, adminID int64) (*payment.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if _, err := s.auctionRepo.GetByID(ctx, auctionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	token, err := auth.NewURLToken(32)
	if err != nil {
		return nil, err
	}
	p := &payment.Payment{
		AuctionID: auctionID,
		BuyerID:   buyerID,
		Amount:    amount,
		Processor: ProcessorManual,
		Status:    payment.StatusAwaitingPayment,
		Token:     token,
	}
	if err := s.paymentRepo.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	metrics.PaymentsIssued.Inc()
	s.recordAudit(ctx, p.ID, "payment_created_manually", map[string]any{
		"auction_id": auctionID,
		"buyer_id":   buyerID,
		"amount":     amount.StringFixed(2),
	}, &adminID)
	return p, nil
}

// ListOrders returns the full pipeline in fulfillment order.
func (s *PaymentService) ListOrders(ctx context.Context) ([]*OrderView, error) {
	payments, err := s.paymentRepo.ListPipelineOrder(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*OrderView, 0, len(payments))
	for _, p := range payments {
		out = append(out, s.assembleView(ctx, p))
	}
	return out, nil
}

// OrderByID returns a single order with its audit history.
func (s *PaymentService) OrderByID(ctx context.Context, paymentID int64) (*OrderDetail, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	detail := &OrderDetail{OrderView: *s.assembleView(ctx, p)}
	history, err := s.auditRepo.ListByEntity(ctx, "payment", paymentID)
	if err != nil {
		return nil, err
	}
	detail.History = history
	return detail, nil
}

// ListWinsByBuyer returns the buyer's payments, newest first.
func (s *PaymentService) ListWinsByBuyer(ctx context.Context, buyerID int64) ([]*OrderView, error) {
	payments, err := s.paymentRepo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	out := make([]*OrderView, 0, len(payments))
	for _, p := range payments {
		out = append(out, s.assembleView(ctx, p))
	}
	return out, nil
}

func (s *PaymentService) assembleView(ctx context.Context, p *payment.Payment) *OrderView {
	view := &OrderView{Payment: p}
	if a, err := s.auctionRepo.GetByID(ctx, p.AuctionID); err == nil {
		view.AuctionTitle = a.Title
	}
	if u, err := s.userRepo.GetByID(ctx, p.BuyerID); err == nil {
		view.BuyerName = u.DisplayName
		view.BuyerEmail = u.Email
	}
	if sh, err := s.shipmentRepo.GetByPaymentID(ctx, p.ID); err == nil {
		view.Shipment = sh
	}
	return view
}

// Stats summarizes the pipeline for the admin dashboard. Revenue counts
// money actually collected: paid, shipped and completed orders.
func (s *PaymentService) Stats(ctx context.Context) (*OrderStats, error) {
	stats := &OrderStats{Revenue: decimal.Zero}
	var err error
	if stats.PendingReview, err = s.paymentRepo.CountByStatus(ctx, payment.StatusPending); err != nil {
		return nil, err
	}
	if stats.AwaitingPayment, err = s.paymentRepo.CountByStatus(ctx, payment.StatusAwaitingPayment); err != nil {
		return nil, err
	}
	if stats.Paid, err = s.paymentRepo.CountByStatus(ctx, payment.StatusPaid); err != nil {
		return nil, err
	}
	if stats.Shipped, err = s.paymentRepo.CountByStatus(ctx, payment.StatusShipped); err != nil {
		return nil, err
	}
	if stats.Completed, err = s.paymentRepo.CountByStatus(ctx, payment.StatusCompleted); err != nil {
		return nil, err
	}
	if stats.Revenue, err = s.paymentRepo.SumAmountByStatus(ctx,
		payment.StatusPaid, payment.StatusShipped, payment.StatusCompleted); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *PaymentService) recordAudit(ctx context.Context, paymentID int64, action string, details map[string]any, adminID *int64) {
	body := ""
	if details != nil {
		raw, err := json.Marshal(details)
		if err == nil {
			body = string(raw)
		}
	}
	entry := &audit.Entry{
		EntityType: "payment",
		EntityID:   paymentID,
		Action:     action,
		Details:    body,
		AdminID:    adminID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		zap.L().Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
