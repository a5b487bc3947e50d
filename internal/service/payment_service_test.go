package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/museauction/internal/datamodels/address"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/muse"
	"github.com/example/museauction/internal/datamodels/notification"
	"github.com/example/museauction/internal/datamodels/payment"
	"github.com/example/museauction/internal/datamodels/shipment"
)

// endWithWinner runs an auction to a settled end and returns the issued payment.
func endWithWinner(t *testing.T, s *stack, buyerID int64, amount string) *payment.Payment {
	t.Helper()
	ctx := context.Background()
	m := s.seedMuse(t, "Luna-"+amount)
	a := s.seedAuction(t, m.ID, "10.00", time.Hour)
	_, err := s.bidding.PlaceBid(ctx, a.ID, buyerID, dec(t, amount), "")
	require.NoError(t, err)
	s.clock.Advance(2 * time.Hour)
	_, err = s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)
	p, err := s.payments.IssueForAuction(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestIssueForAuctionIdempotent(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")

	again, err := s.payments.IssueForAuction(ctx, p.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	var count int64
	require.NoError(t, s.db.Model(&payment.Payment{}).Where("auction_id = ?", p.AuctionID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIssueForAuctionNoWinner(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	ctx := context.Background()

	a := s.seedAuction(t, m.ID, "10.00", time.Hour)
	s.clock.Advance(2 * time.Hour)
	_, err := s.lifecycle.SweepExpired(ctx)
	require.NoError(t, err)

	p, err := s.payments.IssueForAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestIssueForAuctionEndsLiveAuction(t *testing.T) {
	s := newStack(t)
	m := s.seedMuse(t, "Luna")
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	a := s.seedAuction(t, m.ID, "10.00", time.Hour)
	_, err := s.bidding.PlaceBid(ctx, a.ID, buyer.ID, dec(t, "15.00"), "")
	require.NoError(t, err)

	// Issuing against a still-live auction closes it as a side effect.
	p, err := s.payments.IssueForAuction(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, buyer.ID, p.BuyerID)
	assert.Equal(t, auction.StatusEnded, s.reloadAuction(t, a.ID).Status)
}

func TestPageForBuyerAccessControl(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	other := s.seedUser(t, "other@example.com", "Other")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")

	_, err := s.payments.PageForBuyer(ctx, "no-such-token", buyer.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.payments.PageForBuyer(ctx, p.Token, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	page, err := s.payments.PageForBuyer(ctx, p.Token, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, page.Payment.ID)
	assert.False(t, page.Overdue)
	assert.True(t, page.Deadline.Equal(p.CreatedAt.Add(s.cfg.Auction.PaymentWindow)))
	// No saved address: quoted at the default rate.
	assert.True(t, page.ShippingCost.Equal(s.cfg.Shipping.Default))

	// Overdue is advisory only; the page still loads.
	s.clock.Advance(72 * time.Hour)
	page, err = s.payments.PageForBuyer(ctx, p.Token, buyer.ID)
	require.NoError(t, err)
	assert.True(t, page.Overdue)
}

func TestShippingQuoteUsesAddressCountry(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")

	require.NoError(t, s.payments.SaveAddress(ctx, &address.Address{
		UserID:       buyer.ID,
		FullName:     "Buyer Example",
		AddressLine1: "1 Main St",
		City:         "Tokyo",
		PostalCode:   "100-0001",
		Country:      "JP",
	}))

	page, err := s.payments.PageForBuyer(ctx, p.Token, buyer.ID)
	require.NoError(t, err)
	require.NotNil(t, page.Address)
	assert.True(t, page.ShippingCost.Equal(dec(t, "50.00")))

	// Saving a new default replaces the old one.
	require.NoError(t, s.payments.SaveAddress(ctx, &address.Address{
		UserID:       buyer.ID,
		FullName:     "Buyer Example",
		AddressLine1: "2 High St",
		City:         "London",
		PostalCode:   "E1 6AN",
		Country:      "GB",
	}))
	page, err = s.payments.PageForBuyer(ctx, p.Token, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, "2 High St", page.Address.AddressLine1)
	assert.True(t, page.ShippingCost.Equal(dec(t, "55.00")))
}

func TestProcessCardSettles(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")

	settled, err := s.payments.ProcessCard(ctx, p.Token, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, settled.Status)
	assert.Equal(t, ProcessorCard, settled.Processor)
	assert.NotEmpty(t, settled.ProcessorTxn)
	require.NotNil(t, settled.CompletedAt)

	a := s.reloadAuction(t, p.AuctionID)
	assert.Equal(t, auction.StatusPaid, a.Status)

	var sh shipment.Shipment
	require.NoError(t, s.db.Where("payment_id = ?", p.ID).First(&sh).Error)
	assert.Equal(t, shipment.StatusPreparing, sh.Status)

	var m muse.Profile
	require.NoError(t, s.db.First(&m, a.MuseID).Error)
	assert.Equal(t, int64(1), m.TotalSales)

	// Second attempt on the same link fails, the payment is no longer open.
	_, err = s.payments.ProcessCard(ctx, p.Token, buyer.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCryptoPendingThenMarkPaid(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	admin := s.seedUser(t, "admin@example.com", "Admin")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")

	pending, err := s.payments.ConfirmCrypto(ctx, p.Token, buyer.ID, "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, pending.Status)
	assert.Equal(t, ProcessorCrypto, pending.Processor)
	assert.Equal(t, "0xabc123", pending.ProcessorTxn)

	paid, err := s.payments.MarkPaid(ctx, p.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, paid.Status)
	assert.Equal(t, auction.StatusPaid, s.reloadAuction(t, p.AuctionID).Status)
}

func TestShipAndDeliver(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	admin := s.seedUser(t, "admin@example.com", "Admin")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")

	// Cannot ship before payment.
	err := s.payments.Ship(ctx, p.ID, "DHL", "TRK-1", admin.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.payments.ProcessCard(ctx, p.Token, buyer.ID)
	require.NoError(t, err)

	require.NoError(t, s.payments.Ship(ctx, p.ID, "FedEx", "TRK-1", admin.ID))
	var sh shipment.Shipment
	require.NoError(t, s.db.Where("payment_id = ?", p.ID).First(&sh).Error)
	assert.Equal(t, shipment.StatusShipped, sh.Status)
	assert.Equal(t, "FedEx", sh.Carrier)
	assert.Equal(t, "TRK-1", sh.TrackingNumber)
	require.NotNil(t, sh.ShippedAt)
	assert.Equal(t, auction.StatusShipped, s.reloadAuction(t, p.AuctionID).Status)

	require.NoError(t, s.payments.Deliver(ctx, p.ID, admin.ID))
	require.NoError(t, s.db.Where("payment_id = ?", p.ID).First(&sh).Error)
	assert.Equal(t, shipment.StatusDelivered, sh.Status)
	assert.Equal(t, auction.StatusCompleted, s.reloadAuction(t, p.AuctionID).Status)

	var final payment.Payment
	require.NoError(t, s.db.First(&final, p.ID).Error)
	assert.Equal(t, payment.StatusCompleted, final.Status)
}

func TestDeleteUnpaidOrderOnly(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	admin := s.seedUser(t, "admin@example.com", "Admin")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")
	require.NoError(t, s.payments.Delete(ctx, p.ID, admin.ID))

	var count int64
	require.NoError(t, s.db.Model(&payment.Payment{}).Where("id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, s.db.Model(&shipment.Shipment{}).Where("payment_id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, auction.StatusEnded, s.reloadAuction(t, p.AuctionID).Status)

	// The winner notification went with it.
	var notes int64
	require.NoError(t, s.db.Model(&notification.Notification{}).
		Where("link LIKE ?", "%"+p.Token+"%").Count(&notes).Error)
	assert.Zero(t, notes)

	// Re-issuance is possible again.
	again, err := s.payments.IssueForAuction(ctx, p.AuctionID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.NotEqual(t, p.ID, again.ID)

	// A settled order refuses deletion.
	_, err = s.payments.ProcessCard(ctx, again.Token, buyer.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.payments.Delete(ctx, again.ID, admin.ID), ErrForbidden)
}

func TestEditOrderOverrides(t *testing.T) {
	s := newStack(t)
	buyer := s.seedUser(t, "buyer@example.com", "Buyer")
	admin := s.seedUser(t, "admin@example.com", "Admin")
	ctx := context.Background()

	p := endWithWinner(t, s, buyer.ID, "42.00")
	_, err := s.payments.ProcessCard(ctx, p.Token, buyer.ID)
	require.NoError(t, err)

	edited, err := s.payments.Edit(ctx, p.ID, EditOrderInput{
		Status:         payment.StatusShipped,
		Carrier:        "UPS",
		TrackingNumber: "1Z999",
		Notes:          "expedited per buyer request",
	}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusShipped, edited.Status)
	assert.Equal(t, "expedited per buyer request", edited.AdminNotes)
	assert.Equal(t, auction.StatusShipped, s.reloadAuction(t, p.AuctionID).Status)

	var sh shipment.Shipment
	require.NoError(t, s.db.Where("payment_id = ?", p.ID).First(&sh).Error)
	assert.Equal(t, "UPS", sh.Carrier)
	assert.Equal(t, "1Z999", sh.TrackingNumber)

	_, err = s.payments.Edit(ctx, p.ID, EditOrderInput{Status: "bogus"}, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	detail, err := s.payments.OrderByID(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, detail.History, "edits land in the audit trail")
}

func TestPipelineStats(t *testing.T) {
	s := newStack(t)
	alice := s.seedUser(t, "alice@example.com", "Alice")
	bob := s.seedUser(t, "bob@example.com", "Bob")
	ctx := context.Background()

	open := endWithWinner(t, s, alice.ID, "30.00")
	paid := endWithWinner(t, s, bob.ID, "50.00")
	_, err := s.payments.ProcessCard(ctx, paid.Token, bob.ID)
	require.NoError(t, err)

	stats, err := s.payments.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AwaitingPayment)
	assert.Equal(t, int64(1), stats.Paid)
	assert.True(t, stats.Revenue.Equal(dec(t, "50.00")))

	orders, err := s.payments.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	// Fulfillment order: awaiting before paid.
	assert.Equal(t, open.ID, orders[0].Payment.ID)
	assert.Equal(t, "Alice", orders[0].BuyerName)
}
