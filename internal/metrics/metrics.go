package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the bid and lifecycle hot paths.
var (
	BidRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "museauction_bid_requests_total",
		Help: "Bid placement attempts received.",
	})

	BidsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "museauction_bids_accepted_total",
		Help: "Bids that passed validation and were recorded.",
	})

	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "museauction_bids_rejected_total",
		Help: "Bids rejected, by reason.",
	}, []string{"reason"})

	SnipeExtensions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "museauction_snipe_extensions_total",
		Help: "Late bids that pushed an auction deadline out.",
	})

	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "museauction_sweep_runs_total",
		Help: "Lifecycle sweeper executions.",
	})

	AuctionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "museauction_auctions_ended_total",
		Help: "Live auctions transitioned to ended.",
	})

	PaymentsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "museauction_payments_issued_total",
		Help: "Payment records created for auction winners.",
	})
)
