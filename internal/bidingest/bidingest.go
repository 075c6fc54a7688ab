// Package bidingest implements bid ingestion (spec C4, §4.4): validate
// an inbound bid, attach it to the auction record, seed bid-data once,
// and publish NewBid on successful store.
package bidingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/nexusbridge/sequencer/internal/auctioncache"
	"github.com/nexusbridge/sequencer/internal/bridgeerr"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/internal/hooks"
	"github.com/nexusbridge/sequencer/internal/metrics"
	"github.com/nexusbridge/sequencer/pkg/cache"
	"github.com/nexusbridge/sequencer/pkg/logger"
)

// newBidChannel is the pub/sub channel bid ingestion publishes on
// after a successful store (spec §6).
const newBidChannel = "NewBid"

// Ingestor implements storeBid (§4.4) over an auction cache.
type Ingestor struct {
	auctions *auctioncache.Cache
	store    cache.Store
	hooks    *hooks.Service
	metrics  *metrics.Metrics
}

// New creates a bid ingestor over the given auction cache. store is
// the same underlying K/V store the auction cache wraps, used only
// for publishing NewBid — ingestion never bypasses auctioncache for
// reads or writes of auction state. hookSvc and m may both be nil, in
// which case no lifecycle event is fired and no metric is recorded.
func New(auctions *auctioncache.Cache, store cache.Store, hookSvc *hooks.Service, m *metrics.Metrics) *Ingestor {
	return &Ingestor{auctions: auctions, store: store, hooks: hookSvc, metrics: m}
}

// ValidateBid schema-validates a bid (§4.4 step 1). It is exported
// separately so the out-of-scope message-broker receiver can reject a
// malformed bid before ever calling StoreBid, mirroring the teacher's
// split between its request validator and its HTTP handler.
func ValidateBid(bid *domain.Bid) error {
	if bid == nil {
		return bridgeerr.InvalidParams("bid is nil")
	}
	if isZeroAddress(bid.Router) {
		return bridgeerr.InvalidParams("bid router address is zero")
	}
	if bid.Fee == nil {
		return bridgeerr.InvalidParams("bid fee is nil")
	}
	if bid.Fee.Sign() < 0 {
		return bridgeerr.InvalidParams("bid fee is negative")
	}
	if len(bid.Signatures) == 0 {
		return bridgeerr.InvalidParams("bid carries no signatures")
	}
	return nil
}

func isZeroAddress(a [20]byte) bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// StoreBid implements §4.4's five ordered steps. Concurrency: steps 2
// and 5 race safely against concurrent first-bid arrivals because the
// upsert merges and bid-data seeding is idempotent (§4.4 Ordering note).
func (i *Ingestor) StoreBid(ctx context.Context, transferID domain.TransferID, origin, destination domain.Domain, bid *domain.Bid, bidData *domain.BidData) error {
	if err := ValidateBid(bid); err != nil {
		return err
	}

	status, err := i.auctions.GetStatus(ctx, transferID)
	if err != nil {
		return fmt.Errorf("read status for %s: %w", transferID, err)
	}
	if !status.CanAcceptBid() {
		return bridgeerr.AuctionExpired(transferID.Hex())
	}

	result, err := i.auctions.UpsertAuction(ctx, transferID, origin, destination, bid)
	if err != nil {
		return fmt.Errorf("upsert auction %s: %w", transferID, err)
	}

	if status == domain.StatusNone {
		if err := i.auctions.SetBidData(ctx, transferID, bidData); err != nil {
			return fmt.Errorf("seed bid data for %s: %w", transferID, err)
		}
	}

	if _, err := i.auctions.SetStatus(ctx, transferID, domain.StatusQueued); err != nil {
		return fmt.Errorf("set status queued for %s: %w", transferID, err)
	}

	payload, err := json.Marshal(bid)
	if err != nil {
		return fmt.Errorf("encode bid for publish %s: %w", transferID, err)
	}
	if err := i.store.Publish(ctx, newBidChannel, string(payload)); err != nil {
		logger.Executor().Warn().Err(err).Str("transferId", transferID.Hex()).Msg("failed to publish NewBid")
	}

	logger.Auction(transferID.Hex()).Debug().
		Bool("created", result.Created).
		Str("router", bid.Router.Hex()).
		Msg("bid stored")

	if i.hooks != nil {
		i.hooks.Fire(ctx, hooks.Event{
			Type:        hooks.EventBidAccepted,
			TransferID:  transferID.Hex(),
			Destination: destination,
			Router:      bid.Router.Hex(),
			Timestamp:   time.Now(),
		})
	}
	if i.metrics != nil {
		fee, _ := new(big.Float).SetInt(bid.Fee).Float64()
		i.metrics.RecordBid(destination, fee)
	}

	return nil
}
