// Package executor implements the auction executor (spec C6, §4.6): a
// periodic tick that scans queued transfers, groups them by
// destination domain, and within each domain sequentially selects a
// bid, checks liquidity, and dispatches to a relayer.
package executor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusbridge/sequencer/internal/auctioncache"
	"github.com/nexusbridge/sequencer/internal/chainreader"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/internal/hooks"
	"github.com/nexusbridge/sequencer/internal/liquiditycache"
	"github.com/nexusbridge/sequencer/internal/metrics"
	"github.com/nexusbridge/sequencer/internal/relay"
	"github.com/nexusbridge/sequencer/pkg/logger"
)

// NowFunc returns the current unix-seconds timestamp. Exposed as a
// var, mirroring auctioncache.NowFunc, so tests can pin auction age
// without a real sleep.
var NowFunc = func() int64 { return time.Now().Unix() }

// RelayerSource supplies the ordered relayer handles to dispatch
// through for one tick. Kept as a narrow interface (rather than
// depending on *relay.Registry directly) so tests can substitute a
// fixed list.
type RelayerSource interface {
	Ordered() []relay.Handle
}

// Executor is the periodic auction-dispatch loop (C6).
type Executor struct {
	auctions  *auctioncache.Cache
	liquidity *liquiditycache.Cache
	chain     chainreader.ChainReader
	relayers  RelayerSource
	selector  BidSelector
	cfg       *Config
	hooks     *hooks.Service
	metrics   *metrics.Metrics

	tickMu sync.Mutex // serializes ticks; a slow tick is never overlapped by the next timer fire
}

// New creates an executor. cfg may be nil for DefaultConfig. hookSvc
// and m may both be nil, in which case no lifecycle event is fired and
// no metric is recorded.
func New(auctions *auctioncache.Cache, liquidity *liquiditycache.Cache, chain chainreader.ChainReader, relayers RelayerSource, selector BidSelector, cfg *Config, hookSvc *hooks.Service, m *metrics.Metrics) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = validateConfig(cfg)
	if selector == nil {
		selector = NewUniformRandomSelector(time.Now().UnixNano())
	}
	return &Executor{
		auctions:  auctions,
		liquidity: liquidity,
		chain:     chain,
		relayers:  relayers,
		selector:  selector,
		cfg:       cfg,
		hooks:     hookSvc,
		metrics:   m,
	}
}

// Run drives the periodic tick until ctx is cancelled (spec §5
// "a single long-lived task driven by a timer"). Each tick's errors
// are logged, never returned, so one bad tick never stops the loop.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one full scan-group-dispatch pass (§4.6 steps 1-4). Every
// destination domain is processed concurrently; transfers within one
// domain are processed strictly in sequence (§4.6 "Why per-domain
// sequential").
func (e *Executor) Tick(ctx context.Context) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	log := logger.Executor()
	tickStart := time.Now()

	queued, err := e.auctions.GetQueuedTransfers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list queued transfers")
		return
	}
	if e.metrics != nil {
		defer func() { e.metrics.RecordTick(time.Since(tickStart), len(queued)) }()
	}
	if len(queued) == 0 {
		return
	}

	now := NowFunc()
	byDomain := make(map[domain.Domain][]domain.TransferID)
	for _, transferID := range queued {
		auction, ok, err := e.auctions.GetAuction(ctx, transferID)
		if err != nil {
			log.Error().Err(err).Str("transferId", transferID.Hex()).Msg("failed to read auction")
			continue
		}
		if !ok {
			// Status says Queued but the auction record is gone — an
			// invariant violation elsewhere in the system, not ours to fix.
			log.Error().Str("transferId", transferID.Hex()).Msg("queued status with no auction record")
			continue
		}

		elapsed := time.Duration(now-auction.Timestamp) * time.Second
		if elapsed <= e.cfg.AuctionWaitTime {
			continue
		}
		byDomain[auction.Destination] = append(byDomain[auction.Destination], transferID)
	}

	if len(byDomain) == 0 {
		return
	}

	sem := make(chan struct{}, e.cfg.MaxConcurrentDomains)
	var wg sync.WaitGroup
	for destination, transferIDs := range byDomain {
		wg.Add(1)
		go func(destination domain.Domain, transferIDs []domain.TransferID) {
			defer wg.Done()
			if e.cfg.MaxConcurrentDomains > 0 {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			e.processDomain(ctx, destination, transferIDs)
		}(destination, transferIDs)
	}
	wg.Wait()
}

// processDomain handles every transfer destined for one domain, in
// order, never concurrently — the serialization that makes the
// optimistic liquidity decrement safe (§4.6 "Why per-domain sequential").
func (e *Executor) processDomain(ctx context.Context, destination domain.Domain, transferIDs []domain.TransferID) {
	for _, transferID := range transferIDs {
		e.processTransfer(ctx, destination, transferID)
	}
}

func (e *Executor) processTransfer(ctx context.Context, destination domain.Domain, transferID domain.TransferID) {
	log := logger.Auction(transferID.Hex())

	bidData, ok, err := e.auctions.GetBidData(ctx, transferID)
	if err != nil {
		log.Error().Err(err).Msg("failed to read bid data")
		return
	}
	if !ok {
		// Structural error (§7): Auction exists without BidData. The
		// executor refuses to dispatch and leaves the transfer Queued.
		log.Error().Msg("auction has no bid data; invariant violation, skipping")
		return
	}

	auction, ok, err := e.auctions.GetAuction(ctx, transferID)
	if err != nil {
		log.Error().Err(err).Msg("failed to re-read auction")
		return
	}
	if !ok {
		return
	}

	eligible := auction.EligibleBids()
	if len(eligible) == 0 {
		log.Debug().Msg("no round-1 eligible bids, skipping this tick")
		return
	}

	candidates := e.selector.Select(eligible)

	relayers := e.relayers.Ordered()
	if len(relayers) == 0 {
		log.Warn().Msg("no relayers configured, skipping this tick")
		return
	}

	dispatchStart := time.Now()
	for _, bid := range candidates {
		_, ok := e.checkLiquidity(ctx, bid, destination, bidData, log)
		if !ok {
			continue
		}

		req := relay.SendRequest{
			Domain:           destination,
			DestAddress:      bidData.Recipient,
			Data:             bidData.CallData,
			Amount:           bidData.Amount,
			RelayerSignature: bid.FirstSignature(),
		}

		var taskID string
		var err error
		if e.metrics != nil {
			taskID, err = relay.Dispatch(ctx, relayers, req, e.metrics)
		} else {
			taskID, err = relay.Dispatch(ctx, relayers, req)
		}
		if err != nil {
			log.Warn().Err(err).Str("router", bid.Router.Hex()).Msg("dispatch failed for candidate, trying next")
			continue
		}

		liqKey := domain.RouterLiquidityKey{Router: bid.Router, Domain: destination, Asset: bidData.LocalAsset}
		if err := e.liquidity.Decrement(ctx, liqKey, bidData.Amount); err != nil {
			log.Error().Err(err).Msg("dispatch succeeded but liquidity decrement failed")
		}

		if _, err := e.auctions.SetStatus(ctx, transferID, domain.StatusSent); err != nil {
			log.Error().Err(err).Msg("dispatch succeeded but status update failed")
		}
		if _, err := e.auctions.UpsertTask(ctx, transferID, taskID); err != nil {
			log.Error().Err(err).Msg("dispatch succeeded but task upsert failed")
		}

		if e.hooks != nil {
			e.hooks.Fire(ctx, hooks.Event{
				Type:        hooks.EventDispatchSucceeded,
				TransferID:  transferID.Hex(),
				Destination: destination,
				Router:      bid.Router.Hex(),
				TaskID:      taskID,
				Timestamp:   time.Now(),
			})
		}
		if e.metrics != nil {
			e.metrics.RecordDispatch(destination, "success", time.Since(dispatchStart))
			e.metrics.RecordAuction("sent", destination, time.Duration(NowFunc()-auction.Timestamp)*time.Second)
		}

		log.Info().Str("router", bid.Router.Hex()).Str("taskId", taskID).Msg("auction dispatched")
		return
	}

	// Bridging a bridgeerr.KindRelayerSendFailed into a no-op here is
	// deliberate (§7 "Fatal dispatch... The caller (the executor)
	// swallows this and logs"); the transfer remains Queued for the
	// next tick.
	if e.hooks != nil {
		e.hooks.Fire(ctx, hooks.Event{
			Type:        hooks.EventDispatchFailed,
			TransferID:  transferID.Hex(),
			Destination: destination,
			Reason:      "all candidates exhausted without a successful dispatch",
			Timestamp:   time.Now(),
		})
	}
	if e.metrics != nil {
		e.metrics.RecordDispatch(destination, "failure", time.Since(dispatchStart))
	}
	log.Warn().Msg("no candidate dispatched this tick, transfer remains queued")
}

// checkLiquidity reads cached liquidity for bid's router, refreshing
// from the chain reader on a miss, and reports whether it covers the
// required amount (§4.6 step d).
func (e *Executor) checkLiquidity(ctx context.Context, bid *domain.Bid, destination domain.Domain, bidData *domain.BidData, log zerolog.Logger) (*big.Int, bool) {
	key := domain.RouterLiquidityKey{Router: bid.Router, Domain: destination, Asset: bidData.LocalAsset}

	cached, ok, err := e.liquidity.GetLiquidity(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("router", bid.Router.Hex()).Msg("liquidity cache read failed, skipping candidate")
		return nil, false
	}
	if e.metrics != nil {
		e.metrics.RecordLiquidityCacheResult(destination, ok)
	}
	if !ok {
		cached, ok, err = e.liquidity.RefreshFromChain(ctx, e.chain, key)
		if err != nil {
			if e.metrics != nil {
				e.metrics.RecordLiquidityRefresh("error")
			}
			log.Warn().Err(err).Str("router", bid.Router.Hex()).Msg("liquidity refresh from chain failed, skipping candidate")
			return nil, false
		}
		if !ok {
			if e.metrics != nil {
				e.metrics.RecordLiquidityRefresh("not_found")
			}
			log.Warn().Str("router", bid.Router.Hex()).Msg("router not found in indexer, skipping candidate")
			return nil, false
		}
		if e.metrics != nil {
			e.metrics.RecordLiquidityRefresh("ok")
		}
	}

	if cached.Cmp(bidData.Amount) < 0 {
		log.Debug().Str("router", bid.Router.Hex()).Msg("insufficient liquidity, skipping candidate")
		return nil, false
	}

	return cached, true
}
