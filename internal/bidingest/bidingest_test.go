package bidingest

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/auctioncache"
	"github.com/nexusbridge/sequencer/internal/bridgeerr"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/pkg/cache"
)

func transfer(n byte) domain.TransferID {
	var h common.Hash
	h[31] = n
	return h
}

func router(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func validBid(r byte, fee int64) *domain.Bid {
	return &domain.Bid{
		Router:     router(r),
		Fee:        big.NewInt(fee),
		Signatures: map[string]string{"1": "sig"},
	}
}

func bidData() *domain.BidData {
	return &domain.BidData{
		Amount:           big.NewInt(1000),
		LocalAsset:       router(0xAA),
		DestinationAsset: router(0xBB),
		Recipient:        router(0xCC),
	}
}

func TestStoreBidFirstAcceptanceQueuesAndSeedsBidData(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	ing := New(auctions, store, nil, nil)

	id := transfer(1)
	if err := ing.StoreBid(ctx, id, "origin", "dest", validBid(1, 10), bidData()); err != nil {
		t.Fatal(err)
	}

	status, err := auctions.GetStatus(ctx, id)
	if err != nil || status != domain.StatusQueued {
		t.Fatalf("expected Queued, got %v err=%v", status, err)
	}

	bd, ok, err := auctions.GetBidData(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected bid data present, ok=%v err=%v", ok, err)
	}
	if bd.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected bid data: %+v", bd)
	}
}

func TestStoreBidRejectsInvalidBid(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	ing := New(auctions, store, nil, nil)

	bad := &domain.Bid{Router: router(1), Fee: big.NewInt(-1), Signatures: map[string]string{"1": "sig"}}
	err := ing.StoreBid(ctx, transfer(2), "origin", "dest", bad, bidData())
	if err == nil {
		t.Fatal("expected error for negative fee")
	}
	e, ok := err.(*bridgeerr.Error)
	if !ok || e.Kind != bridgeerr.KindInvalidParams {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}

func TestStoreBidRejectsAfterSent(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	ing := New(auctions, store, nil, nil)

	id := transfer(3)
	if err := ing.StoreBid(ctx, id, "origin", "dest", validBid(1, 10), bidData()); err != nil {
		t.Fatal(err)
	}
	if _, err := auctions.SetStatus(ctx, id, domain.StatusSent); err != nil {
		t.Fatal(err)
	}

	err := ing.StoreBid(ctx, id, "origin", "dest", validBid(2, 20), bidData())
	if err == nil {
		t.Fatal("expected AuctionExpired")
	}
	e, ok := err.(*bridgeerr.Error)
	if !ok || e.Kind != bridgeerr.KindAuctionExpired {
		t.Fatalf("expected AuctionExpired, got %v", err)
	}
}

func TestStoreBidSecondBidMergesWithoutReseedingBidData(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	ing := New(auctions, store, nil, nil)

	id := transfer(4)
	first := bidData()
	if err := ing.StoreBid(ctx, id, "origin", "dest", validBid(1, 10), first); err != nil {
		t.Fatal(err)
	}

	different := bidData()
	different.Amount = big.NewInt(999999)
	if err := ing.StoreBid(ctx, id, "origin", "dest", validBid(2, 20), different); err != nil {
		t.Fatal(err)
	}

	bd, _, _ := auctions.GetBidData(ctx, id)
	if bd.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("bid data should not have been overwritten by second bid, got %s", bd.Amount)
	}

	auction, _, _ := auctions.GetAuction(ctx, id)
	if len(auction.Bids) != 2 {
		t.Fatalf("expected 2 merged bids, got %d", len(auction.Bids))
	}
}

func TestStoreBidPublishesNewBid(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	ing := New(auctions, store, nil, nil)

	id := transfer(5)
	if err := ing.StoreBid(ctx, id, "origin", "dest", validBid(1, 10), bidData()); err != nil {
		t.Fatal(err)
	}

	published := store.Published()
	if len(published) != 1 || published[0].Channel != newBidChannel {
		t.Fatalf("expected one NewBid publish, got %+v", published)
	}
}
