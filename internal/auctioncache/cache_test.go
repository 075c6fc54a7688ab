package auctioncache

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/bridgeerr"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/pkg/cache"
)

func transfer(n byte) domain.TransferID {
	var h common.Hash
	h[31] = n
	return h
}

func bid(router byte, fee int64, rounds ...string) *domain.Bid {
	var addr common.Address
	addr[19] = router
	sigs := make(map[string]string)
	for _, r := range rounds {
		sigs[r] = "sig-" + r
	}
	return &domain.Bid{Router: addr, Fee: big.NewInt(fee), Signatures: sigs}
}

func TestUpsertAuctionCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	NowFunc = func() int64 { return 1000 }

	id := transfer(1)

	res, err := c.UpsertAuction(ctx, id, "origin", "dest", bid(1, 100, "1"))
	if err != nil || !res.Created {
		t.Fatalf("first upsert: res=%+v err=%v", res, err)
	}

	res, err = c.UpsertAuction(ctx, id, "origin", "dest", bid(2, 200, "1"))
	if err != nil || res.Created {
		t.Fatalf("second upsert: res=%+v err=%v", res, err)
	}

	a, ok, err := c.GetAuction(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetAuction: ok=%v err=%v", ok, err)
	}
	if len(a.Bids) != 2 {
		t.Fatalf("expected 2 bids, got %d", len(a.Bids))
	}
	if a.Timestamp != 1000 {
		t.Fatalf("expected timestamp preserved, got %d", a.Timestamp)
	}
}

func TestUpsertAuctionTimestampImmutable(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	id := transfer(2)

	NowFunc = func() int64 { return 5000 }
	if _, err := c.UpsertAuction(ctx, id, "o", "d", bid(1, 1, "1")); err != nil {
		t.Fatal(err)
	}

	NowFunc = func() int64 { return 9999 }
	if _, err := c.UpsertAuction(ctx, id, "o", "d", bid(2, 1, "1")); err != nil {
		t.Fatal(err)
	}

	a, _, _ := c.GetAuction(ctx, id)
	if a.Timestamp != 5000 {
		t.Fatalf("expected timestamp to stay at first-write value, got %d", a.Timestamp)
	}
}

func TestUpsertAuctionRejectsOriginMismatch(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	id := transfer(3)

	if _, err := c.UpsertAuction(ctx, id, "origin-a", "dest", bid(1, 1, "1")); err != nil {
		t.Fatal(err)
	}

	_, err := c.UpsertAuction(ctx, id, "origin-b", "dest", bid(2, 1, "1"))
	if err == nil {
		t.Fatal("expected error on origin mismatch")
	}
	e, ok := err.(*bridgeerr.Error)
	if !ok || e.Kind != bridgeerr.KindInvalidParams {
		t.Fatalf("expected invalid-params error, got %v", err)
	}
}

func TestBidMergeNBidsFromNRouters(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	id := transfer(4)

	for i := byte(1); i <= 5; i++ {
		if _, err := c.UpsertAuction(ctx, id, "o", "d", bid(i, int64(i)*10, "1")); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	a, _, _ := c.GetAuction(ctx, id)
	if len(a.Bids) != 5 {
		t.Fatalf("expected 5 distinct router bids, got %d", len(a.Bids))
	}
}

func TestStatusNoneWhenAbsent(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	status, err := c.GetStatus(ctx, transfer(9))
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.StatusNone {
		t.Fatalf("expected StatusNone, got %v", status)
	}
}

func TestGetQueuedTransfersFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())

	queued := []domain.TransferID{transfer(1), transfer(2), transfer(3)}
	sent := []domain.TransferID{transfer(4), transfer(5)}

	for _, id := range queued {
		if _, err := c.SetStatus(ctx, id, domain.StatusQueued); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range sent {
		if _, err := c.SetStatus(ctx, id, domain.StatusSent); err != nil {
			t.Fatal(err)
		}
	}

	got, err := c.GetQueuedTransfers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(queued) {
		t.Fatalf("expected %d queued transfers, got %d", len(queued), len(got))
	}
}

func TestSetBidDataIdempotent(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	id := transfer(7)

	first := &domain.BidData{Amount: big.NewInt(500)}
	if err := c.SetBidData(ctx, id, first); err != nil {
		t.Fatal(err)
	}

	second := &domain.BidData{Amount: big.NewInt(999)} // different payload, should be ignored
	if err := c.SetBidData(ctx, id, second); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.GetBidData(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetBidData: ok=%v err=%v", ok, err)
	}
	if got.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected first write to stick, got amount %s", got.Amount)
	}
}

func TestUpsertTaskCreatesThenIncrementsAttempts(t *testing.T) {
	ctx := context.Background()
	c := New(cache.NewMemStore())
	id := transfer(8)

	res, err := c.UpsertTask(ctx, id, "task-1")
	if err != nil || !res.Created {
		t.Fatalf("first upsert: %+v %v", res, err)
	}

	res, err = c.UpsertTask(ctx, id, "task-2")
	if err != nil || res.Created {
		t.Fatalf("second upsert: %+v %v", res, err)
	}

	task, ok, err := c.GetTask(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetTask: ok=%v err=%v", ok, err)
	}
	if task.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", task.Attempts)
	}
	if task.TaskID != "task-2" {
		t.Fatalf("expected latest taskId, got %s", task.TaskID)
	}
}
