package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/auctioncache"
	"github.com/nexusbridge/sequencer/internal/chainreader"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/internal/liquiditycache"
	"github.com/nexusbridge/sequencer/internal/relay"
	"github.com/nexusbridge/sequencer/pkg/cache"
)

// fakeChainReader never answers; every test that depends on liquidity
// pre-populates the cache directly, matching scenarios in spec §8
// which give cached liquidity values up front.
type fakeChainReader struct{}

func (fakeChainReader) GetAssetBalance(ctx context.Context, d string, router, asset common.Address) (*big.Int, error) {
	return nil, nil
}
func (fakeChainReader) GetGasPrice(ctx context.Context, d string) (*big.Int, error) {
	return nil, nil
}

var _ chainreader.ChainReader = fakeChainReader{}

type fakeRelayer struct {
	taskID string
	err    error
	calls  int
}

func (f *fakeRelayer) Send(ctx context.Context, req relay.SendRequest) (string, error) {
	f.calls++
	return f.taskID, f.err
}

type fixedRelayerSource struct {
	handles []relay.Handle
}

func (f fixedRelayerSource) Ordered() []relay.Handle { return f.handles }

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func hash(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func newHarness(t *testing.T) (*Executor, *auctioncache.Cache, *liquiditycache.Cache, *fakeRelayer) {
	t.Helper()
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	liquidity := liquiditycache.New(store)
	relayerA := &fakeRelayer{taskID: "t-1"}
	relayers := fixedRelayerSource{handles: []relay.Handle{{Type: "primary", Relayer: relayerA}}}

	cfg := DefaultConfig()
	cfg.AuctionWaitTime = 5 * time.Second // tests drive elapsed time via NowFunc, not real sleeps

	exec := New(auctions, liquidity, fakeChainReader{}, relayers, NewUniformRandomSelector(1), cfg, nil, nil)
	return exec, auctions, liquidity, relayerA
}

func seedAuction(t *testing.T, auctions *auctioncache.Cache, liquidity *liquiditycache.Cache, transferID common.Hash, destination string, bid *domain.Bid, bidData *domain.BidData, liq map[common.Address]*big.Int) {
	t.Helper()
	ctx := context.Background()

	auctioncache.NowFunc = func() int64 { return 1000 }
	if _, err := auctions.UpsertAuction(ctx, transferID, "origin", destination, bid); err != nil {
		t.Fatalf("upsert auction: %v", err)
	}
	if err := auctions.SetBidData(ctx, transferID, bidData); err != nil {
		t.Fatalf("set bid data: %v", err)
	}
	if _, err := auctions.SetStatus(ctx, transferID, domain.StatusQueued); err != nil {
		t.Fatalf("set status: %v", err)
	}
	for router, amount := range liq {
		key := domain.RouterLiquidityKey{Router: router, Domain: destination, Asset: bidData.LocalAsset}
		if err := liquidity.SetLiquidity(ctx, key, amount); err != nil {
			t.Fatalf("seed liquidity: %v", err)
		}
	}
	NowFunc = func() int64 { return 1000 + 31 } // 31s elapsed, past the 5s wait time the harnesses configure
}

// Scenario 1 (spec §8): single bid, single round, happy path.
func TestExecutorSingleBidHappyPath(t *testing.T) {
	exec, auctions, liquidity, relayerA := newHarness(t)
	transferID := hash(0x01)
	router := addr(0xA1)
	asset := addr(0xAA)

	bid := &domain.Bid{Router: router, Fee: big.NewInt(100), Signatures: map[string]string{"1": "sig1"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}

	seedAuction(t, auctions, liquidity, transferID, "destDomain", bid, bidData, map[common.Address]*big.Int{
		router: big.NewInt(1_000_000),
	})

	exec.Tick(context.Background())

	status, err := auctions.GetStatus(context.Background(), transferID)
	if err != nil || status != domain.StatusSent {
		t.Fatalf("expected Sent, got %v err=%v", status, err)
	}

	task, ok, err := auctions.GetTask(context.Background(), transferID)
	if err != nil || !ok || task.TaskID != "t-1" || task.Attempts != 1 {
		t.Fatalf("expected task t-1/attempts=1, got %+v ok=%v err=%v", task, ok, err)
	}

	key := domain.RouterLiquidityKey{Router: router, Domain: "destDomain", Asset: asset}
	liq, ok, err := liquidity.GetLiquidity(context.Background(), key)
	if err != nil || !ok || liq.Cmp(big.NewInt(999_500)) != 0 {
		t.Fatalf("expected liquidity 999500, got %v ok=%v err=%v", liq, ok, err)
	}

	if relayerA.calls != 1 {
		t.Fatalf("expected exactly one dispatch call, got %d", relayerA.calls)
	}
}

// Scenario 2 (spec §8): low-liquidity router is filtered, the other succeeds.
func TestExecutorLowLiquidityRouterFiltered(t *testing.T) {
	exec, auctions, liquidity, _ := newHarness(t)
	transferID := hash(0x02)
	r1, r2 := addr(0x01), addr(0x02)
	asset := addr(0xAA)

	bid1 := &domain.Bid{Router: r1, Fee: big.NewInt(10), Signatures: map[string]string{"1": "s1"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}

	seedAuction(t, auctions, liquidity, transferID, "destDomain", bid1, bidData, map[common.Address]*big.Int{
		r1: big.NewInt(10),
		r2: big.NewInt(10_000),
	})
	if _, err := auctions.UpsertAuction(context.Background(), transferID, "origin", "destDomain",
		&domain.Bid{Router: r2, Fee: big.NewInt(20), Signatures: map[string]string{"1": "s2"}}); err != nil {
		t.Fatal(err)
	}

	exec.Tick(context.Background())

	status, _ := auctions.GetStatus(context.Background(), transferID)
	if status != domain.StatusSent {
		t.Fatalf("expected Sent, got %v", status)
	}

	auction, ok, err := auctions.GetAuction(context.Background(), transferID)
	if err != nil || !ok || len(auction.Bids) != 2 {
		t.Fatalf("expected both bids retained, got %+v ok=%v err=%v", auction, ok, err)
	}

	task, _, _ := auctions.GetTask(context.Background(), transferID)
	if task == nil || task.TaskID == "" {
		t.Fatal("expected a task to be recorded")
	}
}

// Scenario 3 (spec §8): a bid arriving after Sent must be rejected by
// ingestion, not by the executor — this test only asserts the
// executor side: status never regresses once Sent.
func TestExecutorNeverRegressesStatus(t *testing.T) {
	exec, auctions, liquidity, _ := newHarness(t)
	transferID := hash(0x03)
	router := addr(0x01)
	asset := addr(0xAA)

	bid := &domain.Bid{Router: router, Fee: big.NewInt(100), Signatures: map[string]string{"1": "sig1"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}
	seedAuction(t, auctions, liquidity, transferID, "destDomain", bid, bidData, map[common.Address]*big.Int{
		router: big.NewInt(1_000_000),
	})

	exec.Tick(context.Background())
	exec.Tick(context.Background()) // second tick must be a no-op on an already-Sent transfer

	status, _ := auctions.GetStatus(context.Background(), transferID)
	if status != domain.StatusSent {
		t.Fatalf("expected Sent after two ticks, got %v", status)
	}

	task, _, _ := auctions.GetTask(context.Background(), transferID)
	if task.Attempts != 1 {
		t.Fatalf("second tick must not re-dispatch an already-Sent transfer, attempts=%d", task.Attempts)
	}
}

// Scenario 4 (spec §8): primary relayer fails, backup succeeds.
func TestExecutorBackupRelayerOnPrimaryFailure(t *testing.T) {
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	liquidity := liquiditycache.New(store)
	primary := &fakeRelayer{err: errors.New("primary down")}
	backup := &fakeRelayer{taskID: "t-2"}
	relayers := fixedRelayerSource{handles: []relay.Handle{
		{Type: "primary", Relayer: primary},
		{Type: "backup", Relayer: backup},
	}}

	cfg := DefaultConfig()
	cfg.AuctionWaitTime = 5 * time.Second
	exec := New(auctions, liquidity, fakeChainReader{}, relayers, NewUniformRandomSelector(1), cfg, nil, nil)

	transferID := hash(0x04)
	router := addr(0x01)
	asset := addr(0xAA)
	bid := &domain.Bid{Router: router, Fee: big.NewInt(100), Signatures: map[string]string{"1": "sig1"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}
	seedAuction(t, auctions, liquidity, transferID, "destDomain", bid, bidData, map[common.Address]*big.Int{
		router: big.NewInt(1_000_000),
	})

	exec.Tick(context.Background())

	task, ok, err := auctions.GetTask(context.Background(), transferID)
	if err != nil || !ok || task.TaskID != "t-2" {
		t.Fatalf("expected task t-2, got %+v ok=%v err=%v", task, ok, err)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Fatalf("expected one call each, got primary=%d backup=%d", primary.calls, backup.calls)
	}
}

// Scenario 5 (spec §8): all relayers fail, transfer remains Queued.
func TestExecutorAllRelayersFailLeavesQueued(t *testing.T) {
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	liquidity := liquiditycache.New(store)
	primary := &fakeRelayer{err: errors.New("primary down")}
	backup := &fakeRelayer{err: errors.New("backup down")}
	relayers := fixedRelayerSource{handles: []relay.Handle{
		{Type: "primary", Relayer: primary},
		{Type: "backup", Relayer: backup},
	}}

	cfg := DefaultConfig()
	cfg.AuctionWaitTime = 5 * time.Second
	exec := New(auctions, liquidity, fakeChainReader{}, relayers, NewUniformRandomSelector(1), cfg, nil, nil)

	transferID := hash(0x05)
	router := addr(0x01)
	asset := addr(0xAA)
	bid := &domain.Bid{Router: router, Fee: big.NewInt(100), Signatures: map[string]string{"1": "sig1"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}
	seedAuction(t, auctions, liquidity, transferID, "destDomain", bid, bidData, map[common.Address]*big.Int{
		router: big.NewInt(1_000_000),
	})

	exec.Tick(context.Background())

	status, _ := auctions.GetStatus(context.Background(), transferID)
	if status != domain.StatusQueued {
		t.Fatalf("expected Queued after all relayers fail, got %v", status)
	}
	if _, ok, _ := auctions.GetTask(context.Background(), transferID); ok {
		t.Fatal("expected no task written when every relayer fails")
	}

	key := domain.RouterLiquidityKey{Router: router, Domain: "destDomain", Asset: asset}
	liq, _, _ := liquidity.GetLiquidity(context.Background(), key)
	if liq.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("liquidity must not be decremented on failure, got %s", liq)
	}
}

// Waiting-period gate: a transfer younger than AuctionWaitTime is left alone.
func TestExecutorSkipsTransfersStillWithinWaitWindow(t *testing.T) {
	store := cache.NewMemStore()
	auctions := auctioncache.New(store)
	liquidity := liquiditycache.New(store)
	relayerA := &fakeRelayer{taskID: "t-1"}
	relayers := fixedRelayerSource{handles: []relay.Handle{{Type: "primary", Relayer: relayerA}}}

	cfg := DefaultConfig()
	cfg.AuctionWaitTime = 30 * time.Second
	exec := New(auctions, liquidity, fakeChainReader{}, relayers, NewUniformRandomSelector(1), cfg, nil, nil)

	transferID := hash(0x06)
	router := addr(0x01)
	asset := addr(0xAA)
	bid := &domain.Bid{Router: router, Fee: big.NewInt(100), Signatures: map[string]string{"1": "sig1"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}

	auctioncache.NowFunc = func() int64 { return 1000 }
	ctx := context.Background()
	if _, err := auctions.UpsertAuction(ctx, transferID, "origin", "destDomain", bid); err != nil {
		t.Fatal(err)
	}
	_ = auctions.SetBidData(ctx, transferID, bidData)
	_, _ = auctions.SetStatus(ctx, transferID, domain.StatusQueued)
	_ = liquidity.SetLiquidity(ctx, domain.RouterLiquidityKey{Router: router, Domain: "destDomain", Asset: asset}, big.NewInt(1_000_000))

	NowFunc = func() int64 { return 1001 } // barely elapsed, still inside the wait window
	exec.Tick(ctx)

	status, _ := auctions.GetStatus(ctx, transferID)
	if status != domain.StatusQueued {
		t.Fatalf("transfer still within wait window must not be dispatched, got %v", status)
	}
	if relayerA.calls != 0 {
		t.Fatalf("expected no dispatch attempt, got %d calls", relayerA.calls)
	}
}

// Bids lacking a round-1 signature are never eligible candidates.
func TestExecutorSkipsNonRoundOneBids(t *testing.T) {
	exec, auctions, liquidity, relayerA := newHarness(t)
	transferID := hash(0x07)
	router := addr(0x01)
	asset := addr(0xAA)

	bid := &domain.Bid{Router: router, Fee: big.NewInt(100), Signatures: map[string]string{"2": "sig2"}}
	bidData := &domain.BidData{Amount: big.NewInt(500), LocalAsset: asset, Recipient: addr(0xFF)}
	seedAuction(t, auctions, liquidity, transferID, "destDomain", bid, bidData, map[common.Address]*big.Int{
		router: big.NewInt(1_000_000),
	})

	exec.Tick(context.Background())

	status, _ := auctions.GetStatus(context.Background(), transferID)
	if status != domain.StatusQueued {
		t.Fatalf("expected Queued (no round-1 eligible bids), got %v", status)
	}
	if relayerA.calls != 0 {
		t.Fatalf("expected no dispatch attempt, got %d", relayerA.calls)
	}
}
