// Package auctioncache implements the auction cache (spec C2): the
// per-transfer Auction, AuctionStatus, BidData and AuctionTask tables
// over the shared key-value store, per spec §4.2 and the key schema
// of §6.
package auctioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/bridgeerr"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/pkg/cache"
)

const (
	hashAuction = "auctions:auction"
	hashStatus  = "auctions:status"
	hashBidData = "auctions:bidData"
	hashTask    = "auctions:task"
)

// NowFunc returns the current unix-seconds timestamp. Exposed as a
// var so tests can pin it, matching spec's timestamp-immutability
// property tests (§8).
var NowFunc = func() int64 { return time.Now().Unix() }

// Cache is the auction cache (C2).
type Cache struct {
	store cache.Store
	locks *keyMutex
}

// New creates an auction cache over the given store.
func New(store cache.Store) *Cache {
	return &Cache{store: store, locks: newKeyMutex()}
}

// GetAuction returns the current record, or (nil, false) if absent.
func (c *Cache) GetAuction(ctx context.Context, transferID domain.TransferID) (*domain.Auction, bool, error) {
	raw, ok, err := c.store.HGet(ctx, hashAuction, transferID.Hex())
	if err != nil || !ok {
		return nil, false, err
	}
	var a domain.Auction
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false, fmt.Errorf("decode auction %s: %w", transferID, err)
	}
	return &a, true, nil
}

// UpsertResult reports whether the upsert created a new record.
type UpsertResult struct {
	Created bool
}

// UpsertAuction implements §4.2's upsertAuction: create on first bid,
// merge on repeat. Origin/destination mismatches against an existing
// record are rejected (Open Question decision, see DESIGN.md).
func (c *Cache) UpsertAuction(ctx context.Context, transferID domain.TransferID, origin, destination domain.Domain, bid *domain.Bid) (UpsertResult, error) {
	unlock := c.locks.lock(transferID.Hex())
	defer unlock()

	existing, ok, err := c.GetAuction(ctx, transferID)
	if err != nil {
		return UpsertResult{}, err
	}

	if !ok {
		a := domain.NewAuction(origin, destination, NowFunc(), bid)
		if err := c.writeAuction(ctx, transferID, a); err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{Created: true}, nil
	}

	if existing.Origin != origin || existing.Destination != destination {
		return UpsertResult{}, bridgeerr.ErrOriginDestinationMismatch
	}

	existing.MergeBid(bid)
	if err := c.writeAuction(ctx, transferID, existing); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Created: false}, nil
}

func (c *Cache) writeAuction(ctx context.Context, transferID domain.TransferID, a *domain.Auction) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode auction %s: %w", transferID, err)
	}
	return c.store.HSet(ctx, hashAuction, transferID.Hex(), string(raw))
}

// GetStatus returns the current status, or StatusNone if absent.
func (c *Cache) GetStatus(ctx context.Context, transferID domain.TransferID) (domain.AuctionStatus, error) {
	raw, ok, err := c.store.HGet(ctx, hashStatus, transferID.Hex())
	if err != nil {
		return domain.StatusNone, err
	}
	if !ok {
		return domain.StatusNone, nil
	}
	return domain.ParseAuctionStatus(raw), nil
}

// SetStatus sets the status, reporting whether the key had no prior value.
func (c *Cache) SetStatus(ctx context.Context, transferID domain.TransferID, status domain.AuctionStatus) (UpsertResult, error) {
	_, existed, err := c.store.HGet(ctx, hashStatus, transferID.Hex())
	if err != nil {
		return UpsertResult{}, err
	}
	if err := c.store.HSet(ctx, hashStatus, transferID.Hex(), status.String()); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Created: !existed}, nil
}

// GetQueuedTransfers scans the status table for every transferId whose
// status is currently Queued (§4.2). No ordering beyond store-scan
// order is guaranteed.
func (c *Cache) GetQueuedTransfers(ctx context.Context) ([]domain.TransferID, error) {
	all, err := c.store.HGetAll(ctx, hashStatus)
	if err != nil {
		return nil, err
	}
	var out []domain.TransferID
	for field, status := range all {
		if domain.ParseAuctionStatus(status) == domain.StatusQueued {
			out = append(out, common.HexToHash(field))
		}
	}
	return out, nil
}

// GetBidData returns the BidData for a transfer, or (nil, false) if absent.
func (c *Cache) GetBidData(ctx context.Context, transferID domain.TransferID) (*domain.BidData, bool, error) {
	raw, ok, err := c.store.HGet(ctx, hashBidData, transferID.Hex())
	if err != nil || !ok {
		return nil, false, err
	}
	var bd domain.BidData
	if err := json.Unmarshal([]byte(raw), &bd); err != nil {
		return nil, false, fmt.Errorf("decode bid data %s: %w", transferID, err)
	}
	return &bd, true, nil
}

// SetBidData writes BidData only if none exists yet: BidData is
// written once per transfer and thereafter immutable (§4.2). Callers
// that want the "only when status was None" ordering of §4.4 step 4
// must check status themselves before calling this; SetBidData's own
// idempotence guard is what makes that race-safe (§4.4 Ordering note).
func (c *Cache) SetBidData(ctx context.Context, transferID domain.TransferID, bd *domain.BidData) error {
	_, exists, err := c.store.HGet(ctx, hashBidData, transferID.Hex())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	raw, err := json.Marshal(bd)
	if err != nil {
		return fmt.Errorf("encode bid data %s: %w", transferID, err)
	}
	return c.store.HSet(ctx, hashBidData, transferID.Hex(), string(raw))
}

// GetTask returns the current dispatch task, or (nil, false) if absent.
func (c *Cache) GetTask(ctx context.Context, transferID domain.TransferID) (*domain.AuctionTask, bool, error) {
	raw, ok, err := c.store.HGet(ctx, hashTask, transferID.Hex())
	if err != nil || !ok {
		return nil, false, err
	}
	var task domain.AuctionTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, false, fmt.Errorf("decode task %s: %w", transferID, err)
	}
	return &task, true, nil
}

// UpsertTask implements §4.2's upsertTask: create with attempts=1 on
// first dispatch, otherwise overwrite taskId/timestamp and increment
// attempts. Attempts is never reset (Open Question decision, §9/DESIGN.md).
func (c *Cache) UpsertTask(ctx context.Context, transferID domain.TransferID, taskID string) (UpsertResult, error) {
	unlock := c.locks.lock("task:" + transferID.Hex())
	defer unlock()

	existing, ok, err := c.GetTask(ctx, transferID)
	if err != nil {
		return UpsertResult{}, err
	}

	now := NowFunc()
	var task domain.AuctionTask
	created := !ok
	if !ok {
		task = domain.AuctionTask{TaskID: taskID, Attempts: 1, Timestamp: now}
	} else {
		task = *existing
		task.TaskID = taskID
		task.Attempts++
		task.Timestamp = now
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("encode task %s: %w", transferID, err)
	}
	if err := c.store.HSet(ctx, hashTask, transferID.Hex(), string(raw)); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Created: created}, nil
}
