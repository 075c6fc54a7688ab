// Package domain holds the core data model of the sequencer auction
// core: Auction, Bid, AuctionStatus, BidData, AuctionTask and
// RouterLiquidity, with the invariants from spec §3 enforced in their
// constructors rather than left to callers.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferID is the opaque, caller-supplied, collision-free primary
// key for a cross-domain transfer. 32 bytes, same shape as an
// on-chain transaction or message hash.
type TransferID = common.Hash

// Domain is a logical identifier for a chain/network (spec calls this
// "domain"; kept as an opaque string exactly as spec.md requires).
type Domain = string

// Bid is a signed claim by a router that it can fulfill a transfer.
// Only the fields the core inspects are modeled; everything else a
// real bid envelope carries is opaque to this package.
type Bid struct {
	Router     common.Address    `json:"router"`
	Fee        *big.Int          `json:"fee"`
	Signatures map[string]string `json:"signatures"` // round number (string) -> signature
}

// HasRoundOneSignature is the round-1 eligibility predicate of §4.6(b).
func (b *Bid) HasRoundOneSignature() bool {
	if b == nil || b.Signatures == nil {
		return false
	}
	_, ok := b.Signatures["1"]
	return ok
}

// FirstSignature returns some signature from the bid, used to build
// the relayerSignature field of §4.6(d). Order is irrelevant because
// a round-1 eligible bid always carries at least the "1" signature.
func (b *Bid) FirstSignature() string {
	if sig, ok := b.Signatures["1"]; ok {
		return sig
	}
	for _, sig := range b.Signatures {
		return sig
	}
	return ""
}

// Auction is the per-transfer record collecting bids during the wait
// window (spec §3). Timestamp is immutable after creation; Bids maps
// router address to that router's most recent bid.
type Auction struct {
	Origin      Domain                        `json:"origin"`
	Destination Domain                        `json:"destination"`
	Timestamp   int64                         `json:"timestamp"` // unix seconds, set once
	Bids        map[common.Address]*Bid       `json:"bids"`
}

// NewAuction creates the first-ever record for a transfer: timestamp
// is fixed at creation and never touched again (spec §3 invariant).
func NewAuction(origin, destination Domain, now int64, bid *Bid) *Auction {
	return &Auction{
		Origin:      origin,
		Destination: destination,
		Timestamp:   now,
		Bids:        map[common.Address]*Bid{bid.Router: bid},
	}
}

// MergeBid applies a bid from a router to an existing auction. Last
// write wins per router; Timestamp and Origin/Destination are left
// untouched, matching §4.2's upsertAuction semantics.
func (a *Auction) MergeBid(bid *Bid) {
	if a.Bids == nil {
		a.Bids = make(map[common.Address]*Bid)
	}
	a.Bids[bid.Router] = bid
}

// EligibleBids returns the bids with a round-1 signature, the
// predicate §4.6(b) filters on.
func (a *Auction) EligibleBids() []*Bid {
	out := make([]*Bid, 0, len(a.Bids))
	for _, b := range a.Bids {
		if b.HasRoundOneSignature() {
			out = append(out, b)
		}
	}
	return out
}

// AuctionStatus is a closed tagged variant, never an open string, so
// the "absent" path (None) is statically checked per spec §9.
type AuctionStatus int

const (
	// StatusNone is the absence state: no record exists.
	StatusNone AuctionStatus = iota
	// StatusQueued is set on first bid acceptance.
	StatusQueued
	// StatusSent is set once the executor's dispatch succeeds.
	StatusSent
	// StatusExecuted is driven by external consumers, never by this core.
	StatusExecuted
	// StatusCancelled may be reached from any state, also only by
	// external consumers.
	StatusCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusQueued:
		return "Queued"
	case StatusSent:
		return "Sent"
	case StatusExecuted:
		return "Executed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ParseAuctionStatus is the inverse of String, used when reading the
// enum name back out of the auctions:status hash (§6).
func ParseAuctionStatus(s string) AuctionStatus {
	switch s {
	case "Queued":
		return StatusQueued
	case "Sent":
		return StatusSent
	case "Executed":
		return StatusExecuted
	case "Cancelled":
		return StatusCancelled
	default:
		return StatusNone
	}
}

// CanAcceptBid reports whether a bid may still be ingested for an
// auction in status s (spec §4.4 step 2: only None or Queued).
func (s AuctionStatus) CanAcceptBid() bool {
	return s == StatusNone || s == StatusQueued
}

// BidData is the payload needed to actually submit a transfer. It is
// written once, at the moment of the first bid, and immutable
// thereafter (spec §3).
type BidData struct {
	Amount           *big.Int       `json:"amount"`
	LocalAsset       common.Address `json:"localAsset"`
	DestinationAsset common.Address `json:"destinationAsset"`
	Recipient        common.Address `json:"recipient"`
	CallData         []byte         `json:"callData,omitempty"`
}

// AuctionTask records the relayer's acceptance of a dispatch attempt.
type AuctionTask struct {
	TaskID    string `json:"taskId"`
	Attempts  int    `json:"attempts"`
	Timestamp int64  `json:"timestamp"` // unix seconds of most recent attempt
}

// RouterLiquidityKey identifies a cached liquidity balance.
type RouterLiquidityKey struct {
	Router common.Address
	Domain Domain
	Asset  common.Address
}

// Transfer is the inbound request the fee checker (C5) evaluates: just
// enough of the cross-domain transfer to decide whether the paid
// relayer fee covers the estimated minimum (spec §4.5). It is a
// collaborator-facing view, not a cached entity.
type Transfer struct {
	OriginDomain      Domain
	DestinationDomain Domain
	OriginSender      common.Address
	TransactingAsset  common.Address
	// RelayerFees maps the asset the fee was paid in to the amount
	// paid, in that asset's native (smallest-unit) precision. The zero
	// address represents the origin chain's native asset (spec §4.5
	// step 4).
	RelayerFees map[common.Address]*big.Int
}
