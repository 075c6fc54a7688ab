// Package feecheck implements the relayer-fee sufficiency checker
// (spec C5, §4.5): given a transfer, decide whether the relayer fee
// the sender paid covers an estimated minimum.
package feecheck

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/chainreader"
	"github.com/nexusbridge/sequencer/internal/domain"
)

// Config holds the operator-configured parameters the six-step
// algorithm needs beyond the transfer itself (spec §4.5 steps 1, 6).
type Config struct {
	// TolerancePercent is subtracted from 100 before comparing the
	// estimated minimum against what was actually paid (step 6).
	TolerancePercent int
	// ExemptSenders lists, per origin domain, the sender addresses
	// exempt from the fee check entirely (step 1).
	ExemptSenders map[domain.Domain]map[common.Address]struct{}
	// ChainIDs maps a domain identifier to the numeric chain id the
	// PricingOracle expects.
	ChainIDs map[domain.Domain]uint64
}

// Checker implements CanSubmitToRelayer against an injected PricingOracle.
type Checker struct {
	oracle chainreader.PricingOracle
	cfg    Config
}

// New creates a fee checker.
func New(oracle chainreader.PricingOracle, cfg Config) *Checker {
	return &Checker{oracle: oracle, cfg: cfg}
}

// CanSubmitToRelayer implements the six-step algorithm of §4.5.
func (c *Checker) CanSubmitToRelayer(ctx context.Context, transfer domain.Transfer) (canSubmit bool, needed *big.Int, err error) {
	if c.isExempt(transfer.OriginDomain, transfer.OriginSender) {
		return true, big.NewInt(0), nil
	}
	if len(transfer.RelayerFees) == 0 {
		return false, big.NewInt(0), nil
	}

	originChainID, ok := c.cfg.ChainIDs[transfer.OriginDomain]
	if !ok {
		return false, nil, fmt.Errorf("no chain id configured for origin domain %q", transfer.OriginDomain)
	}

	estimatedUSD, err := c.oracle.CalculateRelayerFee(ctx, transfer.OriginDomain, transfer.DestinationDomain)
	if err != nil {
		return false, nil, fmt.Errorf("estimate relayer fee: %w", err)
	}

	paidUSD := big.NewInt(0)
	for asset, amount := range transfer.RelayerFees {
		contribution, err := c.contributionUSD(ctx, originChainID, transfer.TransactingAsset, asset, amount)
		if err != nil {
			return false, nil, err
		}
		paidUSD.Add(paidUSD, contribution)
	}

	minimumNeeded := ApplyTolerancePercent(estimatedUSD, c.cfg.TolerancePercent)
	return paidUSD.Cmp(minimumNeeded) >= 0, minimumNeeded, nil
}

var zeroAddress common.Address

// contributionUSD implements step 4: a native-asset payment and a
// transacting-asset payment both count toward paidUsd; any other
// asset is ignored.
func (c *Checker) contributionUSD(ctx context.Context, chainID uint64, transactingAsset, asset common.Address, amount *big.Int) (*big.Int, error) {
	var priceAsset common.Address
	switch {
	case asset == zeroAddress:
		priceAsset = zeroAddress
	case asset == transactingAsset:
		priceAsset = asset
	default:
		return big.NewInt(0), nil
	}

	rateTimes1000, err := c.oracle.GetConversionRate(ctx, chainID, priceAsset)
	if err != nil {
		return nil, fmt.Errorf("conversion rate for %s: %w", priceAsset.Hex(), err)
	}
	decimals, err := c.oracle.GetDecimalsForAsset(ctx, asset, chainID)
	if err != nil {
		return nil, fmt.Errorf("decimals for %s: %w", asset.Hex(), err)
	}
	return ToUSDTimes1000(amount, decimals, rateTimes1000), nil
}

// isExempt implements step 1. common.Address comparison is already
// case-insensitive: hex of any case parses to the same 20 bytes.
func (c *Checker) isExempt(d domain.Domain, sender common.Address) bool {
	set, ok := c.cfg.ExemptSenders[d]
	if !ok {
		return false
	}
	_, exempt := set[sender]
	return exempt
}
