// Package chainreader defines the read-only external collaborators
// the sequencer core depends on (spec §6): the cross-domain ledger's
// asset-balance view and the pricing/gas helpers the fee checker
// needs. Both are out of this system's boundary (§1); only their
// contracts live here.
package chainreader

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the authoritative source of router liquidity,
// exposed by the cross-domain ledger / on-chain contracts (spec §1,
// "exposed only as a read interface that returns router liquidity and
// gas estimates for a (domain, address) pair").
type ChainReader interface {
	// GetAssetBalance returns the authoritative balance a router has
	// committed on domain for asset.
	GetAssetBalance(ctx context.Context, domain string, router, asset common.Address) (*big.Int, error)
	// GetGasPrice returns the current gas price on domain.
	GetGasPrice(ctx context.Context, domain string) (*big.Int, error)
}

// PricingOracle is the pure pricing/gas-estimation helper the fee
// checker (C5) depends on (spec §6). It is a collaborator, not part
// of this system's boundary.
type PricingOracle interface {
	// GetConversionRate returns the USD-scaled conversion rate for
	// asset on the chain identified by chainID. The rate is returned
	// pre-multiplied by 1000 so callers never have to convert a
	// balance through float64 (spec §4.5 numeric note).
	GetConversionRate(ctx context.Context, chainID uint64, asset common.Address) (rateTimes1000 *big.Int, err error)
	// GetDecimalsForAsset returns the ERC20-style decimals for asset.
	GetDecimalsForAsset(ctx context.Context, asset common.Address, chainID uint64) (int, error)
	// CalculateRelayerFee estimates the minimum relayer fee in USD
	// (scaled by 1000) for moving a transfer from origin to destination.
	CalculateRelayerFee(ctx context.Context, originDomain, destinationDomain string) (usdTimes1000 *big.Int, err error)
}
