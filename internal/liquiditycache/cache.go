// Package liquiditycache implements the router-liquidity cache (spec
// C3): a cached, non-negative integer balance per (router, domain,
// asset), an optimistic view the executor keeps in sync with the
// external indexer (spec §4.3).
package liquiditycache

import (
	"context"
	"fmt"
	"math/big"

	"github.com/nexusbridge/sequencer/internal/chainreader"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/pkg/cache"
)

const keyPrefix = "routers:liquidity"

// Cache is the router-liquidity cache (C3).
type Cache struct {
	store cache.Store
}

// New creates a liquidity cache over the given store.
func New(store cache.Store) *Cache {
	return &Cache{store: store}
}

func key(k domain.RouterLiquidityKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, k.Router.Hex(), k.Domain, k.Asset.Hex())
}

// GetLiquidity returns the cached amount, or (nil, false) on a miss.
func (c *Cache) GetLiquidity(ctx context.Context, k domain.RouterLiquidityKey) (*big.Int, bool, error) {
	raw, ok, err := c.store.Get(ctx, key(k))
	if err != nil || !ok {
		return nil, false, err
	}
	amount, valid := new(big.Int).SetString(raw, 10)
	if !valid {
		return nil, false, fmt.Errorf("corrupt liquidity cache value %q for %s", raw, key(k))
	}
	return amount, true, nil
}

// SetLiquidity overwrites the cached amount.
func (c *Cache) SetLiquidity(ctx context.Context, k domain.RouterLiquidityKey, amount *big.Int) error {
	return c.store.Set(ctx, key(k), amount.String())
}

// RefreshFromChain fetches the authoritative balance from the chain
// reader and populates the cache, used on a cache miss (spec §4.3,
// §4.6(d)). Returns (nil, false) if the chain reader also has no
// answer (router not found), which the executor treats as a
// transient skip-this-candidate condition (§7).
func (c *Cache) RefreshFromChain(ctx context.Context, reader chainreader.ChainReader, k domain.RouterLiquidityKey) (*big.Int, bool, error) {
	amount, err := reader.GetAssetBalance(ctx, k.Domain, k.Router, k.Asset)
	if err != nil {
		return nil, false, err
	}
	if amount == nil {
		return nil, false, nil
	}
	if err := c.SetLiquidity(ctx, k, amount); err != nil {
		return nil, false, err
	}
	return amount, true, nil
}

// Decrement subtracts amount from the cached liquidity after a
// successful dispatch (spec §4.6(d)). Callers must already hold the
// per-domain serialization the executor provides (§4.6 "Why per-domain
// sequential") — this method does not itself lock, because the
// optimistic decrement is only safe when reads and writes for one
// domain never interleave across goroutines, which is an executor
// property, not a cache property.
func (c *Cache) Decrement(ctx context.Context, k domain.RouterLiquidityKey, amount *big.Int) error {
	current, ok, err := c.GetLiquidity(ctx, k)
	if err != nil {
		return err
	}
	if !ok {
		current = big.NewInt(0)
	}
	next := new(big.Int).Sub(current, amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	return c.SetLiquidity(ctx, k, next)
}
