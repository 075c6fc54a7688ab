package feecheck

import (
	"math/big"
	"sync"
)

// tenPowCache avoids recomputing the same power of ten on every call;
// asset decimals only ever take a handful of distinct values (6, 8, 18).
// Guarded by a mutex since fee checks run concurrently with ingestion.
var (
	tenPowMu    sync.Mutex
	tenPowCache = map[int]*big.Int{}
)

func tenPow(exp int) *big.Int {
	tenPowMu.Lock()
	defer tenPowMu.Unlock()
	if v, ok := tenPowCache[exp]; ok {
		return v
	}
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	tenPowCache[exp] = v
	return v
}

// ToUSDTimes1000 converts a raw token amount (in the asset's smallest
// unit, at assetDecimals precision) into a USD value scaled by 1000,
// given a price rate that is itself pre-scaled by 1000 USD per whole
// token. This is the one place the ×1000-then-integer-divide rule
// (spec §4.5 numeric note) is implemented, so every caller rounds the
// same way.
func ToUSDTimes1000(amount *big.Int, assetDecimals int, rateTimes1000 *big.Int) *big.Int {
	if amount == nil || rateTimes1000 == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(amount, rateTimes1000)
	return numerator.Div(numerator, tenPow(assetDecimals))
}

// ApplyTolerancePercent computes estimated * (100-tolerancePercent) /
// 100 using pure integer arithmetic (spec §4.5 step 6).
func ApplyTolerancePercent(estimatedUSDTimes1000 *big.Int, tolerancePercent int) *big.Int {
	if estimatedUSDTimes1000 == nil {
		return big.NewInt(0)
	}
	n := new(big.Int).Mul(estimatedUSDTimes1000, big.NewInt(int64(100-tolerancePercent)))
	return n.Div(n, big.NewInt(100))
}
