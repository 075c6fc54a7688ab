package chainreader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// maxIndexerResponseSize bounds how much of a subgraph/indexer
// response body we will ever read, to avoid an OOM from a malformed
// or malicious upstream response.
const maxIndexerResponseSize = 1024 * 1024 // 1MB

// IndexerClient is a concrete ChainReader backed by an HTTP
// subgraph/indexer service — the read-only source of truth for
// router liquidity when the cache misses (spec §1, §2). It is a
// reference implementation of the ChainReader contract, not part of
// the spec's boundary: any other ChainReader works equally well.
type IndexerClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *CircuitBreaker
}

// NewIndexerClient creates a new indexer client.
func NewIndexerClient(baseURL string, timeout time.Duration) *IndexerClient {
	if timeout == 0 {
		timeout = 500 * time.Millisecond
	}
	return &IndexerClient{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// GetAssetBalance queries the indexer for a router's committed balance.
func (c *IndexerClient) GetAssetBalance(ctx context.Context, domain string, router, asset common.Address) (*big.Int, error) {
	var out *big.Int
	err := c.circuitBreaker.Execute(func() error {
		url := fmt.Sprintf("%s/liquidity?domain=%s&router=%s&asset=%s", c.baseURL, domain, router.Hex(), asset.Hex())
		var resp balanceResponse
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return err
		}
		amount, ok := new(big.Int).SetString(resp.Balance, 10)
		if !ok {
			return fmt.Errorf("indexer returned non-numeric balance %q", resp.Balance)
		}
		out = amount
		return nil
	})
	return out, err
}

type gasPriceResponse struct {
	GasPrice string `json:"gasPrice"`
}

// GetGasPrice queries the indexer for the current gas price on a domain.
func (c *IndexerClient) GetGasPrice(ctx context.Context, domain string) (*big.Int, error) {
	var out *big.Int
	err := c.circuitBreaker.Execute(func() error {
		url := fmt.Sprintf("%s/gas-price?domain=%s", c.baseURL, domain)
		var resp gasPriceResponse
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return err
		}
		price, ok := new(big.Int).SetString(resp.GasPrice, 10)
		if !ok {
			return fmt.Errorf("indexer returned non-numeric gas price %q", resp.GasPrice)
		}
		out = price
		return nil
	})
	return out, err
}

// CircuitBreakerStats exposes the breaker's current state for an
// admin endpoint, mirroring the teacher's /admin/circuit-breaker route.
func (c *IndexerClient) CircuitBreakerStats() CircuitBreakerStats {
	return c.circuitBreaker.Stats()
}

func (c *IndexerClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indexer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer returned status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxIndexerResponseSize)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode indexer response: %w", err)
	}
	return nil
}
