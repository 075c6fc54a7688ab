// Package backends provides concrete Relayer implementations, one per
// relayer type, grounded one-for-one on the teacher's bidder adapters
// (appnexus, rubicon, openx, taboola) with their per-bidder HTTP
// request shaping retargeted at submitting a relayer dispatch instead
// of an OpenRTB bid request.
package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexusbridge/sequencer/internal/relay"
)

// maxResponseSize bounds how much of a relayer response body is ever
// read, mirroring the size guard the teacher applies to IDR/indexer
// responses.
const maxResponseSize = 1024 * 1024

// Generic is a plain POST-JSON relayer backend, grounded on
// appnexus.Adapter.MakeRequests/MakeBids — the teacher's simplest
// single-request-single-response adapter shape.
type Generic struct {
	endpoint string
	client   *http.Client
}

// NewGeneric creates a generic relayer backend.
func NewGeneric(endpoint string, timeout time.Duration) *Generic {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Generic{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type genericSendBody struct {
	ChainID     uint64 `json:"chainId"`
	Domain      string `json:"domain"`
	DestAddress string `json:"destAddress"`
	Data        string `json:"data"`
	Amount      string `json:"amount"`
}

type genericSendResponse struct {
	TaskID string `json:"taskId"`
}

// Send submits req as a single POST request and parses the taskId out
// of the JSON body, same shape as appnexus's single-request MakeRequests.
func (g *Generic) Send(ctx context.Context, req relay.SendRequest) (string, error) {
	body := genericSendBody{
		ChainID:     req.ChainID,
		Domain:      req.Domain,
		DestAddress: req.DestAddress.Hex(),
		Data:        fmt.Sprintf("%x", req.Data),
	}
	if req.Amount != nil {
		body.Amount = req.Amount.String()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal relayer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build relayer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json;charset=utf-8")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relayer returned status %d", resp.StatusCode)
	}

	var out genericSendResponse
	limited := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(limited).Decode(&out); err != nil {
		return "", fmt.Errorf("decode relayer response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("relayer response carried no taskId")
	}
	return out.TaskID, nil
}
