package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nexusbridge/sequencer/internal/relay"
)

// Batch is a relayer backend that accumulates sends and flushes them
// together on a timer or once a size threshold is reached, grounded
// on the teacher's EventRecorder buffering idiom (pkg/idr/events.go)
// applied to relayer submissions instead of bid-win events. Each
// caller's Send blocks until its item's batch has been flushed and a
// taskId assigned.
type Batch struct {
	endpoint   string
	client     *http.Client
	maxSize    int
	flushEvery time.Duration

	mu      sync.Mutex
	pending []*batchItem
	timer   *time.Timer
}

type batchItem struct {
	req    relay.SendRequest
	result chan batchResult
}

type batchResult struct {
	taskID string
	err    error
}

// NewBatch creates a batching relayer backend.
func NewBatch(endpoint string, maxSize int, flushEvery time.Duration) *Batch {
	if maxSize <= 0 {
		maxSize = 20
	}
	if flushEvery == 0 {
		flushEvery = 100 * time.Millisecond
	}
	return &Batch{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: 5 * time.Second},
		maxSize:    maxSize,
		flushEvery: flushEvery,
	}
}

// Send enqueues req and blocks until its batch has been submitted.
func (b *Batch) Send(ctx context.Context, req relay.SendRequest) (string, error) {
	item := &batchItem{req: req, result: make(chan batchResult, 1)}

	b.mu.Lock()
	b.pending = append(b.pending, item)
	flushNow := len(b.pending) >= b.maxSize
	if !flushNow && b.timer == nil {
		b.timer = time.AfterFunc(b.flushEvery, b.flush)
	}
	b.mu.Unlock()

	if flushNow {
		b.flush()
	}

	select {
	case res := <-item.result:
		return res.taskID, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *Batch) flush() {
	b.mu.Lock()
	items := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(items) == 0 {
		return
	}

	taskIDs, err := b.submitBatch(items)
	for i, item := range items {
		if err != nil {
			item.result <- batchResult{err: err}
			continue
		}
		item.result <- batchResult{taskID: taskIDs[i]}
	}
}

type batchRequestEntry struct {
	ChainID     uint64 `json:"chainId"`
	Domain      string `json:"domain"`
	DestAddress string `json:"destAddress"`
	Data        string `json:"data"`
	Amount      string `json:"amount"`
}

type batchSubmitResponse struct {
	TaskIDs []string `json:"taskIds"`
}

func (b *Batch) submitBatch(items []*batchItem) ([]string, error) {
	entries := make([]batchRequestEntry, len(items))
	for i, item := range items {
		entries[i] = batchRequestEntry{
			ChainID:     item.req.ChainID,
			Domain:      item.req.Domain,
			DestAddress: item.req.DestAddress.Hex(),
			Data:        fmt.Sprintf("%x", item.req.Data),
		}
		if item.req.Amount != nil {
			entries[i].Amount = item.req.Amount.String()
		}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal batch relayer request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build batch relayer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("batch relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch relayer returned status %d", resp.StatusCode)
	}

	var out batchSubmitResponse
	limited := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(limited).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode batch relayer response: %w", err)
	}
	if len(out.TaskIDs) != len(items) {
		return nil, fmt.Errorf("batch relayer returned %d taskIds for %d submissions", len(out.TaskIDs), len(items))
	}
	return out.TaskIDs, nil
}
