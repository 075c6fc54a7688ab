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

// Poll is a relayer backend that submits a job and polls for its task
// id rather than getting one back synchronously — grounded on the
// teacher's idr.Client submit-then-call shape (timeout-bounded HTTP
// client, size-limited response decode) combined into a submit/poll
// loop for relayer backends that accept asynchronously.
type Poll struct {
	submitURL   string
	statusURL   string
	client      *http.Client
	pollEvery   time.Duration
	maxAttempts int
}

// NewPoll creates a submit-then-poll relayer backend. statusURLFormat
// must contain exactly one %s, substituted with the job id returned
// from submit.
func NewPoll(submitURL, statusURLFormat string, timeout, pollEvery time.Duration, maxAttempts int) *Poll {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	if pollEvery == 0 {
		pollEvery = 200 * time.Millisecond
	}
	if maxAttempts == 0 {
		maxAttempts = 10
	}
	return &Poll{
		submitURL:   submitURL,
		statusURL:   statusURLFormat,
		client:      &http.Client{Timeout: timeout},
		pollEvery:   pollEvery,
		maxAttempts: maxAttempts,
	}
}

type pollSubmitBody struct {
	ChainID     uint64 `json:"chainId"`
	Domain      string `json:"domain"`
	DestAddress string `json:"destAddress"`
	Data        string `json:"data"`
	Amount      string `json:"amount"`
}

type pollSubmitResponse struct {
	JobID string `json:"jobId"`
}

type pollStatusResponse struct {
	Status string `json:"status"` // "pending", "complete", "failed"
	TaskID string `json:"taskId"`
}

// Send submits req, then polls the status endpoint until the job
// completes, fails, or maxAttempts is exhausted.
func (p *Poll) Send(ctx context.Context, req relay.SendRequest) (string, error) {
	jobID, err := p.submit(ctx, req)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		status, err := p.poll(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch status.Status {
		case "complete":
			if status.TaskID == "" {
				return "", fmt.Errorf("relayer job %s completed with no taskId", jobID)
			}
			return status.TaskID, nil
		case "failed":
			return "", fmt.Errorf("relayer job %s failed", jobID)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
	return "", fmt.Errorf("relayer job %s did not complete within %d polls", jobID, p.maxAttempts)
}

func (p *Poll) submit(ctx context.Context, req relay.SendRequest) (string, error) {
	body := pollSubmitBody{
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
		return "", fmt.Errorf("marshal relayer submit: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.submitURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build relayer submit: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("relayer submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("relayer submit returned status %d", resp.StatusCode)
	}

	var out pollSubmitResponse
	limited := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(limited).Decode(&out); err != nil {
		return "", fmt.Errorf("decode relayer submit response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("relayer submit response carried no jobId")
	}
	return out.JobID, nil
}

func (p *Poll) poll(ctx context.Context, jobID string) (*pollStatusResponse, error) {
	url := fmt.Sprintf(p.statusURL, jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build relayer poll: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relayer poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relayer poll returned status %d", resp.StatusCode)
	}

	var out pollStatusResponse
	limited := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(limited).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode relayer poll response: %w", err)
	}
	return &out, nil
}
