// Package relay implements relayer dispatch with backup (spec C7,
// §4.7): an ordered fan-through over configured relayer backends,
// strictly first-success-wins, never parallelized.
package relay

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/bridgeerr"
	"github.com/nexusbridge/sequencer/pkg/logger"
)

// SendRequest is the uniform payload handed to every relayer backend
// (spec §4.7 "send(chainId, domain, destAddress, data, ...)").
type SendRequest struct {
	ChainID          uint64
	Domain           string
	DestAddress      common.Address
	Data             []byte
	Amount           *big.Int
	RelayerSignature string
}

// Relayer is the uniform contract every backend implements — a thin
// send-and-get-a-task-id operation, matching the teacher's
// MakeRequests/MakeBids split collapsed to the single verb this
// domain actually needs (spec §6).
type Relayer interface {
	// Send submits req and returns the relayer's task id.
	Send(ctx context.Context, req SendRequest) (taskID string, err error)
}

// Handle names a configured relayer instance so dispatch can report
// which ones were attempted.
type Handle struct {
	Type    string
	Relayer Relayer
}

// Recorder observes per-relayer send outcomes. Optional: Dispatch
// works identically whether or not one is supplied.
type Recorder interface {
	RecordRelayerSend(relayerType, result string, latency time.Duration)
	RecordRelayerFailover(from, to string)
}

// Dispatch implements §4.7: try each relayer in order, return on first
// success, fail with RelayerSendFailed only once every relayer has
// been tried. Callers MUST NOT parallelize the handles slice —
// primary relayers are cheaper/preferred and a backup send is wasted
// work if the primary succeeds. rec is variadic so existing 3-arg
// call sites keep compiling; at most the first value is used.
func Dispatch(ctx context.Context, relayers []Handle, req SendRequest, rec ...Recorder) (taskID string, err error) {
	var recorder Recorder
	if len(rec) > 0 {
		recorder = rec[0]
	}

	attempted := make([]string, 0, len(relayers))
	for i, h := range relayers {
		attempted = append(attempted, h.Type)

		start := time.Now()
		taskID, err := h.Relayer.Send(ctx, req)
		latency := time.Since(start)

		if err != nil {
			logger.Relay(h.Type).Warn().Err(err).Str("domain", req.Domain).Msg("relayer send failed, trying next")
			if recorder != nil {
				recorder.RecordRelayerSend(h.Type, "failure", latency)
				if i+1 < len(relayers) {
					recorder.RecordRelayerFailover(h.Type, relayers[i+1].Type)
				}
			}
			continue
		}
		if recorder != nil {
			recorder.RecordRelayerSend(h.Type, "success", latency)
		}
		return taskID, nil
	}
	return "", bridgeerr.RelayerSendFailed(attempted)
}
