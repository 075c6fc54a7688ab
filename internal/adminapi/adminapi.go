// Package adminapi provides read-only HTTP endpoints for operating the
// sequencer: liveness/readiness, a single auction's current state, and
// the currently configured relayer set. Adapted from the teacher's
// internal/endpoints package (ServeHTTP handlers, ValidationError,
// writeError), repurposed from OpenRTB auction submission to read-only
// auction-state inspection — bids are ingested over the message
// broker (spec §6 "out of scope"), never through this HTTP surface.
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/sequencer/internal/auctioncache"
	"github.com/nexusbridge/sequencer/internal/chainreader"
	"github.com/nexusbridge/sequencer/internal/domain"
	"github.com/nexusbridge/sequencer/internal/metrics"
	"github.com/nexusbridge/sequencer/internal/relay"
	"github.com/nexusbridge/sequencer/pkg/logger"
)

// RelayerLister is the narrow view of relay.Registry this package
// depends on, so tests can substitute a fixed list.
type RelayerLister interface {
	Configs() []relay.Config
	Count() int
}

// IndexerStatus is the narrow view of the chain reader's circuit
// breaker this package reports on /status, so tests can substitute a
// fixed stats value without a real HTTP indexer.
type IndexerStatus interface {
	CircuitBreakerStats() chainreader.CircuitBreakerStats
}

// Handler serves the admin read-only API.
type Handler struct {
	auctions  *auctioncache.Cache
	relayers  RelayerLister
	indexer   IndexerStatus
	metrics   *metrics.Metrics
	startedAt time.Time
}

// New creates an admin API handler. indexer and m may both be nil, in
// which case /status omits indexer circuit state and no metric is set.
func New(auctions *auctioncache.Cache, relayers RelayerLister, indexer IndexerStatus, m *metrics.Metrics) *Handler {
	return &Handler{auctions: auctions, relayers: relayers, indexer: indexer, metrics: m, startedAt: time.Now()}
}

// Routes registers every admin endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /admin/auctions/{id}", h.handleAuction)
	mux.HandleFunc("GET /admin/relayers", h.handleRelayers)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	queued, err := h.auctions.GetQueuedTransfers(r.Context())
	if err != nil {
		logger.HTTP().Error().Err(err).Msg("status: failed to read queued transfers")
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	relayerCount := 0
	if h.relayers != nil {
		relayerCount = h.relayers.Count()
	}

	resp := map[string]any{
		"status":         "ok",
		"uptimeSeconds":  int(time.Since(h.startedAt).Seconds()),
		"queuedTransfer": len(queued),
		"relayersActive": relayerCount,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if h.indexer != nil {
		stats := h.indexer.CircuitBreakerStats()
		resp["indexerCircuit"] = stats.State
		resp["indexerConsecutiveFails"] = stats.ConsecutiveFails
		if h.metrics != nil {
			h.metrics.SetIndexerCircuitState(stats.State)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// auctionView is the JSON shape returned for one transfer's state.
type auctionView struct {
	TransferID string          `json:"transferId"`
	Status     string          `json:"status"`
	Origin     domain.Domain   `json:"origin,omitempty"`
	Dest       domain.Domain   `json:"destination,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	BidCount   int             `json:"bidCount"`
	Task       *taskView       `json:"task,omitempty"`
}

type taskView struct {
	TaskID    string `json:"taskId"`
	Attempts  int    `json:"attempts"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleAuction(w http.ResponseWriter, r *http.Request) {
	idParam := r.PathValue("id")
	if len(idParam) != 66 {
		// TransferID is a 32-byte hash; a loose length check here is
		// cheap input validation before touching the cache.
		writeError(w, &ValidationError{Field: "id", Message: "must be a 0x-prefixed 32-byte hash"}, http.StatusBadRequest)
		return
	}
	transferID := common.HexToHash(idParam)

	status, err := h.auctions.GetStatus(r.Context(), transferID)
	if err != nil {
		logger.HTTP().Error().Err(err).Str("transferId", idParam).Msg("failed to read auction status")
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if status == domain.StatusNone {
		writeError(w, "auction not found", http.StatusNotFound)
		return
	}

	view := auctionView{TransferID: transferID.Hex(), Status: status.String()}

	if auction, ok, err := h.auctions.GetAuction(r.Context(), transferID); err == nil && ok {
		view.Origin = auction.Origin
		view.Dest = auction.Destination
		view.Timestamp = auction.Timestamp
		view.BidCount = len(auction.Bids)
	}

	if task, ok, err := h.auctions.GetTask(r.Context(), transferID); err == nil && ok {
		view.Task = &taskView{TaskID: task.TaskID, Attempts: task.Attempts, Timestamp: task.Timestamp}
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleRelayers(w http.ResponseWriter, r *http.Request) {
	var configs []relay.Config
	if h.relayers != nil {
		configs = h.relayers.Configs()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"relayers": configs,
	})
}

// ValidationError reports a malformed admin API request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.HTTP().Error().Err(err).Msg("failed to encode admin API response")
	}
}

func writeError(w http.ResponseWriter, err any, status int) {
	msg := ""
	switch e := err.(type) {
	case string:
		msg = e
	case error:
		msg = e.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
