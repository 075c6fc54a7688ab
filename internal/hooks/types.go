// Package hooks provides lifecycle notification infrastructure for the
// sequencer core: operator-registered callbacks fired at points in the
// auction lifecycle (bid accepted, dispatch attempted, dispatch
// succeeded/failed), each executed by a pluggable Runtime (local
// in-process, HTTP webhook). This is a supplemental extensibility
// surface the core's own components never depend on for correctness —
// the auction/cache/executor state machine works identically whether
// or not any hook is registered.
package hooks

import (
	"context"
	"time"
)

// EventType identifies a point in the auction lifecycle a hook can
// attach to.
type EventType string

const (
	// EventBidAccepted fires after bid ingestion stores a bid and sets
	// status Queued (spec §4.4).
	EventBidAccepted EventType = "bid_accepted"

	// EventAuctionDispatching names the point just before the executor
	// attempts dispatch for a candidate (spec §4.6 step d). The executor
	// does not fire it, so hooks registered for it are never called.
	EventAuctionDispatching EventType = "auction_dispatching"

	// EventDispatchSucceeded fires after a relayer accepts a dispatch
	// and the auction is marked Sent (spec §4.6 step f).
	EventDispatchSucceeded EventType = "dispatch_succeeded"

	// EventDispatchFailed fires once per transfer and tick when no
	// candidate was dispatched: every candidate was skipped (liquidity)
	// or every configured relayer rejected its send.
	EventDispatchFailed EventType = "dispatch_failed"
)

// HookConfig describes one registered hook's identity and runtime.
type HookConfig struct {
	Type     EventType `json:"type"`
	Name     string    `json:"name"`
	Enabled  bool      `json:"enabled"`
	Priority int       `json:"priority"`
	Runtime  RuntimeConfig `json:"runtime"`
	Timeout  time.Duration `json:"timeout"`
}

// RuntimeConfig selects and configures a Runtime.
type RuntimeConfig struct {
	// Kind selects the runtime: "local" or "http".
	Kind string `json:"kind"`
	// URL is the webhook endpoint for the "http" runtime.
	URL string `json:"url,omitempty"`
}

// Event is the payload delivered to a hook.
type Event struct {
	Type        EventType `json:"type"`
	TransferID  string    `json:"transferId"`
	Destination string    `json:"destination,omitempty"`
	Router      string    `json:"router,omitempty"`
	TaskID      string    `json:"taskId,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Result is what a hook returns.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Hook is one registered lifecycle callback.
type Hook interface {
	Type() EventType
	Name() string
	Priority() int
	IsEnabled() bool
	Execute(ctx context.Context, event Event) (Result, error)
}

// Runtime executes a hook's configured side effect.
type Runtime interface {
	Name() string
	Execute(ctx context.Context, cfg RuntimeConfig, event Event) (Result, error)
}
