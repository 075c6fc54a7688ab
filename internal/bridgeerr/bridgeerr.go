// Package bridgeerr defines the closed error categories raised across
// the sequencer core, so callers can branch with errors.Is/As instead
// of matching on strings.
package bridgeerr

import "fmt"

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	// KindInvalidParams marks a caller error: fail fast, do not retry.
	KindInvalidParams Kind = "invalid_params"
	// KindAuctionExpired marks a caller error: the auction already
	// advanced past the point where new bids are accepted.
	KindAuctionExpired Kind = "auction_expired"
	// KindRelayerSendFailed marks a fatal dispatch error: every
	// configured relayer rejected the same send.
	KindRelayerSendFailed Kind = "relayer_send_failed"
)

// Error is a tagged error carrying a Kind so callers can distinguish
// caller errors from fatal dispatch errors without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so
// errors.Is(err, bridgeerr.InvalidParams("")) style checks work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// InvalidParams builds a caller-error for a malformed bid or request.
func InvalidParams(message string) *Error {
	return &Error{Kind: KindInvalidParams, Message: message}
}

// AuctionExpired builds the error returned when a bid arrives for an
// auction that has already moved past Queued.
func AuctionExpired(transferID string) *Error {
	return &Error{Kind: KindAuctionExpired, Message: "auction " + transferID + " is no longer accepting bids"}
}

// RelayerSendFailed builds the error returned when every configured
// relayer rejected the same send.
func RelayerSendFailed(attempted []string) *Error {
	return &Error{
		Kind:    KindRelayerSendFailed,
		Message: fmt.Sprintf("all relayers failed: %v", attempted),
	}
}

// ErrOriginDestinationMismatch is returned by upsertAuction when a
// repeat upsert names an origin/destination pair that differs from
// the auction's existing record — a caller contract violation per
// spec (§4.2 Open Question: implementation rejects defensively).
var ErrOriginDestinationMismatch = &Error{
	Kind:    KindInvalidParams,
	Message: "origin/destination mismatch with existing auction record",
}
