package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrNotApproved            = errors.New("control room approval required")
	ErrStreamNotEligible      = errors.New("auction not eligible for streaming")
	ErrAuctionLocked          = errors.New("auction locked for price changes")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrAuctionNotLive         = errors.New("auction not live")
	ErrBidTooLow              = errors.New("bid too low")
	ErrAlreadyTerminal        = errors.New("already in terminal state")
	ErrPhase1NotComplete      = errors.New("service fees not paid")
	ErrConflict               = errors.New("conflict")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrSerializationFailure   = errors.New("serialization failure")
)

// ErrorKind returns the stable machine-readable name for a domain error,
// or "INTERNAL" for anything outside the taxonomy.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrNotApproved):
		return "NOT_APPROVED"
	case errors.Is(err, ErrStreamNotEligible):
		return "STREAM_NOT_ELIGIBLE"
	case errors.Is(err, ErrAuctionLocked):
		return "AUCTION_LOCKED"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrAuctionNotLive):
		return "AUCTION_NOT_LIVE"
	case errors.Is(err, ErrBidTooLow):
		return "BID_TOO_LOW"
	case errors.Is(err, ErrAlreadyTerminal):
		return "ALREADY_TERMINAL"
	case errors.Is(err, ErrPhase1NotComplete):
		return "PHASE1_NOT_COMPLETE"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrGatewayUnavailable):
		return "GATEWAY_UNAVAILABLE"
	case errors.Is(err, ErrSerializationFailure):
		return "SERIALIZATION_FAILURE"
	default:
		return "INTERNAL"
	}
}

// Retryable reports whether the caller should re-read fresh state and try
// again, as opposed to the action being permanently invalid.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrSerializationFailure) ||
		errors.Is(err, ErrGatewayUnavailable)
}
