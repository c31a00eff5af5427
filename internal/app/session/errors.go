package session

import (
	"errors"
	"fmt"

	"github.com/dkeye/Recorder/internal/domain"
)

var (
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrInvalidState       = errors.New("invalid session state")
	ErrMalformedOffer     = errors.New("malformed offer")
	ErrResourceAllocation = errors.New("resource allocation failed")
	ErrSendFailed         = errors.New("send failed")
	ErrJoinFailed         = errors.New("join failed")
	ErrConnectivity       = errors.New("connectivity establishment failed")
	ErrClosed             = errors.New("session closed")
	ErrBackpressure       = errors.New("backpressure")
)

// NegotiationError attaches the media kind a setup step failed for.
type NegotiationError struct {
	Kind domain.MediaKind
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// failureReason labels err for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedOffer):
		return "malformed_offer"
	case errors.Is(err, ErrResourceAllocation):
		return "resource_allocation"
	case errors.Is(err, ErrSendFailed):
		return "send"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	}
	return "other"
}
