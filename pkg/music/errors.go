package music

import (
	"context"
	"errors"
	"net"
	"syscall"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotPlaying
	KindNotFound
	KindNoConnectivity
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindNotPlaying:
		return "not_playing"
	case KindNotFound:
		return "not_found"
	case KindNoConnectivity:
		return "no_connectivity"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Error is the only error kind the presentation layer ever sees.
type Error struct {
	Kind        Kind
	Description string // 仅用于 KindUnknown
	Err         error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotPlaying:
		return "No song is currently playing."
	case KindNotFound:
		return "Lyrics not found."
	case KindNoConnectivity:
		return "No internet connection."
	case KindInvalidResponse:
		return "Received an invalid response from the lyrics server."
	}
	if e.Description != "" {
		return e.Description
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "Unknown error."
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, ErrNotFound) holds for any not-found
// error regardless of its cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Kind != KindUnknown || t.Description == "" || t.Description == e.Description)
}

var (
	ErrNotPlaying      = &Error{Kind: KindNotPlaying}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrNoConnectivity  = &Error{Kind: KindNoConnectivity}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
)

func NotFound(err error) error        { return &Error{Kind: KindNotFound, Err: err} }
func InvalidResponse(err error) error { return &Error{Kind: KindInvalidResponse, Err: err} }
func NoConnectivity(err error) error  { return &Error{Kind: KindNoConnectivity, Err: err} }

func Unknown(err error) error {
	return &Error{Kind: KindUnknown, Description: err.Error(), Err: err}
}

// AsError returns err as an *Error, wrapping anything unrecognised as
// KindUnknown. nil stays nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Unknown(err).(*Error)
}

// ClassifyTransport maps an error returned by http.Client.Do to an error
// kind. Connection-level failures become KindNoConnectivity; context
// cancellation is returned unchanged so callers can tell it apart.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isConnectivityError(err) {
		return NoConnectivity(err)
	}
	return Unknown(err)
}

func isConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETDOWN) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return !opErr.Timeout()
	}
	return false
}
