package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies lookup failures so callers branch on kind, not text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindEmptyQuery
	KindGeocodeNotFound
	KindGeocodeProvider
	KindNoBoundaryFound
	KindBoundaryLookup
	KindAdjacencyLookup
)

func (k ErrorKind) String() string {
	switch k {
	case KindEmptyQuery:
		return "empty_query"
	case KindGeocodeNotFound:
		return "geocode_not_found"
	case KindGeocodeProvider:
		return "geocode_provider_error"
	case KindNoBoundaryFound:
		return "no_boundary_found"
	case KindBoundaryLookup:
		return "boundary_lookup_failed"
	case KindAdjacencyLookup:
		return "adjacency_lookup_failed"
	default:
		return "unknown"
	}
}

// User-facing messages.
const (
	MsgEmptyQuery      = "Please enter an address or zip code"
	MsgGeocodeNotFound = "Address not found. Please try a different address or zip code."
	MsgNoBoundaryFound = "No HUC8 found for this location. Please ensure the location is within the United States."
	MsgSearchFailed    = "An error occurred during the search"
	MsgSelectFailed    = "An error occurred while loading the selected HUC8"
)

// ErrBusy is returned when a lookup is started while another is in flight.
var ErrBusy = errors.New("a lookup is already in progress")

// LookupError is a classified failure from one pipeline stage.
type LookupError struct {
	Kind    ErrorKind
	Message string
	Status  int // provider HTTP status, 0 if the request never completed
	Err     error
}

func (e *LookupError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *LookupError) Unwrap() error { return e.Err }

// NewError builds a LookupError with a fixed message.
func NewError(kind ErrorKind, msg string, cause error) *LookupError {
	return &LookupError{Kind: kind, Message: msg, Err: cause}
}

// WrapError builds a LookupError whose message is prefix followed by the cause.
func WrapError(kind ErrorKind, prefix string, cause error) *LookupError {
	e := &LookupError{Kind: kind, Message: fmt.Sprintf("%s: %v", prefix, cause), Err: cause}
	var se *StatusError
	if errors.As(cause, &se) {
		e.Status = se.Status
	}
	return e
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.Status, e.Body)
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// UserMessage returns the message to show for err. Classified errors surface
// their own message verbatim; anything else gets fallback.
func UserMessage(err error, fallback string) string {
	var le *LookupError
	if errors.As(err, &le) && le.Kind != KindUnknown && le.Message != "" {
		return le.Message
	}
	return fallback
}
