// Package apperr defines the error taxonomy shared by the search core. Components return
// *Error values; the HTTP facade maps their Kind onto status codes and the dispatcher maps
// them onto user guidance.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPermissionDenied: the user or platform refused location access.
	KindPermissionDenied
	// KindPositionUnavailable: the platform could not produce a fix.
	KindPositionUnavailable
	// KindLocationTimeout: no fix arrived before the tier deadline.
	KindLocationTimeout
	// KindLocationRequired: a proximity search had no usable anchor.
	KindLocationRequired
	// KindBackendUnavailable: network or HTTP failure talking to the backend.
	KindBackendUnavailable
	// KindInvalidInput: the request was rejected before any I/O.
	KindInvalidInput
	// KindAcquisitionInProgress: a location acquisition is already pending.
	KindAcquisitionInProgress
	// KindSuperseded: a newer request replaced this one. Never shown to users.
	KindSuperseded
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindPermissionDenied:      "permission_denied",
	KindPositionUnavailable:   "position_unavailable",
	KindLocationTimeout:       "location_timeout",
	KindLocationRequired:      "location_required",
	KindBackendUnavailable:    "backend_unavailable",
	KindInvalidInput:          "invalid_input",
	KindAcquisitionInProgress: "acquisition_in_progress",
	KindSuperseded:            "request_superseded",
	KindNotFound:              "not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a typed failure.
type Error struct {
	Kind    Kind
	Message string
	Op      string // operation that failed (optional)
	Err     error  // underlying cause (optional)
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so sentinel comparisons work through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == "" && t.Err == nil
}

// HTTPStatus maps the kind onto a response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindLocationRequired, KindPositionUnavailable:
		return http.StatusUnprocessableEntity
	case KindLocationTimeout:
		return http.StatusGatewayTimeout
	case KindAcquisitionInProgress:
		return http.StatusConflict
	case KindBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithOp sets the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Sentinels for errors.Is checks. Compare by Kind only.
var (
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied}
	ErrPositionUnavailable   = &Error{Kind: KindPositionUnavailable}
	ErrLocationTimeout       = &Error{Kind: KindLocationTimeout}
	ErrLocationRequired      = &Error{Kind: KindLocationRequired}
	ErrBackendUnavailable    = &Error{Kind: KindBackendUnavailable}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrAcquisitionInProgress = &Error{Kind: KindAcquisitionInProgress}
	ErrSuperseded            = &Error{Kind: KindSuperseded}
	ErrNotFound              = &Error{Kind: KindNotFound}
)

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Cause returns the kind of the innermost *Error in err's chain, which for a wrapped
// location failure is the platform-level reason.
func Cause(err error) Kind {
	kind := KindUnknown
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		kind = e.Kind
		err = e.Err
	}
	return kind
}
