package geolocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gfbeer/venue-finder/internal/model"
)

// PermissionState mirrors the platform permission query.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	PermissionUnknown PermissionState = "unknown"
)

// ParsePermissionState accepts the values a browser reports.
func ParsePermissionState(s string) PermissionState {
	switch PermissionState(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	case PermissionPrompt:
		return PermissionPrompt
	default:
		return PermissionUnknown
	}
}

// PositionOptions configures one platform fetch.
type PositionOptions struct {
	HighAccuracy bool          `json:"enable_high_accuracy"`
	Timeout      time.Duration `json:"timeout"`
	MaximumAge   time.Duration `json:"maximum_age"`
}

// Platform error codes, numbered as the browser geolocation API numbers them.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// PositionError is a platform-level fetch failure.
type PositionError struct {
	Code    int
	Message string
}

func (e *PositionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("position error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("position error %d", e.Code)
}

// Platform is the device location provider.
type Platform interface {
	// PermissionState returns PermissionUnknown when the state cannot be introspected.
	PermissionState(ctx context.Context) (PermissionState, error)
	// CurrentPosition blocks until a reading is available, the options' timeout elapses or
	// ctx is done. Failures should be *PositionError.
	CurrentPosition(ctx context.Context, opts PositionOptions) (model.LocationReading, error)
}

// ConsentPrompter shows an explanation before the platform permission dialog is triggered.
type ConsentPrompter interface {
	RequestConsent(ctx context.Context) (bool, error)
}

// ConsentFunc adapts a function to ConsentPrompter.
type ConsentFunc func(ctx context.Context) (bool, error)

func (f ConsentFunc) RequestConsent(ctx context.Context) (bool, error) { return f(ctx) }
