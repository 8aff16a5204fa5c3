// Package geolocation obtains the user's position through a permission-aware, two-tier
// accuracy fallback and keeps the last good reading for a short while.
package geolocation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/geo"
	"gfbeer/venue-finder/internal/model"
)

const (
	// MaxAcceptedAccuracy is the worst high-accuracy reading accepted without a fallback fetch.
	MaxAcceptedAccuracy = 5000.0
	// LowConfidenceAccuracy flags readings callers should caveat.
	LowConfidenceAccuracy = 1000.0
)

var (
	// HighAccuracyOptions forces precise sensors and tolerates a long wait.
	HighAccuracyOptions = PositionOptions{HighAccuracy: true, Timeout: 20 * time.Second, MaximumAge: 30 * time.Second}
	// FallbackOptions accepts coarse, older fixes quickly.
	FallbackOptions = PositionOptions{HighAccuracy: false, Timeout: 10 * time.Second, MaximumAge: 120 * time.Second}
)

// Fix is a successful acquisition.
type Fix struct {
	Reading       model.LocationReading `json:"reading"`
	LowConfidence bool                  `json:"low_confidence"`
}

func newFix(r model.LocationReading) Fix {
	return Fix{Reading: r, LowConfidence: r.AccuracyMeters > LowConfidenceAccuracy}
}

// CacheStore persists the cached reading across restarts.
type CacheStore interface {
	SaveLocation(ctx context.Context, r model.LocationReading) error
	LoadLocation(ctx context.Context) (*model.LocationReading, error)
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Acquirer) { a.now = now }
}

// WithCacheStore persists successful readings.
func WithCacheStore(s CacheStore) Option {
	return func(a *Acquirer) { a.store = s }
}

// WithTiers overrides the fetch options of the two accuracy tiers.
func WithTiers(high, fallback PositionOptions) Option {
	return func(a *Acquirer) {
		a.high = high
		a.fallback = fallback
	}
}

// WithAnalytics reports acquisition outcomes.
func WithAnalytics(s analytics.Sink) Option {
	return func(a *Acquirer) { a.tracker = s }
}

// Acquirer runs the acquisition protocol. It owns the location cache; no other component
// writes it.
type Acquirer struct {
	platform Platform
	consent  ConsentPrompter
	logger   *slog.Logger
	now      func() time.Time
	tracker  analytics.Sink
	store    CacheStore
	high     PositionOptions
	fallback PositionOptions

	inFlight atomic.Bool

	mu     sync.RWMutex
	cached *model.LocationReading
}

// NewAcquirer builds an Acquirer. consent may be nil, in which case the platform's own
// prompt is relied on.
func NewAcquirer(platform Platform, consent ConsentPrompter, logger *slog.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		platform: platform,
		consent:  consent,
		logger:   logger,
		now:      time.Now,
		tracker:  analytics.Nop,
		high:     HighAccuracyOptions,
		fallback: FallbackOptions,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Acquire runs the full protocol, ignoring the cache. Only one acquisition may be pending;
// a concurrent call fails with KindAcquisitionInProgress instead of racing a second prompt.
func (a *Acquirer) Acquire(ctx context.Context) (Fix, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return Fix{}, apperr.New(apperr.KindAcquisitionInProgress, "location request already in progress").WithOp("geolocation.Acquire")
	}
	defer a.inFlight.Store(false)

	fix, err := a.run(ctx)
	if err != nil {
		a.logger.Info("location acquisition failed", "reason", apperr.KindOf(err).String(), "error", err)
		a.tracker.Track(analytics.NewEvent("location_failed", analytics.CategoryLocation, apperr.KindOf(err).String()))
		return Fix{}, err
	}

	a.remember(ctx, fix.Reading)
	a.logger.Info("location acquired",
		"cell", geo.Cell(fix.Reading.Point()),
		"accuracy_m", fix.Reading.AccuracyMeters,
		"low_confidence", fix.LowConfidence,
	)
	label := "precise"
	if fix.LowConfidence {
		label = "low_confidence"
	}
	a.tracker.Track(analytics.NewEvent("location_acquired", analytics.CategoryLocation, label))
	return fix, nil
}

// Current returns the cached reading when it is younger than model.LocationTTL and runs the
// protocol otherwise.
func (a *Acquirer) Current(ctx context.Context) (Fix, error) {
	if r, ok := a.Cached(); ok {
		return newFix(r), nil
	}
	return a.Acquire(ctx)
}

// BestEffort returns a fresh cached reading, or acquires one when permission is already
// granted. It never shows a consent prompt and never fails; nil means no anchor.
func (a *Acquirer) BestEffort(ctx context.Context) *model.LocationReading {
	if r, ok := a.Cached(); ok {
		return &r
	}
	if a.permission(ctx) != PermissionGranted {
		return nil
	}
	fix, err := a.Acquire(ctx)
	if err != nil {
		return nil
	}
	r := fix.Reading
	return &r
}

// Cached returns the cached reading if it has not expired.
func (a *Acquirer) Cached() (model.LocationReading, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cached == nil || a.cached.Expired(a.now()) {
		return model.LocationReading{}, false
	}
	return *a.cached, true
}

// Forget drops the cached reading.
func (a *Acquirer) Forget() {
	a.mu.Lock()
	a.cached = nil
	a.mu.Unlock()
}

// Restore loads a persisted reading into the cache if it is still fresh.
func (a *Acquirer) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	r, err := a.store.LoadLocation(ctx)
	if err != nil {
		return err
	}
	if r == nil || r.Expired(a.now()) {
		return nil
	}
	a.mu.Lock()
	a.cached = r
	a.mu.Unlock()
	return nil
}

func (a *Acquirer) remember(ctx context.Context, r model.LocationReading) {
	a.mu.Lock()
	a.cached = &r
	a.mu.Unlock()

	if a.store == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.store.SaveLocation(storeCtx, r); err != nil {
		a.logger.Warn("persist location failed", "error", err)
	}
}

func (a *Acquirer) permission(ctx context.Context) PermissionState {
	state, err := a.platform.PermissionState(ctx)
	if err != nil {
		a.logger.Debug("permission state unavailable", "error", err)
		return PermissionUnknown
	}
	return state
}

func (a *Acquirer) run(ctx context.Context) (Fix, error) {
	const op = "geolocation.Acquire"

	switch a.permission(ctx) {
	case PermissionGranted:
	case PermissionDenied:
		return Fix{}, apperr.New(apperr.KindPermissionDenied, "location permission is blocked").WithOp(op)
	default:
		if a.consent != nil {
			ok, err := a.consent.RequestConsent(ctx)
			if err != nil {
				return Fix{}, apperr.Wrap(apperr.KindPermissionDenied, "location consent not given", err).WithOp(op)
			}
			if !ok {
				return Fix{}, apperr.New(apperr.KindPermissionDenied, "user declined to share location").WithOp(op)
			}
		}
	}

	high, err := a.fetch(ctx, a.high)
	if err == nil && high.AccuracyMeters <= MaxAcceptedAccuracy {
		return newFix(high), nil
	}

	var poor *model.LocationReading
	if err == nil {
		poor = &high
		a.logger.Debug("high accuracy reading too coarse, falling back", "accuracy_m", high.AccuracyMeters)
	} else {
		a.logger.Debug("high accuracy fetch failed, falling back", "error", err)
	}

	low, err := a.fetch(ctx, a.fallback)
	if err == nil {
		best := low
		if poor != nil && poor.AccuracyMeters < low.AccuracyMeters {
			best = *poor
		}
		return newFix(best), nil
	}
	if poor != nil {
		a.logger.Debug("fallback fetch failed, keeping coarse reading", "error", err)
		return newFix(*poor), nil
	}
	return Fix{}, classify(err).WithOp(op)
}

func (a *Acquirer) fetch(ctx context.Context, opts PositionOptions) (model.LocationReading, error) {
	if err := ctx.Err(); err != nil {
		return model.LocationReading{}, err
	}

	tierCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	r, err := a.platform.CurrentPosition(tierCtx, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return model.LocationReading{}, &PositionError{Code: CodeTimeout, Message: "no position before tier deadline"}
		}
		return model.LocationReading{}, err
	}
	if r.AccuracyMeters < 0 {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: "negative accuracy"}
	}
	if r.AcquiredAt.IsZero() {
		r.AcquiredAt = a.now()
	}
	return r, nil
}

func classify(err error) *apperr.Error {
	var pe *PositionError
	if errors.As(err, &pe) {
		switch pe.Code {
		case CodePermissionDenied:
			return apperr.Wrap(apperr.KindPermissionDenied, "location permission denied", err)
		case CodeTimeout:
			return apperr.Wrap(apperr.KindLocationTimeout, "location request timed out", err)
		default:
			return apperr.Wrap(apperr.KindPositionUnavailable, "position unavailable", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindLocationTimeout, "location request timed out", err)
	}
	return apperr.Wrap(apperr.KindPositionUnavailable, "position unavailable", err)
}
