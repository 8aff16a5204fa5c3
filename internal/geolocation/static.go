package geolocation

import (
	"context"
	"time"

	"gfbeer/venue-finder/internal/model"
)

// StaticPlatform reports a fixed, pre-granted position. Used when the location is supplied
// by configuration.
type StaticPlatform struct {
	Lat, Lng       float64
	AccuracyMeters float64
}

func (s StaticPlatform) PermissionState(context.Context) (PermissionState, error) {
	return PermissionGranted, nil
}

func (s StaticPlatform) CurrentPosition(ctx context.Context, _ PositionOptions) (model.LocationReading, error) {
	if err := ctx.Err(); err != nil {
		return model.LocationReading{}, err
	}
	r, err := model.NewLocationReading(s.Lat, s.Lng, s.AccuracyMeters, time.Now().UTC())
	if err != nil {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}
	return r, nil
}

// DeniedPlatform refuses every request, for setups with location disabled.
type DeniedPlatform struct{}

func (DeniedPlatform) PermissionState(context.Context) (PermissionState, error) {
	return PermissionDenied, nil
}

func (DeniedPlatform) CurrentPosition(context.Context, PositionOptions) (model.LocationReading, error) {
	return model.LocationReading{}, &PositionError{Code: CodePermissionDenied, Message: "location disabled"}
}
