package geolocation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gfbeer/venue-finder/internal/model"
)

// DefaultIPAccuracyMeters is the assumed accuracy of an IP lookup: roughly a town.
const DefaultIPAccuracyMeters = 25000.0

// IPPlatform locates the machine from its public IP address. It cannot tell high and low
// accuracy apart, so its readings always exercise the fallback tier.
type IPPlatform struct {
	endpoint string
	client   *http.Client
	accuracy float64

	mu      sync.Mutex
	granted bool
	last    *model.LocationReading
}

// NewIPPlatform queries endpoint, which must answer with an ip-api.com style JSON object.
func NewIPPlatform(endpoint string, accuracyMeters float64) *IPPlatform {
	if accuracyMeters <= 0 {
		accuracyMeters = DefaultIPAccuracyMeters
	}
	return &IPPlatform{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		accuracy: accuracyMeters,
	}
}

// Grant records consent given out of band, e.g. a command-line flag.
func (p *IPPlatform) Grant() {
	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()
}

func (p *IPPlatform) PermissionState(context.Context) (PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.granted {
		return PermissionGranted, nil
	}
	return PermissionPrompt, nil
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

func (p *IPPlatform) CurrentPosition(ctx context.Context, opts PositionOptions) (model.LocationReading, error) {
	p.mu.Lock()
	if p.last != nil && opts.MaximumAge > 0 && time.Since(p.last.AcquiredAt) <= opts.MaximumAge {
		r := *p.last
		p.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.LocationReading{}, ctx.Err()
		}
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: fmt.Sprintf("ip lookup status %d", resp.StatusCode)}
	}

	var body ipLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: "decode ip lookup: " + err.Error()}
	}
	if body.Status != "" && body.Status != "success" {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: "ip lookup failed: " + body.Message}
	}

	r, err := model.NewLocationReading(body.Lat, body.Lon, p.accuracy, time.Now().UTC())
	if err != nil {
		return model.LocationReading{}, &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}

	p.mu.Lock()
	p.last = &r
	p.mu.Unlock()
	return r, nil
}
