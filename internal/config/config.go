package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config lists the tunable parameters for the venue finder.
type Config struct {
	BackendURL        string
	AdminToken        string
	RequestTimeout    time.Duration
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderRPS       float64
	FallbackRadiusKm  float64
	GFOnly            bool

	HTTPPort     int
	MDNS         bool
	SessionIdle  time.Duration
	DatabasePath string
	LogLevel     string

	MQTTBroker string
	MQTTTopic  string

	StaticLocation *StaticLocation
	IPLocatorURL   string
	MapPath        string
}

// StaticLocation is a fixed device position, used where no real positioning exists.
type StaticLocation struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
}

const (
	defaultBackendURL        = "http://localhost:5000"
	defaultRequestTimeout    = 15 * time.Second
	defaultGeocoderURL       = "https://nominatim.openstreetmap.org/search"
	defaultGeocoderUserAgent = "venue-finder/1.0"
	defaultGeocoderRPS       = 1
	defaultFallbackRadiusKm  = 5
	defaultHTTPPort          = 8080
	defaultSessionIdle       = 30 * time.Minute
	defaultDatabasePath      = "data/finder.db"
	defaultLogLevel          = "info"
	defaultMQTTTopic         = "finder/analytics"
	defaultStaticAccuracy    = 50
	defaultMapPath           = "finder-map.geojson"
)

// Load derives configuration values from environment variables, falling back to defaults.
// A .env file in the working directory is read first when present; real environment
// variables take precedence over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		BackendURL:        defaultBackendURL,
		RequestTimeout:    defaultRequestTimeout,
		GeocoderURL:       defaultGeocoderURL,
		GeocoderUserAgent: defaultGeocoderUserAgent,
		GeocoderRPS:       defaultGeocoderRPS,
		FallbackRadiusKm:  defaultFallbackRadiusKm,
		HTTPPort:          defaultHTTPPort,
		SessionIdle:       defaultSessionIdle,
		DatabasePath:      defaultDatabasePath,
		LogLevel:          defaultLogLevel,
		MQTTTopic:         defaultMQTTTopic,
		MapPath:           defaultMapPath,
	}

	if v := os.Getenv("FINDER_BACKEND_URL"); v != "" {
		cfg.BackendURL = strings.TrimRight(v, "/")
	}

	cfg.AdminToken = os.Getenv("FINDER_ADMIN_TOKEN")

	if v := os.Getenv("FINDER_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := os.Getenv("FINDER_GEOCODER_URL"); v != "" {
		cfg.GeocoderURL = v
	}

	if v := os.Getenv("FINDER_GEOCODER_USER_AGENT"); v != "" {
		cfg.GeocoderUserAgent = v
	}

	if v := os.Getenv("FINDER_GEOCODER_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_GEOCODER_RPS: %w", err)
		}
		cfg.GeocoderRPS = rps
	}

	if v := os.Getenv("FINDER_FALLBACK_RADIUS_KM"); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_FALLBACK_RADIUS_KM: %w", err)
		}
		if km <= 0 {
			return Config{}, fmt.Errorf("invalid FINDER_FALLBACK_RADIUS_KM: must be positive")
		}
		cfg.FallbackRadiusKm = km
	}

	if v := os.Getenv("FINDER_GF_ONLY"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_GF_ONLY: %w", err)
		}
		cfg.GFOnly = on
	}

	if v := os.Getenv("FINDER_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = port
	}

	if v := os.Getenv("FINDER_MDNS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_MDNS: %w", err)
		}
		cfg.MDNS = on
	}

	if v := os.Getenv("FINDER_SESSION_IDLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINDER_SESSION_IDLE: %w", err)
		}
		cfg.SessionIdle = d
	}

	if v := os.Getenv("FINDER_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	if v := os.Getenv("FINDER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.MQTTBroker = os.Getenv("FINDER_MQTT_BROKER")
	if v := os.Getenv("FINDER_MQTT_TOPIC"); v != "" {
		cfg.MQTTTopic = v
	}

	static, err := loadStaticLocation()
	if err != nil {
		return Config{}, err
	}
	cfg.StaticLocation = static

	cfg.IPLocatorURL = os.Getenv("FINDER_IP_LOCATOR_URL")

	if v := os.Getenv("FINDER_MAP_PATH"); v != "" {
		cfg.MapPath = v
	}

	return cfg, nil
}

func loadStaticLocation() (*StaticLocation, error) {
	latRaw, lngRaw := os.Getenv("FINDER_LAT"), os.Getenv("FINDER_LNG")
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lngRaw == "" {
		return nil, errors.New("FINDER_LAT and FINDER_LNG must be set together")
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FINDER_LAT: %w", err)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FINDER_LNG: %w", err)
	}

	loc := &StaticLocation{Latitude: lat, Longitude: lng, AccuracyMeters: defaultStaticAccuracy}
	if v := os.Getenv("FINDER_ACCURACY"); v != "" {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FINDER_ACCURACY: %w", err)
		}
		loc.AccuracyMeters = acc
	}
	return loc, nil
}
