package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/config"
	"gfbeer/venue-finder/internal/finder"
	"gfbeer/venue-finder/internal/geocode"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/store"
)

// Keys of the app_config table that override configuration for new sessions.
const (
	configGFOnly           = "gf_only"
	configFallbackRadiusKm = "fallback_radius_km"
)

// App wires together the venue finder services and manages their lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store      *store.Store
	backend    *backend.Client
	geocoder   *geocode.Geocoder
	tracker    analytics.Sink
	forwarders []*analytics.Forwarder
	mqtt       mqtt.Client
	sessions   *sessionRegistry
	mdns       *zeroconf.Server

	// runCtx ends when Run is shutting down; long-lived sockets watch it.
	runCtx context.Context
	ready  atomic.Bool
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger, runCtx: context.Background()}
}

// setup opens storage and builds the shared clients. Sessions are built lazily.
func (a *App) setup(ctx context.Context) error {
	db, err := store.Open(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.store = db

	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}

	opts := []backend.Option{backend.WithTimeout(a.cfg.RequestTimeout)}
	if a.cfg.AdminToken != "" {
		opts = append(opts, backend.WithAdminToken(a.cfg.AdminToken))
	}
	client, err := backend.New(a.cfg.BackendURL, a.logger.With("component", "backend"), opts...)
	if err != nil {
		return err
	}
	a.backend = client

	if a.cfg.GeocoderURL != "" {
		a.geocoder = geocode.New(
			a.cfg.GeocoderURL,
			a.cfg.GeocoderUserAgent,
			a.cfg.GeocoderRPS,
			a.logger.With("component", "geocode"),
			geocode.WithCache(a.store, geocode.DefaultCacheTTL),
		)
	}

	sinks := analytics.Multi{analytics.LogSink{Logger: a.logger}}
	journal := analytics.NewJournal(a.store, a.logger, 0)
	a.forwarders = append(a.forwarders, journal)
	sinks = append(sinks, journal)

	if a.cfg.MQTTBroker != "" {
		client, err := analytics.ConnectMQTT(a.cfg.MQTTBroker, "venue-finder", 5*time.Second)
		if err != nil {
			a.logger.Warn("mqtt analytics disabled", "broker", a.cfg.MQTTBroker, "error", err)
		} else {
			a.mqtt = client
			fwd := analytics.NewMQTT(client, a.cfg.MQTTTopic, a.logger, 0)
			a.forwarders = append(a.forwarders, fwd)
			sinks = append(sinks, fwd)
			a.logger.Info("mqtt analytics enabled", "broker", a.cfg.MQTTBroker, "topic", a.cfg.MQTTTopic)
		}
	}
	a.tracker = sinks

	a.sessions = newSessionRegistry(a.buildSession, a.logger)
	return nil
}

func (a *App) teardown() {
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("close store", "error", err)
		}
	}
}

// Run starts all configured services and blocks until the context is cancelled or an error occurs.
func (a *App) Run(ctx context.Context) error {
	if err := a.setup(ctx); err != nil {
		a.teardown()
		return err
	}
	defer a.teardown()

	g, gctx := errgroup.WithContext(ctx)
	a.runCtx = gctx

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		a.logger.Info("http server stopped")
		return nil
	})

	for _, f := range a.forwarders {
		f := f
		g.Go(func() error { return f.Run(gctx) })
	}

	g.Go(func() error { return a.sessions.janitor(gctx, a.cfg.SessionIdle) })
	g.Go(func() error { return a.purgeGeocodes(gctx, time.Hour) })

	if a.cfg.MDNS {
		if err := a.startMDNS(a.cfg.HTTPPort); err != nil {
			a.logger.Warn("mDNS advertisement failed", "error", err)
		}
		defer a.stopMDNS()
	}

	a.ready.Store(true)
	return g.Wait()
}

func (a *App) purgeGeocodes(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := a.store.PurgeExpiredGeocodes(ctx, now)
			if err != nil {
				a.logger.Warn("purge geocode cache failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("purged expired geocodes", "count", n)
			}
		}
	}
}

func (a *App) buildSession(ctx context.Context, id string) (*webSession, error) {
	logger := a.logger.With("session", id)
	events := newEventStream(logger)
	ws := &webSession{id: id, events: events}

	deps := finder.Deps{
		Backend:     a.backend,
		Renderer:    events,
		Map:         events,
		Analytics:   a.tracker,
		Persistence: a.store.Scope(id),
		Logger:      logger,
	}
	if a.geocoder != nil {
		deps.Geocoder = a.geocoder
	}

	if loc := a.cfg.StaticLocation; loc != nil {
		deps.Platform = geolocation.StaticPlatform{Lat: loc.Latitude, Lng: loc.Longitude, AccuracyMeters: loc.AccuracyMeters}
	} else {
		ws.bridge = geolocation.NewBridge(events.notifyLocation)
		deps.Platform = ws.bridge
		deps.Consent = ws.bridge
	}

	session, err := finder.New(deps, a.sessionOptions(ctx))
	if err != nil {
		return nil, err
	}
	ws.finder = session
	return ws, nil
}

// sessionOptions applies persisted overrides on top of the configuration.
func (a *App) sessionOptions(ctx context.Context) finder.Options {
	opts := finder.Options{
		GFOnly:           a.cfg.GFOnly,
		FallbackRadiusKm: a.cfg.FallbackRadiusKm,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	persisted, err := a.store.AppConfig(ctx)
	if err != nil {
		a.logger.Warn("failed to load app config", "error", err)
		return opts
	}
	if v, ok := persisted[configGFOnly]; ok {
		if on, err := strconv.ParseBool(v); err == nil {
			opts.GFOnly = on
		}
	}
	if v, ok := persisted[configFallbackRadiusKm]; ok {
		if km, err := strconv.ParseFloat(v, 64); err == nil && km > 0 {
			opts.FallbackRadiusKm = km
		}
	}
	return opts
}
