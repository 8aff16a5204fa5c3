package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/config"
	"gfbeer/venue-finder/internal/finder"
	"gfbeer/venue-finder/internal/geocode"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/store"
)

// cliOwner scopes the terminal's persisted episode and location in the shared database.
const cliOwner = "cli"

func main() {
	locate := flag.Bool("locate", false, "look up the location without asking first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	if err := run(cfg, *locate, logger); err != nil {
		logger.Error("finder terminated", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, locate bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()
	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	opts := []backend.Option{backend.WithTimeout(cfg.RequestTimeout)}
	if cfg.AdminToken != "" {
		opts = append(opts, backend.WithAdminToken(cfg.AdminToken))
	}
	client, err := backend.New(cfg.BackendURL, logger.With("component", "backend"), opts...)
	if err != nil {
		return err
	}

	in := bufio.NewScanner(os.Stdin)
	out := newTerminalRenderer(os.Stdout)

	forwarders := []*analytics.Forwarder{analytics.NewJournal(db, logger, 0)}
	sinks := analytics.Multi{forwarders[0]}
	if cfg.MQTTBroker != "" {
		mc, err := analytics.ConnectMQTT(cfg.MQTTBroker, "venue-finder-cli", 5*time.Second)
		if err != nil {
			logger.Warn("mqtt analytics disabled", "broker", cfg.MQTTBroker, "error", err)
		} else {
			defer mc.Disconnect(250)
			fwd := analytics.NewMQTT(mc, cfg.MQTTTopic, logger, 0)
			forwarders = append(forwarders, fwd)
			sinks = append(sinks, fwd)
		}
	}

	fwdCtx, stopForwarders := context.WithCancel(context.Background())
	done := make(chan struct{}, len(forwarders))
	for _, f := range forwarders {
		go func(f *analytics.Forwarder) {
			_ = f.Run(fwdCtx)
			done <- struct{}{}
		}(f)
	}
	defer func() {
		stopForwarders()
		for range forwarders {
			<-done
		}
	}()

	deps := finder.Deps{
		Backend:     client,
		Renderer:    out,
		Map:         &geoJSONMap{path: cfg.MapPath},
		Analytics:   sinks,
		Persistence: db.Scope(cliOwner),
		Logger:      logger,
	}
	if cfg.GeocoderURL != "" {
		deps.Geocoder = geocode.New(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderRPS,
			logger.With("component", "geocode"), geocode.WithCache(db, geocode.DefaultCacheTTL))
	}

	switch {
	case cfg.StaticLocation != nil:
		loc := cfg.StaticLocation
		deps.Platform = geolocation.StaticPlatform{Lat: loc.Latitude, Lng: loc.Longitude, AccuracyMeters: loc.AccuracyMeters}
	case cfg.IPLocatorURL != "":
		ip := geolocation.NewIPPlatform(cfg.IPLocatorURL, 0)
		if locate {
			ip.Grant()
		}
		ask := stdinConsent(in, out)
		deps.Platform = ip
		deps.Consent = geolocation.ConsentFunc(func(ctx context.Context) (bool, error) {
			ok, err := ask(ctx)
			if ok {
				ip.Grant()
			}
			return ok, err
		})
	default:
		deps.Platform = geolocation.DeniedPlatform{}
	}

	session, err := finder.New(deps, finder.Options{GFOnly: cfg.GFOnly, FallbackRadiusKm: cfg.FallbackRadiusKm})
	if err != nil {
		return err
	}
	defer session.Close()
	session.Restore(ctx)

	r := &repl{session: session, lookups: client, out: out, in: in, gfOnly: cfg.GFOnly}
	return r.run(ctx)
}

func logLevel(level string) *slog.LevelVar {
	lv := new(slog.LevelVar)
	switch strings.ToLower(level) {
	case "debug":
		lv.Set(slog.LevelDebug)
	case "error":
		lv.Set(slog.LevelError)
	default:
		// Info logs would interleave with the prompt.
		lv.Set(slog.LevelWarn)
	}
	return lv
}
