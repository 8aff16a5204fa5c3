package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gfbeer/venue-finder/internal/analytics"
	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/geolocation"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
	"gfbeer/venue-finder/internal/search"
	"gfbeer/venue-finder/internal/view"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (a *App) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/healthz", a.handleHealthz)
	r.GET("/readyz", a.handleReadyz)

	api := r.Group("/api")
	api.POST("/sessions", a.handleCreateSession)

	s := api.Group("/sessions/:session", a.withSession)
	s.DELETE("", a.handleDeleteSession)
	s.GET("/events", a.handleEvents)
	s.POST("/search", a.handleSearch)
	s.GET("/results", a.handleCurrentResults)
	s.POST("/page", a.handleGoToPage)
	s.POST("/next", a.handleNextPage)
	s.POST("/previous", a.handlePreviousPage)
	s.POST("/back", a.handleBackToResults)
	s.GET("/venues/:venue", a.handleVenue)
	s.POST("/view", a.handleView)
	s.POST("/location/permission", a.handlePermission)
	s.POST("/location/requests/:request", a.handleLocationReply)

	api.POST("/reports", a.handleBeerReport)
	api.POST("/venues", a.handleAddVenue)
	api.GET("/autocomplete", a.handleAutocomplete)
	api.GET("/breweries", a.handleBreweries)
	api.GET("/breweries/:brewery/beers", a.handleBreweryBeers)
	api.GET("/stats", a.handleStats)

	api.GET("/config", a.handleGetConfig)
	api.POST("/config", a.handleUpdateConfig)
	api.GET("/analytics", a.handleRecentEvents)
	api.POST("/admin/wipe", a.handleWipeDatabase)

	return r
}

func (a *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// respondError maps domain errors to HTTP responses. message overrides the error text when
// the caller has a friendlier one.
func respondError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status = ae.HTTPStatus()
		if message == "" {
			message = ae.Message
		}
	}
	if message == "" {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Kind: apperr.KindOf(err).String()})
}

func (a *App) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) handleReadyz(c *gin.Context) {
	if !a.ready.Load() || a.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		a.logger.Warn("readiness: store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "sessions": a.sessions.count()})
}

const sessionKey = "session"

func (a *App) withSession(c *gin.Context) {
	ws, err := a.sessions.get(c.Request.Context(), c.Param("session"))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.Set(sessionKey, ws)
	c.Next()
}

func sessionFrom(c *gin.Context) *webSession {
	return c.MustGet(sessionKey).(*webSession)
}

func (a *App) handleCreateSession(c *gin.Context) {
	ws, err := a.sessions.create(c.Request.Context())
	if err != nil {
		a.logger.Error("failed to create session", "error", err)
		respondError(c, err, "could not start a session")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id":     ws.id,
		"fixed_location": ws.bridge == nil,
	})
}

func (a *App) handleDeleteSession(c *gin.Context) {
	ws := sessionFrom(c)
	a.sessions.remove(ws.id)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.DeleteOwner(ctx, ws.id); err != nil {
		a.logger.Error("failed to delete session state", "session", ws.id, "error", err)
		respondError(c, err, "failed to delete session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) handleEvents(c *gin.Context) {
	ws := sessionFrom(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", "session", ws.id, "error", err)
		return
	}
	ws.events.serve(a.runCtx, conn)
}

type searchRequest struct {
	Mode     model.Mode     `json:"mode" binding:"required,oneof=proximity name area beer"`
	Query    string         `json:"query" binding:"max=200"`
	RadiusKm float64        `json:"radius_km" binding:"gte=0,lte=100"`
	AreaKind model.AreaKind `json:"area_kind" binding:"omitempty,oneof=city postcode"`
	BeerKind model.BeerKind `json:"beer_kind" binding:"omitempty,oneof=brewery beer style"`
	GFOnly   bool           `json:"gf_only"`
}

const defaultRadiusKm = 5

func (r searchRequest) descriptor() model.SearchDescriptor {
	var d model.SearchDescriptor
	switch r.Mode {
	case model.ModeProximity:
		radius := r.RadiusKm
		if radius == 0 {
			radius = defaultRadiusKm
		}
		d = model.ProximitySearch(radius)
	case model.ModeName:
		d = model.NameSearch(r.Query)
	case model.ModeArea:
		kind := r.AreaKind
		if kind == "" {
			kind = search.AreaKindFor(r.Query)
		}
		d = model.AreaSearch(r.Query, kind)
	case model.ModeBeer:
		kind := r.BeerKind
		if kind == "" {
			kind = model.BeerName
		}
		d = model.BeerSearch(r.Query, kind)
	}
	d.GFOnly = r.GFOnly
	return d
}

type entryResponse struct {
	Entry      *results.Entry  `json:"entry"`
	View       model.ViewState `json:"view"`
	Superseded bool            `json:"superseded,omitempty"`
	Message    string          `json:"message,omitempty"`
}

func respondEntry(c *gin.Context, ws *webSession, e *results.Entry) {
	resp := entryResponse{Entry: e, View: ws.finder.View.State()}
	if e != nil && e.Page.Empty() {
		outcome := search.DescribeOutcome(e.Descriptor, 0, e.Descriptor.HasAnchor())
		resp.Message = outcome.Message
	}
	c.JSON(http.StatusOK, resp)
}

func (a *App) handleSearch(c *gin.Context) {
	ws := sessionFrom(c)

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid search request", Kind: apperr.KindInvalidInput.String()})
		return
	}

	desc := req.descriptor()
	e, err := ws.finder.Search(c.Request.Context(), desc)
	if err != nil {
		respondError(c, err, search.FailureMessage(desc, err))
		return
	}
	if e == nil {
		c.JSON(http.StatusOK, entryResponse{Superseded: true, View: ws.finder.View.State()})
		return
	}
	respondEntry(c, ws, e)
}

func (a *App) handleCurrentResults(c *gin.Context) {
	ws := sessionFrom(c)
	e := ws.finder.Results.Current()
	if e == nil {
		c.JSON(http.StatusOK, entryResponse{View: ws.finder.View.State()})
		return
	}
	respondEntry(c, ws, e)
}

// respondPaged answers the pagination endpoints, which share error handling.
func respondPaged(c *gin.Context, ws *webSession, e *results.Entry, err error) {
	if err != nil {
		msg := ""
		if cur := ws.finder.Results.Current(); cur != nil {
			msg = search.FailureMessage(cur.Descriptor, err)
		}
		respondError(c, err, msg)
		return
	}
	if e == nil {
		e = ws.finder.Results.Current()
	}
	respondEntry(c, ws, e)
}

func (a *App) handleGoToPage(c *gin.Context) {
	ws := sessionFrom(c)
	var req struct {
		Page int `json:"page" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "page required", Kind: apperr.KindInvalidInput.String()})
		return
	}
	e, err := ws.finder.Pages.GoToPage(c.Request.Context(), req.Page)
	respondPaged(c, ws, e, err)
}

func (a *App) handleNextPage(c *gin.Context) {
	ws := sessionFrom(c)
	e, err := ws.finder.Pages.Next(c.Request.Context())
	respondPaged(c, ws, e, err)
}

func (a *App) handlePreviousPage(c *gin.Context) {
	ws := sessionFrom(c)
	e, err := ws.finder.Pages.Previous(c.Request.Context())
	respondPaged(c, ws, e, err)
}

func (a *App) handleBackToResults(c *gin.Context) {
	ws := sessionFrom(c)
	e, err := ws.finder.BackToResults(c.Request.Context())
	respondPaged(c, ws, e, err)
}

func (a *App) handleVenue(c *gin.Context) {
	ws := sessionFrom(c)
	id, err := strconv.ParseInt(c.Param("venue"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid venue id", Kind: apperr.KindInvalidInput.String()})
		return
	}

	v, err := ws.finder.Venue(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, v)
}

func (a *App) handleView(c *gin.Context) {
	ws := sessionFrom(c)
	var req struct {
		View string `json:"view" binding:"required,oneof=map list toggle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "view must be map, list or toggle", Kind: apperr.KindInvalidInput.String()})
		return
	}

	var err error
	switch req.View {
	case "map":
		err = ws.finder.View.ShowMap(c.Request.Context())
	case "list":
		ws.finder.View.ShowList()
	case "toggle":
		err = ws.finder.View.Toggle(c.Request.Context())
	}

	if errors.Is(err, view.ErrNothingToShow) {
		c.JSON(http.StatusConflict, errorResponse{Error: "search for venues before opening the map"})
		return
	}
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": ws.finder.View.State()})
}

func (a *App) handlePermission(c *gin.Context) {
	ws := sessionFrom(c)
	if ws.bridge == nil {
		c.JSON(http.StatusConflict, errorResponse{Error: "location is fixed by configuration"})
		return
	}

	var req struct {
		State string `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "state required", Kind: apperr.KindInvalidInput.String()})
		return
	}

	state := geolocation.ParsePermissionState(req.State)
	ws.bridge.SetPermission(state)
	c.JSON(http.StatusOK, gin.H{"state": state})
}

type locationReply struct {
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	AccuracyMeters float64  `json:"accuracy_meters"`
	ErrorCode      int      `json:"error_code" binding:"omitempty,oneof=1 2 3"`
	Message        string   `json:"message"`
	Accepted       *bool    `json:"accepted"`
}

// handleLocationReply answers a pushed location request: a consent request takes accepted,
// a position request takes a reading or a platform error code.
func (a *App) handleLocationReply(c *gin.Context) {
	ws := sessionFrom(c)
	if ws.bridge == nil {
		c.JSON(http.StatusConflict, errorResponse{Error: "location is fixed by configuration"})
		return
	}

	var req locationReply
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid location reply", Kind: apperr.KindInvalidInput.String()})
		return
	}

	id := c.Param("request")
	var err error
	switch {
	case req.Accepted != nil:
		err = ws.bridge.ResolveConsent(id, *req.Accepted)
	case req.ErrorCode != 0:
		err = ws.bridge.RejectPosition(id, req.ErrorCode, req.Message)
	case req.Latitude != nil && req.Longitude != nil:
		var reading model.LocationReading
		reading, err = model.NewLocationReading(*req.Latitude, *req.Longitude, req.AccuracyMeters, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: apperr.KindInvalidInput.String()})
			return
		}
		err = ws.bridge.ResolvePosition(id, reading)
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "reply needs accepted, error_code or coordinates", Kind: apperr.KindInvalidInput.String()})
		return
	}

	if errors.Is(err, geolocation.ErrUnknownRequest) {
		c.JSON(http.StatusGone, errorResponse{Error: "location request expired"})
		return
	}
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) handleBeerReport(c *gin.Context) {
	var report model.BeerReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload", Kind: apperr.KindInvalidInput.String()})
		return
	}

	res, err := a.backend.SubmitBeerReport(c.Request.Context(), report)
	a.respondSubmission(c, "beer_report", res, err)
}

func (a *App) handleAddVenue(c *gin.Context) {
	var venue model.VenueSubmission
	if err := c.ShouldBindJSON(&venue); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload", Kind: apperr.KindInvalidInput.String()})
		return
	}

	res, err := a.backend.AddVenue(c.Request.Context(), venue)
	a.respondSubmission(c, "add_venue", res, err)
}

func (a *App) respondSubmission(c *gin.Context, label string, res model.SubmissionResult, err error) {
	if err != nil {
		respondError(c, err, res.Message)
		return
	}
	event := "submission"
	if !res.Success {
		event = "submission_rejected"
	}
	a.tracker.Track(analytics.NewEvent(event, analytics.CategorySubmission, label))
	c.JSON(http.StatusOK, res)
}

func (a *App) handleAutocomplete(c *gin.Context) {
	searchType := backend.SearchType(c.DefaultQuery("type", string(backend.SearchAll)))
	gfOnly, _ := strconv.ParseBool(c.Query("gf_only"))

	suggestions, err := a.backend.Autocomplete(c.Request.Context(), c.Query("q"), searchType, gfOnly)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (a *App) handleBreweries(c *gin.Context) {
	breweries, err := a.backend.Breweries(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"breweries": breweries})
}

func (a *App) handleBreweryBeers(c *gin.Context) {
	beers, err := a.backend.BreweryBeers(c.Request.Context(), c.Param("brewery"), c.Query("q"))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"beers": beers})
}

func (a *App) handleStats(c *gin.Context) {
	stats, err := a.backend.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *App) handleGetConfig(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	persisted, err := a.store.AppConfig(ctx)
	if err != nil {
		a.logger.Error("failed to load app config", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load config"})
		return
	}

	active := gin.H{
		"backend_url":        a.cfg.BackendURL,
		"geocoder_url":       a.cfg.GeocoderURL,
		"http_port":          a.cfg.HTTPPort,
		"database_path":      a.cfg.DatabasePath,
		"log_level":          a.cfg.LogLevel,
		"gf_only":            a.cfg.GFOnly,
		"fallback_radius_km": a.cfg.FallbackRadiusKm,
		"session_idle":       a.cfg.SessionIdle.String(),
		"mqtt_enabled":       a.mqtt != nil,
		"fixed_location":     a.cfg.StaticLocation != nil,
	}

	c.JSON(http.StatusOK, gin.H{"active": active, "persisted": persisted})
}

func (a *App) handleUpdateConfig(c *gin.Context) {
	var req struct {
		GFOnly           *bool    `json:"gf_only"`
		FallbackRadiusKm *float64 `json:"fallback_radius_km" binding:"omitempty,gt=0,lte=50"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload", Kind: apperr.KindInvalidInput.String()})
		return
	}

	type updateResult struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	updates := []updateResult{}
	if req.GFOnly != nil {
		updates = append(updates, updateResult{Key: configGFOnly, Value: strconv.FormatBool(*req.GFOnly)})
	}
	if req.FallbackRadiusKm != nil {
		updates = append(updates, updateResult{Key: configFallbackRadiusKm, Value: strconv.FormatFloat(*req.FallbackRadiusKm, 'f', -1, 64)})
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "no supported fields provided"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, u := range updates {
		if err := a.store.UpsertAppConfig(ctx, u.Key, u.Value); err != nil {
			a.logger.Error("failed to update app config", "key", u.Key, "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist config"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"updates": updates, "applies_to": "new sessions"})
}

func (a *App) handleRecentEvents(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			since = &ts
		} else if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			since = &ts
		}
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	events, err := a.store.RecentEvents(ctx, limit, since)
	if err != nil {
		a.logger.Error("failed to load analytics events", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (a *App) handleWipeDatabase(c *gin.Context) {
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return
	}

	if strings.ToLower(strings.TrimSpace(body.Confirm)) != "wipe" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "confirmation required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := a.store.WipeData(ctx); err != nil {
		a.logger.Error("wipe: failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to wipe data"})
		return
	}

	a.logger.Warn("wipe: stored episodes, locations, geocodes and analytics cleared")
	c.Status(http.StatusNoContent)
}
