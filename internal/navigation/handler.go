package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/incidents"
	"github.com/richxcame/navigator/internal/routes"
	"github.com/richxcame/navigator/pkg/common"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/httpclient"
	"github.com/richxcame/navigator/pkg/logger"
	"github.com/richxcame/navigator/pkg/polyline"
	"github.com/richxcame/navigator/pkg/resilience"
	"github.com/richxcame/navigator/pkg/validation"
	"github.com/richxcame/navigator/pkg/websocket"
)

// MessageTypeFix is the websocket message a client sends to push a fix.
const MessageTypeFix = "fix"

// Handler serves the navigation API.
type Handler struct {
	manager *Manager
	hub     *websocket.Hub
	now     func() time.Time
}

func NewHandler(manager *Manager, hub *websocket.Hub) *Handler {
	return &Handler{manager: manager, hub: hub, now: time.Now}
}

// RegisterRoutes registers the REST routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/routes", h.PlanRoute)
	rg.GET("/incident-types", h.IncidentTypes)

	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.StartSession)
		sessions.POST("/recover", h.RecoverSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.EndSession)
		sessions.POST("/:id/fixes", h.PushFix)
		sessions.PUT("/:id/route", h.SelectRoute)
		sessions.PUT("/:id/mode", h.ChangeMode)
		sessions.POST("/:id/incidents", h.ReportIncident)
		sessions.POST("/:id/incidents/:incidentId/rating", h.RateIncident)
	}
}

// RegisterStreamRoutes registers the websocket route and the handlers for
// messages clients send over it.
func (h *Handler) RegisterStreamRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions/:id/ws", h.StreamSession)
	h.hub.RegisterHandler(MessageTypeFix, h.handleSocketFix)
}

type optionsResponse struct {
	Options  []routes.Option `json:"options"`
	Selected int             `json:"selected"`
}

type sessionResponse struct {
	SessionID string   `json:"session_id"`
	Progress  Progress `json:"progress"`
}

func toPoint(c validation.Coordinate) geo.Point {
	return geo.NewPoint(c.Latitude, c.Longitude)
}

func toFix(req validation.FixRequest) Fix {
	return Fix{
		Point:     geo.NewPoint(req.Latitude, req.Longitude),
		Speed:     req.Speed,
		Bearing:   req.Bearing,
		Timestamp: req.Timestamp,
	}
}

// PlanRoute returns the route options between two points.
func (h *Handler) PlanRoute(c *gin.Context) {
	var req validation.PlanRouteRequest
	if !common.BindJSON(c, &req) || !validRoutePoints(c, &req, req.Origin, req.Destination) {
		return
	}

	options, err := h.manager.Plan(c.Request.Context(), directions.Request{
		Origin:      toPoint(req.Origin),
		Destination: toPoint(req.Destination),
		Mode:        directions.ParseTravelMode(req.Mode),
	})
	if common.HandleServiceError(c, mapError(err), "failed to plan route") {
		return
	}
	common.SuccessResponse(c, optionsResponse{Options: options.Options(), Selected: options.SelectedIndex()})
}

// StartSession plans the route and starts navigation on the chosen option.
func (h *Handler) StartSession(c *gin.Context) {
	var req validation.StartSessionRequest
	if !common.BindJSON(c, &req) || !validRoutePoints(c, &req, req.Origin, req.Destination) {
		return
	}

	session, err := h.manager.Start(c.Request.Context(), StartRequest{
		Origin:      toPoint(req.Origin),
		Destination: toPoint(req.Destination),
		Mode:        directions.ParseTravelMode(req.Mode),
		RouteIndex:  req.RouteIndex,
	})
	if common.HandleServiceError(c, mapError(err), "failed to start navigation") {
		return
	}
	common.CreatedResponse(c, sessionResponse{SessionID: session.ID(), Progress: session.Progress()})
}

// RecoverSession starts navigation on the route the backend kept for the user.
func (h *Handler) RecoverSession(c *gin.Context) {
	var req validation.RecoverSessionRequest
	if !common.BindJSON(c, &req) || !valid(c, &req) {
		return
	}

	recoverReq := RecoverRequest{
		Destination: toPoint(req.Destination),
		Mode:        directions.ParseTravelMode(req.Mode),
	}
	if req.Origin != nil {
		origin := toPoint(*req.Origin)
		recoverReq.Origin = &origin
	}

	session, err := h.manager.Recover(c.Request.Context(), recoverReq)
	if common.HandleServiceError(c, mapError(err), "failed to recover navigation") {
		return
	}
	common.CreatedResponse(c, sessionResponse{SessionID: session.ID(), Progress: session.Progress()})
}

func (h *Handler) GetSession(c *gin.Context) {
	progress, err := h.manager.Progress(sessionContext(c), c.Param("id"))
	if common.HandleServiceError(c, mapError(err), "failed to load session") {
		return
	}
	common.SuccessResponse(c, progress)
}

// EndSession stops navigation and returns the final snapshot.
func (h *Handler) EndSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.End(ReasonUserEnded)
	logger.InfoContext(sessionContext(c), "navigation session ended by user")
	common.SuccessResponse(c, session.Progress())
}

// PushFix applies one location fix.
func (h *Handler) PushFix(c *gin.Context) {
	var req validation.FixRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if err := validation.ValidateFix(&req, h.now()); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.PushFix(sessionContext(c), toFix(req)); common.HandleServiceError(c, mapError(err), "failed to apply fix") {
		return
	}
	common.SuccessResponse(c, session.Progress())
}

// SelectRoute restarts tracking on another option.
func (h *Handler) SelectRoute(c *gin.Context) {
	var req validation.SelectRouteRequest
	if !common.BindJSON(c, &req) || !valid(c, &req) {
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.SelectRoute(sessionContext(c), req.Index); common.HandleServiceError(c, mapError(err), "failed to select route") {
		return
	}
	common.SuccessResponse(c, session.Progress())
}

// ChangeMode switches the travel mode. The recalculated route is delivered
// on the event stream.
func (h *Handler) ChangeMode(c *gin.Context) {
	var req validation.ChangeModeRequest
	if !common.BindJSON(c, &req) || !valid(c, &req) {
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	mode := directions.ParseTravelMode(req.Mode)
	if err := session.ChangeMode(sessionContext(c), mode); common.HandleServiceError(c, mapError(err), "failed to change travel mode") {
		return
	}
	c.JSON(http.StatusAccepted, common.Response{Success: true, Data: session.Progress()})
}

// ReportIncident reports a hazard at the session's last fix.
func (h *Handler) ReportIncident(c *gin.Context) {
	var req validation.ReportIncidentRequest
	if !common.BindJSON(c, &req) || !valid(c, &req) {
		return
	}

	hazard, err := h.manager.ReportIncident(sessionContext(c), c.Param("id"), req.TypeID)
	if common.HandleServiceError(c, mapError(err), "failed to report incident") {
		return
	}
	common.CreatedResponse(c, hazard)
}

// RateIncident rates the pending hazard prompt.
func (h *Handler) RateIncident(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("incidentId"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid incident id")
		return
	}
	var req validation.RateIncidentRequest
	if !common.BindJSON(c, &req) || !valid(c, &req) {
		return
	}

	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.RateIncident(sessionContext(c), id, *req.Positive); common.HandleServiceError(c, mapError(err), "failed to rate incident") {
		return
	}
	common.SuccessResponse(c, gin.H{"incident_id": id, "positive": *req.Positive})
}

// StreamSession upgrades to a websocket carrying the session's events.
func (h *Handler) StreamSession(c *gin.Context) {
	if _, ok := h.session(c); !ok {
		return
	}
	websocket.HandleWebSocket(c, h.hub, c.Param("id"))
}

func (h *Handler) IncidentTypes(c *gin.Context) {
	common.SuccessResponse(c, incidents.Catalog())
}

func (h *Handler) handleSocketFix(client *websocket.Client, msg *websocket.Message) {
	var req validation.FixRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.hub.Reply(client, websocket.ErrorMessage(client.SessionID, "invalid fix payload"))
		return
	}
	if err := validation.ValidateFix(&req, h.now()); err != nil {
		h.hub.Reply(client, websocket.ErrorMessage(client.SessionID, err.Error()))
		return
	}

	session, err := h.manager.Get(client.SessionID)
	if err != nil {
		h.hub.Reply(client, websocket.ErrorMessage(client.SessionID, "session not found"))
		return
	}

	ctx, cancel := context.WithTimeout(logger.ContextWithSessionID(context.Background(), client.SessionID), 5*time.Second)
	defer cancel()
	if err := session.PushFix(ctx, toFix(req)); err != nil {
		h.hub.Reply(client, websocket.ErrorMessage(client.SessionID, err.Error()))
	}
}

// session resolves the :id parameter, answering 404 when it is unknown.
func (h *Handler) session(c *gin.Context) (*Session, bool) {
	session, err := h.manager.Get(c.Param("id"))
	if common.HandleServiceError(c, mapError(err), "failed to load session") {
		return nil, false
	}
	return session, true
}

func sessionContext(c *gin.Context) context.Context {
	return logger.ContextWithSessionID(c.Request.Context(), c.Param("id"))
}

func valid(c *gin.Context, req interface{}) bool {
	if err := validation.ValidateStruct(req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func validRoutePoints(c *gin.Context, req interface{}, origin, destination validation.Coordinate) bool {
	if !valid(c, req) {
		return false
	}
	if err := validation.ValidateRoutePoints(origin, destination); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// mapError turns domain errors into API errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return common.NewNotFoundError("navigation session not found", err).WithCode("SESSION_NOT_FOUND")
	case errors.Is(err, ErrSessionEnded):
		return common.NewConflictError("navigation session has ended", err).WithCode("SESSION_ENDED")
	case errors.Is(err, ErrStaleFix):
		return common.NewConflictError("fix is older than the last accepted fix", err).WithCode("STALE_FIX")
	case errors.Is(err, ErrNoPendingRating):
		return common.NewConflictError("no rating prompt pending for this incident", err).WithCode("NO_PENDING_RATING")
	case errors.Is(err, ErrNoFix):
		return common.NewConflictError("no location received yet", err).WithCode("NO_FIX")
	case errors.Is(err, ErrEmptyRoute), errors.Is(err, polyline.ErrMalformedPolyline):
		return common.NewUnprocessableError("route geometry is unusable", err).WithCode("INVALID_ROUTE")
	case errors.Is(err, routes.ErrInvalidSelection):
		return common.NewBadRequestError("route index out of range", err).WithCode("INVALID_SELECTION")
	case errors.Is(err, incidents.ErrUnknownType):
		return common.NewBadRequestError("unknown incident type", err).WithCode("UNKNOWN_INCIDENT_TYPE")
	case errors.Is(err, httpclient.ErrMissingToken):
		return common.NewAppError(http.StatusUnauthorized, "authorization required", err).WithCode("UNAUTHORIZED")
	case isUpstream(err):
		return common.NewBadGatewayError("upstream service unavailable", err).WithCode("UPSTREAM_UNAVAILABLE")
	case errors.Is(err, directions.ErrNoRouteAvailable):
		return common.NewNotFoundError("no route available", err).WithCode("NO_ROUTE")
	}
	return err
}

// isUpstream reports whether err came from an unhealthy backend rather than
// from the backend answering with nothing usable.
func isUpstream(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return httpclient.IsUpstreamFailure(httpErr)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
