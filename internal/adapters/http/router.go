package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/dkeye/Recorder/internal/app"
	"github.com/dkeye/Recorder/internal/app/recording"
	"github.com/dkeye/Recorder/internal/app/session"
	"github.com/dkeye/Recorder/internal/config"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const lastRIDKey = "last_rid"

// Sessions exposes the registry's read side.
type Sessions interface {
	List() []session.Info
	Get(conf domain.ConferenceID) (*session.Session, bool)
}

// Recorder executes recording control requests.
type Recorder interface {
	Handle(ctx context.Context, req recording.Control) (recording.Control, error)
	List() []recording.Recording
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, reg Sessions, rec Recorder) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RecorderSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{sessions: reg, recorder: rec}
	api := r.Group("/api")
	api.POST("/recording", h.control)
	api.GET("/recording", h.recordings)
	api.GET("/sessions", h.list)
	api.GET("/sessions/:conference", h.get)
	api.GET("/sessions/:conference/sdp", h.sdp)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

type handlers struct {
	sessions Sessions
	recorder Recorder
}

// control runs one recording action. stop and info fall back to the last
// recording this client started when rid is omitted.
func (h *handlers) control(c *gin.Context) {
	var req recording.Control
	if err := c.ShouldBindJSON(&req); err != nil || req == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recording control"})
		return
	}

	sess := sessions.Default(c)
	if req.Get(recording.AttrRID) == "" {
		if rid, ok := sess.Get(lastRIDKey).(string); ok {
			req.Set(recording.AttrRID, rid)
		}
	}

	reply, err := h.recorder.Handle(c.Request.Context(), req)
	if err != nil {
		log.Warn().Str("module", "adapters.http").Str("client", c.GetString("client_token")).
			Str("action", req.Get(recording.AttrAction)).Err(err).Msg("recording control")
		var limited *recording.RateLimitError
		if errors.As(err, &limited) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		}
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	switch recording.Action(reply.Get(recording.AttrAction)) {
	case recording.ActionStart:
		sess.Set(lastRIDKey, reply.Get(recording.AttrRID))
		_ = sess.Save()
	case recording.ActionStop:
		if sess.Get(lastRIDKey) == reply.Get(recording.AttrRID) {
			sess.Delete(lastRIDKey)
			_ = sess.Save()
		}
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handlers) recordings(c *gin.Context) {
	c.JSON(http.StatusOK, h.recorder.List())
}

func (h *handlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.List())
}

func (h *handlers) lookup(c *gin.Context) (*session.Session, bool) {
	s, ok := h.sessions.Get(domain.ConferenceID(c.Param("conference")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": app.ErrSessionNotFound.Error()})
	}
	return s, ok
}

func (h *handlers) get(c *gin.Context) {
	if s, ok := h.lookup(c); ok {
		c.JSON(http.StatusOK, s.Info().Snapshot())
	}
}

func (h *handlers) sdp(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	out, err := s.Info().SDP()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/sdp", out)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, recording.ErrUnknownAction),
		errors.Is(err, recording.ErrMissingAttribute),
		errors.Is(err, domain.ErrConferenceIDEmpty),
		errors.Is(err, domain.ErrConferenceIDTooLong):
		return http.StatusBadRequest
	case errors.Is(err, recording.ErrUnknownRecording),
		errors.Is(err, app.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, recording.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, app.ErrJoinFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
