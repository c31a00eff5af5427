package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Recorder/internal/app"
	"github.com/dkeye/Recorder/internal/app/recording"
	"github.com/dkeye/Recorder/internal/app/session"
	"github.com/dkeye/Recorder/internal/config"
	"github.com/dkeye/Recorder/internal/core/coretest"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router   *gin.Engine
	registry *app.Registry
	cookies  []*http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newLimitedFixture(t, recording.NewRateLimiter(10, time.Minute))
}

func newLimitedFixture(t *testing.T, limiter *recording.RateLimiter) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := app.NewRegistry(coretest.NewTransport(), coretest.NewAgentFactory(), coretest.Formats{}, session.Config{
		Nickname:         "Recorder",
		ConferenceDomain: "conference.example.com",
	}, nil)
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })

	ctl := recording.NewController(reg, limiter, "/recordings")
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return &fixture{router: SetupRouter(cfg, reg, ctl), registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	for _, set := range w.Result().Cookies() {
		f.setCookie(set)
	}
	return w
}

func (f *fixture) setCookie(c *http.Cookie) {
	for i, old := range f.cookies {
		if old.Name == c.Name {
			f.cookies[i] = c
			return
		}
	}
	f.cookies = append(f.cookies, c)
}

func decodeControl(t *testing.T, w *httptest.ResponseRecorder) recording.Control {
	t.Helper()
	var out recording.Control
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRecordingStartAndInfo(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/recording", `{"action":"start","mucjid":"room1@conference.example.com"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decodeControl(t, w)
	rid := started.Get(recording.AttrRID)
	require.NotEmpty(t, rid)
	assert.Equal(t, "initiating", started.Get(recording.AttrStatus))

	// rid comes from the client's session cookie.
	w = f.do(t, http.MethodPost, "/api/recording", `{"action":"info"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := decodeControl(t, w)
	assert.Equal(t, rid, info.Get(recording.AttrRID))
	assert.True(t, strings.HasPrefix(info.Get(recording.AttrOutput), "/recordings/room1-"))

	w = f.do(t, http.MethodGet, "/api/recording", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), rid)

	w = f.do(t, http.MethodPost, "/api/recording", `{"action":"stop","rid":"`+rid+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "stopped", decodeControl(t, w).Get(recording.AttrStatus))
	assert.Equal(t, 0, f.registry.Len())
}

func TestRecordingErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown action", `{"action":"pause"}`, http.StatusBadRequest},
		{"missing mucjid", `{"action":"start"}`, http.StatusBadRequest},
		{"unknown rid", `{"action":"info","rid":"nope"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/recording", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestRecordingStartConflict(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/recording", `{"action":"start","mucjid":"room1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/recording", `{"action":"start","mucjid":"room1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionsEndpoints(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Open(context.Background(), "room1")
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []session.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, session.StateJoined, list[0].State)

	w = f.do(t, http.MethodGet, "/api/sessions/room1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info session.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, domain.ParticipantID("room1@conference.example.com"), info.RoomJID)

	w = f.do(t, http.MethodGet, "/api/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionSDP(t *testing.T) {
	f := newFixture(t)
	sess, err := f.registry.Open(context.Background(), "room1")
	require.NoError(t, err)
	require.NoError(t, f.registry.Dispatch(coretest.Offer("room1", map[domain.MediaKind][]domain.PayloadType{
		domain.MediaAudio: {coretest.Opus},
	})))
	require.Eventually(t, func() bool {
		return sess.State() == session.StateNegotiating
	}, time.Second, 5*time.Millisecond)

	w := f.do(t, http.MethodGet, "/api/sessions/room1/sdp", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/sdp", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "m=audio 9 RTP/AVP 111")
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Open(context.Background(), "room1")
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recorder_sessions_active")
}

func TestRecordingRateLimitedSetsRetryAfter(t *testing.T) {
	f := newLimitedFixture(t, recording.NewRateLimiter(1, time.Minute))

	w := f.do(t, http.MethodPost, "/api/recording", `{"action":"start","mucjid":"room1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, "/api/recording", `{"action":"stop"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/recording", `{"action":"start","mucjid":"room1"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 60)
}
