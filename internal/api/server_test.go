package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-push/internal/api/handler"
	"github.com/albapepper/scoracle-push/internal/config"
	"github.com/albapepper/scoracle-push/internal/devices"
	"github.com/albapepper/scoracle-push/internal/gateway"
	"github.com/albapepper/scoracle-push/internal/notifications"
)

const testSecret = "s3cret"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type acceptAll struct{ calls int }

func (g *acceptAll) Send(ctx context.Context, batch []gateway.Message) (gateway.Result, error) {
	g.calls++
	return gateway.Result{Accepted: true, StatusCode: http.StatusOK}, nil
}

type fixture struct {
	router   http.Handler
	registry *devices.MemoryRegistry
	gateway  *acceptAll
}

func newFixture(t *testing.T, devs ...devices.Device) *fixture {
	t.Helper()
	reg := devices.NewMemoryRegistry(devs...)
	gw := &acceptAll{}
	clock := func() time.Time { return testNow }
	engine := notifications.NewEngine(reg, gw, nil, nil).WithClock(clock)
	svc := devices.NewService(reg, nil).WithClock(clock)
	h := handler.New(nil, engine, nil, svc, nil)
	cfg := &config.Config{
		CORSAllowOrigins: []string{"*"},
		TriggerSecret:    testSecret,
	}
	return &fixture{router: NewRouter(h, cfg, nil), registry: reg, gateway: gw}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func idle(token, user string) devices.Device {
	last := testNow.Add(-15 * time.Hour)
	return devices.Device{UserID: user, PushToken: token, IsActive: true, LastActiveAt: &last}
}

func TestTriggerRequiresSecret(t *testing.T) {
	f := newFixture(t, idle("tok-1", "u1"))

	for _, auth := range []string{"", "Bearer wrong", testSecret} {
		rec := f.do(t, http.MethodPost, "/api/v1/notifications/inactivity_reminder/run", "", map[string]string{"Authorization": auth})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "auth=%q", auth)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
	}
	assert.Zero(t, f.gateway.calls)
}

func TestTriggerReportsCounts(t *testing.T) {
	f := newFixture(t, idle("tok-1", "u1"), idle("tok-2", "u2"), idle("tok-3", "u3"))

	rec := f.do(t, http.MethodPost, "/api/v1/notifications/inactivity_reminder/run", "",
		map[string]string{"Authorization": "Bearer " + testSecret})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["sent"])
	assert.EqualValues(t, 0, body["errors"])
	assert.EqualValues(t, 3, body["targeted"])
	assert.NotEmpty(t, body["run_id"])
	assert.Equal(t, 1, f.gateway.calls)
}

func TestTriggerErrors(t *testing.T) {
	f := newFixture(t, idle("tok-1", "u1"))
	auth := map[string]string{"Authorization": "Bearer " + testSecret}

	rec := f.do(t, http.MethodPost, "/api/v1/notifications/smoke_signal/run", "", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/notifications/new_article/run", `{"title":"Only a title"}`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/notifications/new_article/run", `{"title":`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.registry.FailFind = assert.AnError
	rec = f.do(t, http.MethodPost, "/api/v1/notifications/inactivity_reminder/run", "", auth)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "REGISTRY_ERROR", decode(t, rec)["error"].(map[string]any)["code"])
}

func TestListClasses(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/notifications/classes", "",
		map[string]string{"Authorization": "Bearer " + testSecret})
	require.Equal(t, http.StatusOK, rec.Code)
	classes := decode(t, rec)["classes"].([]any)
	assert.Len(t, classes, len(notifications.Classes()))
}

func TestHeartbeatAndMute(t *testing.T) {
	f := newFixture(t, devices.Device{UserID: "u1", PushToken: "tok-1", IsActive: true})

	rec := f.do(t, http.MethodPost, "/api/v1/devices/heartbeat", `{"userId":"u1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d, _ := f.registry.Device("tok-1")
	require.NotNil(t, d.LastActiveAt)
	assert.True(t, d.LastActiveAt.Equal(testNow))

	rec = f.do(t, http.MethodPost, "/api/v1/devices/heartbeat", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/devices/mute", `{"userId":"u1","hours":"abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	until, err := time.Parse(time.RFC3339, decode(t, rec)["muted_until"].(string))
	require.NoError(t, err)
	assert.True(t, until.Equal(testNow.Add(24*time.Hour)))

	rec = f.do(t, http.MethodDelete, "/api/v1/devices/mute", `{"userId":"u1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["muted_until"])
	d, _ = f.registry.Device("tok-1")
	assert.Nil(t, d.MutedUntil)

	rec = f.do(t, http.MethodPost, "/api/v1/devices/mute", `{"hours":2}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferencesRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/devices/preferences?token=never-seen", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prefs := decode(t, rec)["preferences"].(map[string]any)
	assert.Len(t, prefs, len(devices.PreferenceKeys))
	for _, k := range devices.PreferenceKeys {
		assert.Equal(t, true, prefs[k], k)
	}
	assert.Zero(t, f.registry.PreferenceRows(), "reads never create rows")

	rec = f.do(t, http.MethodPut, "/api/v1/devices/preferences",
		`{"token":"tok-9","preferences":{"reminders":0,"new_videos":"yes","bogus":false}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prefs = decode(t, rec)["preferences"].(map[string]any)
	assert.Equal(t, false, prefs["reminders"])
	assert.Equal(t, true, prefs["new_videos"])
	assert.Equal(t, true, prefs["live_events"])
	assert.NotContains(t, prefs, "bogus")

	rec = f.do(t, http.MethodPost, "/api/v1/devices/preferences", `{"token":"tok-9","preferences":"all"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/devices/preferences", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreflightAnswered(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/api/v1/devices/mute", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/health/db", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", nil).Code)
}
