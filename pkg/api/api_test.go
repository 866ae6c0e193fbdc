// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/smtp-notifier/pkg/apiresponses"
	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/dispatch"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/metrics"
	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/system"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (f *fakePublisher) Publish(_ context.Context, kind notification.Kind, ev notification.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind != notification.KindNoticeMessage {
		return 0
	}
	f.events = append(f.events, ev)
	return 1
}

type fakeTester struct {
	res dispatch.Result
	err error
}

func (f fakeTester) Test(context.Context) (dispatch.Result, error) {
	return f.res, f.err
}

type fakeTemplates struct {
	content     string
	saveErr     error
	restoreCall int
}

func (f *fakeTemplates) Template() (string, error) { return f.content, nil }

func (f *fakeTemplates) SaveTemplate(content string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.content = content
	return nil
}

func (f *fakeTemplates) RestoreDefaultTemplate() error {
	f.restoreCall++
	f.content = "default"
	return nil
}

type fixture struct {
	server    *Server
	publisher *fakePublisher
	templates *fakeTemplates
	store     *config.MemoryStore
}

func newFixture(t *testing.T, tester Tester) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	cfg := config.Defaults()
	cfg.Primary.Password = "hunter2"
	f := &fixture{
		server:    NewServer(log, ServerConfig{Debug: true}),
		publisher: &fakePublisher{},
		templates: &fakeTemplates{content: "<p>{title}</p>"},
		store:     config.NewMemoryStore(cfg),
	}
	sl := log.Sugar()
	require.NoError(t, f.server.RegisterAll([]APIController{
		NewNotifierController(sl, f.publisher, tester),
		NewTemplateController(sl, f.templates),
		NewConfigController(sl, f.store),
	}))
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	tests := []struct {
		name  string
		cfg   ServerConfig
		addr  string
		debug bool
	}{
		{name: "default address", cfg: ServerConfig{}, addr: DefaultListenAddress},
		{name: "explicit address in debug mode", cfg: ServerConfig{ListenAddress: ":9090", Debug: true}, addr: ":9090", debug: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(log, tt.cfg)
			require.NotNil(t, server)
			assert.NotNil(t, server.gin)
			assert.Equal(t, tt.addr, server.config.ListenAddress)
			assert.Equal(t, tt.debug, server.config.Debug)
		})
	}
}

func TestHealthzAndBuildInfo(t *testing.T) {
	f := newFixture(t, fakeTester{})

	w := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(system.RequestIDHeader))

	w = f.do(http.MethodGet, "/api/buildinfo", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "version")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, fakeTester{})
	metrics.EventsIgnored.WithLabelValues("channel").Inc()

	w := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "smtp_notifier_events_ignored_total")
}

func TestPublishEvent(t *testing.T) {
	f := newFixture(t, fakeTester{})

	w := f.do(http.MethodPost, "/api/v1/events", `{"type":"Download","title":"done","text":"file.mkv","userid":"42"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"subscribers":1}`, w.Body.String())
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, notification.Event{Type: "Download", Title: "done", Text: "file.mkv", UserID: "42"}, f.publisher.events[0])
}

func TestPublishEventRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, fakeTester{})

	w := f.do(http.MethodPost, "/api/v1/events", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.publisher.events)
}

func TestTestEndpoint(t *testing.T) {
	res := dispatch.Result{
		ID:        "abc",
		TestRun:   true,
		Primary:   dispatch.Succeeded,
		Secondary: dispatch.NotAttempted,
		Summary:   "Primary server sent the test email successfully! Secondary server was not started!",
	}
	f := newFixture(t, fakeTester{res: res})

	w := f.do(http.MethodPost, "/api/v1/test", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got DispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, DispatchResponse{
		ID:        "abc",
		TestRun:   true,
		Primary:   "succeeded",
		Secondary: "not_attempted",
		Summary:   res.Summary,
	}, got)
}

func TestTestEndpointNoServerEnabled(t *testing.T) {
	err := mailerr.New(mailerr.ErrNoServerEnabled, mailerr.ReasonNoServerEnabled, "neither server is enabled", nil)
	f := newFixture(t, fakeTester{err: err})

	w := f.do(http.MethodPost, "/api/v1/test", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	var body apiresponses.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NO_SERVER_ENABLED", body.Code)
}

func TestTemplateEndpoints(t *testing.T) {
	f := newFixture(t, fakeTester{})

	w := f.do(http.MethodGet, "/api/v1/template", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"content":"<p>{title}</p>"}`, w.Body.String())

	w = f.do(http.MethodPut, "/api/v1/template", `{"content":"<h1>{text}</h1>"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "<h1>{text}</h1>", f.templates.content)

	w = f.do(http.MethodPut, "/api/v1/template", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/template/restore", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, f.templates.restoreCall)
}

func TestTemplateSaveFailure(t *testing.T) {
	f := newFixture(t, fakeTester{})
	f.templates.saveErr = errors.New("disk full")

	w := f.do(http.MethodPut, "/api/v1/template", `{"content":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk full")
}

func TestConfigEndpointRedactsPasswords(t *testing.T) {
	f := newFixture(t, fakeTester{})

	w := f.do(http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")

	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "***", cfg.Primary.Password)
	assert.True(t, cfg.Primary.Enabled)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := NewServer(zaptest.NewLogger(t), ServerConfig{ListenAddress: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
