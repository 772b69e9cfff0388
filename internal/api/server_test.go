package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/sweep"
	"go.uber.org/zap"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

type fakeSweeps struct {
	triggerErr error
	triggered  int
	running    bool
	last       *sweep.Report
}

func (f *fakeSweeps) Trigger() error {
	if f.triggerErr != nil {
		return f.triggerErr
	}
	f.triggered++
	return nil
}

func (f *fakeSweeps) Running() bool { return f.running }
func (f *fakeSweeps) LastReport() *sweep.Report { return f.last }

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Enabled:  true,
			Port:     8080,
			Username: "admin",
			Password: "secret",
		},
	}
}

func newTestServer(t *testing.T, db Pinger, sweeps SweepController) *Server {
	t.Helper()
	s, err := NewServer(testConfig(), zap.NewNop(), db, sweeps)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, path string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing username", func(c *config.Config) { c.API.Username = "" }},
		{"missing password", func(c *config.Config) { c.API.Password = "" }},
		{"bad port", func(c *config.Config) { c.API.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewServer(cfg, zap.NewNop(), &fakePinger{}, &fakeSweeps{})
			assert.Error(t, err)
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakePinger{}, &fakeSweeps{running: true})

	rec := do(s, http.MethodGet, "/health", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["sweep_running"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestHealthDatabaseDown(t *testing.T) {
	s := newTestServer(t, &fakePinger{err: errors.New("connection refused")}, &fakeSweeps{})

	rec := do(s, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestSweepRoutesRequireAuth(t *testing.T) {
	sweeps := &fakeSweeps{}
	s := newTestServer(t, &fakePinger{}, sweeps)

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/sweeps/last", false).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/api/v1/sweeps", false).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sweeps", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, sweeps.triggered)
}

func TestLastSweep(t *testing.T) {
	sweeps := &fakeSweeps{}
	s := newTestServer(t, &fakePinger{}, sweeps)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/sweeps/last", true).Code)

	sweeps.last = &sweep.Report{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC),
		Buckets: []sweep.BucketSweepResult{
			{Bucket: "items", Scanned: 4, Deleted: 1, Candidates: []string{"c.jpg"}},
			{Bucket: "profiles", Err: errors.New("list failed")},
		},
	}

	rec := do(s, http.MethodGet, "/api/v1/sweeps/last", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Running bool `json:"running"`
		Report  struct {
			RunID   string `json:"run_id"`
			Buckets []struct {
				Bucket     string   `json:"bucket"`
				Deleted    int      `json:"deleted"`
				Candidates []string `json:"candidates"`
				Outcome    string   `json:"outcome"`
				Error      string   `json:"error"`
			} `json:"buckets"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.Report.RunID)
	require.Len(t, body.Report.Buckets, 2)
	assert.Equal(t, []string{"c.jpg"}, body.Report.Buckets[0].Candidates)
	assert.Equal(t, "success", body.Report.Buckets[0].Outcome)
	assert.Equal(t, "failed", body.Report.Buckets[1].Outcome)
	assert.Equal(t, "list failed", body.Report.Buckets[1].Error)
}

func TestTriggerSweep(t *testing.T) {
	sweeps := &fakeSweeps{}
	s := newTestServer(t, &fakePinger{}, sweeps)

	rec := do(s, http.MethodPost, "/api/v1/sweeps", true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, sweeps.triggered)

	sweeps.triggerErr = sweep.ErrSweepInProgress
	rec = do(s, http.MethodPost, "/api/v1/sweeps", true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	sweeps.triggerErr = errors.New("unexpected")
	rec = do(s, http.MethodPost, "/api/v1/sweeps", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakePinger{}, &fakeSweeps{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(s, http.MethodPost, "/health", false).Code)
}
