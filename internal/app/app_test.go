package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newthinker/tradedesk/internal/config"
	"github.com/newthinker/tradedesk/internal/core"
	"github.com/newthinker/tradedesk/internal/session"
	"github.com/newthinker/tradedesk/internal/storage/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend mimics the backtesting service for user alice/abc123.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["username"] != "alice" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token":"abc123","token_type":"bearer"}`))
	})
	mux.HandleFunc("/strategies", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc123" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Invalid token"}`))
			return
		}
		w.Write([]byte(`{"strategies":"sma_cross\nrsi_reversion\n\n"}`))
	})
	mux.HandleFunc("/backtest", func(w http.ResponseWriter, r *http.Request) {
		var req core.BacktestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
		assert.Equal(t, "sma_cross", req.Strategy)
		assert.Equal(t, config.DefaultTimerange, req.Timerange)
		w.Write([]byte(`{"profit": 120.5, "trades": 34}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.API.BaseURL = baseURL
	cfg.Store = config.StoreConfig{Type: "memory"}
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestNew_UnknownStore(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8000")
	cfg.Store.Type = "redis"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestApp_LoginThenBacktest(t *testing.T) {
	srv := fakeBackend(t)
	store := kv.NewMemoryStore()
	a, err := New(testConfig(srv.URL), nil, WithStore(store))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	assert.Equal(t, session.StateAnonymous, a.Sessions().State())

	require.NoError(t, a.Sessions().Login(ctx, core.Credentials{Username: "alice", Password: "pw"}))
	assert.Equal(t, core.Session{Token: "abc123", LoggedIn: true, Username: "alice"}, a.Sessions().Session())

	// The login listener loaded the catalog
	assert.Equal(t, []string{"sma_cross", "rsi_reversion"}, a.Orchestrator().Catalog())

	token, ok, err := store.Get(ctx, session.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	a.Orchestrator().SelectStrategy("sma_cross")
	run, err := a.Orchestrator().RunBacktest(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.JSONEq(t, `{"profit":120.5,"trades":34}`, string(run.Result))
}

func TestApp_LoginRejected(t *testing.T) {
	srv := fakeBackend(t)
	store := kv.NewMemoryStore()
	a, err := New(testConfig(srv.URL), nil, WithStore(store))
	require.NoError(t, err)

	err = a.Sessions().Login(context.Background(), core.Credentials{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, core.ErrAuthRejected)
	assert.Equal(t, "Invalid credentials", core.UserMessage(err))
	assert.Equal(t, session.StateAnonymous, a.Sessions().State())
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, a.Orchestrator().Catalog())
}

func TestApp_StartRestoresSession(t *testing.T) {
	srv := fakeBackend(t)
	store := kv.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, session.KeyToken, "abc123"))
	require.NoError(t, store.Set(ctx, session.KeyUsername, "alice"))

	a, err := New(testConfig(srv.URL), nil, WithStore(store))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	assert.Equal(t, session.StateLoggedIn, a.Sessions().State())
	assert.Equal(t, "alice", a.Sessions().Session().Username)
	assert.Equal(t, []string{"sma_cross", "rsi_reversion"}, a.Orchestrator().Catalog())
}

func TestApp_StaleTokenSurfacesCatalogError(t *testing.T) {
	srv := fakeBackend(t)
	store := kv.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, session.KeyToken, "expired"))
	require.NoError(t, store.Set(ctx, session.KeyUsername, "alice"))

	a, err := New(testConfig(srv.URL), nil, WithStore(store))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	// Restore never calls the backend, so the session looks valid
	assert.Equal(t, session.StateLoggedIn, a.Sessions().State())
	assert.Empty(t, a.Orchestrator().Catalog())
	assert.ErrorIs(t, a.Orchestrator().CatalogError(), core.ErrCatalogFetch)
}

func TestApp_StartTwice(t *testing.T) {
	a, err := New(testConfig("http://127.0.0.1:8000"), nil)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	assert.Error(t, a.Start(context.Background()))
}

func TestApp_LogoutClearsStore(t *testing.T) {
	srv := fakeBackend(t)
	store := kv.NewMemoryStore()
	a, err := New(testConfig(srv.URL), nil, WithStore(store))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Sessions().Login(ctx, core.Credentials{Username: "alice", Password: "pw"}))
	a.Sessions().Logout(ctx)

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, core.AnonymousSession(), a.Sessions().Session())
}

func TestApp_LocalFSSurvivesRestart(t *testing.T) {
	srv := fakeBackend(t)
	cfg := testConfig(srv.URL)
	cfg.Store = config.StoreConfig{Type: "localfs", Path: filepath.Join(t.TempDir(), "session")}
	ctx := context.Background()

	first, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.Sessions().Login(ctx, core.Credentials{Username: "alice", Password: "pw"}))

	second, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	assert.NoError(t, second.RestoreError())
	assert.Equal(t, "abc123", second.Sessions().Token())
}

func TestApp_StartWithUnreadableStore(t *testing.T) {
	srv := fakeBackend(t)
	cfg := testConfig(srv.URL)
	dir := filepath.Join(t.TempDir(), "session")
	cfg.Store = config.StoreConfig{Type: "localfs", Path: dir}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, session.KeyToken), 0o700))
	ctx := context.Background()

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	assert.Equal(t, session.StateAnonymous, a.Sessions().State())
	assert.ErrorIs(t, a.RestoreError(), core.ErrStore)

	a.Sessions().Logout(ctx)
	require.NoError(t, a.Sessions().Login(ctx, core.Credentials{Username: "alice", Password: "pw"}))
	assert.Equal(t, []string{"sma_cross", "rsi_reversion"}, a.Orchestrator().Catalog())
}

func TestApp_MetricsDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8000")
	cfg.Metrics.Enabled = false
	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, a.Metrics())
	assert.NoError(t, a.Close())
}

func TestApp_CloseWritesTextfile(t *testing.T) {
	srv := fakeBackend(t)
	cfg := testConfig(srv.URL)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "tradedesk.prom")

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Sessions().Login(context.Background(), core.Credentials{Username: "alice", Password: "pw"}))
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "tradedesk_api_requests_total"))
	assert.True(t, strings.Contains(string(data), "tradedesk_session_logged_in 1"))
}
