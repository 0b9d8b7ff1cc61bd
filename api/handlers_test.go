/*
handlers_test.go - HTTP API tests

Tests exercise the full stack behind the router: chi routing, the admin
sync trigger against a stub upstream feed, and the read endpoints over a
freshly synced in-memory store.
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ljunqueira/AgendaBlocoCarnaval/feed"
	"github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"
)

const testAdminToken = "test-secret"

const testFeedDoc = `{
	"last_update": "v1",
	"neighborhoods": [
		{"id": 1, "name": "Centro"},
		{"id": 2, "name": "Lapa"}
	],
	"service_types": [
		{"id": 10, "name": "Banheiro"}
	],
	"services": [
		{"id": 9, "title": "Banheiro da Praça", "address": "Praça Central", "service_type_name": "Banheiro", "neighborhood_id": 1}
	],
	"parades": [
		{"id": 5, "title": "Bloco Sol", "date": "2026-02-14", "parade_time": "23:00", "end_time": "01:00", "neighborhood_id": 2},
		{"id": 6, "title": "Bloco Lua", "date": "2026-02-15", "parade_time": "16:00", "neighborhood_id": 1}
	]
}`

type testEnv struct {
	router   http.Handler
	store    *sqlite.Store
	upstream *httptest.Server
	status   int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{status: http.StatusOK}
	env.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.status != http.StatusOK {
			http.Error(w, "upstream down", env.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testFeedDoc))
	}))
	t.Cleanup(env.upstream.Close)

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.store = store

	fetcher := feed.NewFetcher(env.upstream.URL, 5*time.Second)
	syncer := feed.NewSyncer(store, fetcher, clockwork.NewRealClock())
	env.router = NewRouter(NewHandler(store, syncer, testAdminToken))
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) sync(t *testing.T) {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/admin/sync", map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestSyncFeedRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/sync", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/admin/sync", map[string]string{"X-Admin-Token": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	// Nothing was synced by the rejected requests.
	parades, _, err := env.store.ListParades(context.Background(), sqlite.ParadeFilter{})
	require.NoError(t, err)
	assert.Empty(t, parades)
}

func TestSyncFeedEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/sync", map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SyncResponse](t, rec)
	assert.Equal(t, feed.StatusSynced, resp.Status)
	assert.Equal(t, "v1", resp.LastUpdate)

	// Same marker again: the pass is skipped.
	rec = env.do(t, http.MethodPost, "/admin/sync", map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[SyncResponse](t, rec)
	assert.Equal(t, feed.StatusSkipped, resp.Status)
}

func TestSyncFeedUpstreamFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.status = http.StatusInternalServerError

	rec := env.do(t, http.MethodPost, "/admin/sync", map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to fetch feed", resp.Error)
}

func TestListParades(t *testing.T) {
	env := newTestEnv(t)
	env.sync(t)

	t.Run("all ordered by start time", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ParadesResponse](t, rec)
		assert.Equal(t, 2, resp.Total)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "Bloco Sol", resp.Items[0].Name)
		require.NotNil(t, resp.Items[0].StartAt)
		assert.Equal(t, "2026-02-14T23:00:00-03:00", *resp.Items[0].StartAt)
		assert.Equal(t, "Bloco Lua", resp.Items[1].Name)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades?from=2026-02-15&to=2026-02-15", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ParadesResponse](t, rec)
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Bloco Lua", resp.Items[0].Name)
	})

	t.Run("neighborhood filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades?neighborhood=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ParadesResponse](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Bloco Sol", resp.Items[0].Name)
	})

	t.Run("name search", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades?q=Lua", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ParadesResponse](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Bloco Lua", resp.Items[0].Name)
	})

	t.Run("pagination", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades?page=2&per_page=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ParadesResponse](t, rec)
		assert.Equal(t, 2, resp.Total)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Bloco Lua", resp.Items[0].Name)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades?from=14-02-2026", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad neighborhood id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades?neighborhood=lapa", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetParade(t *testing.T) {
	env := newTestEnv(t)
	env.sync(t)

	t.Run("found", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades/5", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		dto := decode[ParadeDTO](t, rec)
		assert.Equal(t, int64(5), dto.ID)
		assert.Equal(t, "Bloco Sol", dto.Name)
		require.NotNil(t, dto.EndAt)
		assert.Equal(t, "2026-02-15T01:00:00-03:00", *dto.EndAt)
	})

	t.Run("not found", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades/999", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/parades/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListServices(t *testing.T) {
	env := newTestEnv(t)
	env.sync(t)

	rec := env.do(t, http.MethodGet, "/v1/services?service_type=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Items []ServiceDTO `json:"items"`
	}](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Banheiro da Praça", resp.Items[0].Name)
	require.NotNil(t, resp.Items[0].Address)
	assert.Equal(t, "Praça Central", *resp.Items[0].Address)

	rec = env.do(t, http.MethodGet, "/v1/services?service_type=999", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[struct {
		Items []ServiceDTO `json:"items"`
	}](t, rec)
	assert.Empty(t, resp.Items)
}

func TestListLookups(t *testing.T) {
	env := newTestEnv(t)
	env.sync(t)

	rec := env.do(t, http.MethodGet, "/v1/service-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decode[struct {
		Items []ServiceTypeDTO `json:"items"`
	}](t, rec)
	require.Len(t, types.Items, 1)
	assert.Equal(t, "Banheiro", types.Items[0].Name)

	rec = env.do(t, http.MethodGet, "/v1/neighborhoods", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	neighborhoods := decode[struct {
		Items []NeighborhoodDTO `json:"items"`
	}](t, rec)
	require.Len(t, neighborhoods.Items, 2)
	assert.Equal(t, "Centro", neighborhoods.Items[0].Name)
	assert.Equal(t, "Lapa", neighborhoods.Items[1].Name)
}
