package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteresolve/internal/config"
	"github.com/sells-group/siteresolve/internal/model"
	"github.com/sells-group/siteresolve/internal/monitoring"
	"github.com/sells-group/siteresolve/internal/sitematch"
	"github.com/sells-group/siteresolve/internal/store"
)

func testDeps(t *testing.T, withStore bool) (Deps, store.Store) {
	t.Helper()
	reg := prometheus.NewRegistry()
	deps := Deps{
		Resolver: sitematch.NewResolver(
			sitematch.NewRegistry([]string{"publicstorage", "cubesmart", "extraspace"}),
			sitematch.Options{},
		),
		Metrics:  monitoring.NewMetrics(reg),
		Gatherer: reg,
	}
	if !withStore {
		return deps, nil
	}

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	deps.Store = s
	deps.Collector = monitoring.NewCollector(s)
	return deps, s
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, target, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestNewOptions(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           9090,
			CORSOrigins:    []string{"https://app.example.com"},
			MaxBatchSize:   50,
			MaxBodyBytes:   1024,
			RequestTimeout: 15,
		},
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 12},
	}

	opts := NewOptions(cfg, 0)
	assert.Equal(t, ":9090", opts.Addr)
	assert.Equal(t, 50, opts.MaxBatchSize)
	assert.Equal(t, int64(1024), opts.MaxBodyBytes)
	assert.Equal(t, 12, opts.LookbackHours)
	assert.Equal(t, "15s", opts.RequestTimeout.String())

	assert.Equal(t, ":7000", NewOptions(cfg, 7000).Addr)
}

func TestHealth(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	decodeBody(t, rr, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "last_match", body["mode"])
	assert.Equal(t, 3.0, body["brand_entries"])
	assert.Equal(t, false, body["store"])
}

func TestResolve(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantSite  string
		wantBrand bool
	}{
		{
			name:     "name match",
			body:     map[string]any{"name": "Cube Smart", "candidate_urls": []string{"https://www.yelp.com/biz/x", "https://www.cubesmart.com"}},
			wantCode: http.StatusOK,
			wantSite: "https://www.cubesmart.com",
		},
		{
			name:      "brand match",
			body:      map[string]any{"name": "Storage Depot", "candidate_urls": []string{"https://www.publicstorage.com/ca"}},
			wantCode:  http.StatusOK,
			wantSite:  "https://www.publicstorage.com/ca",
			wantBrand: true,
		},
		{
			name:     "serialized candidate list",
			body:     map[string]any{"name": "Cube Smart", "possible_website": "['https://www.cubesmart.com']"},
			wantCode: http.StatusOK,
			wantSite: "https://www.cubesmart.com",
		},
		{
			name:     "no candidates",
			body:     map[string]any{"name": "Cube Smart"},
			wantCode: http.StatusOK,
			wantSite: sitematch.NoneSentinel,
		},
		{
			name:     "unreadable serialized list",
			body:     map[string]any{"name": "Cube Smart", "possible_website": "['https://a.com'"},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/resolve", tc.body)
			require.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
			if tc.wantCode != http.StatusOK {
				var e map[string]string
				decodeBody(t, rr, &e)
				assert.NotEmpty(t, e["error"])
				return
			}
			var got map[string]any
			decodeBody(t, rr, &got)
			assert.Equal(t, tc.wantSite, got["website"])
			assert.Equal(t, tc.wantBrand, got["is_known_brand"])
		})
	}
}

func TestResolve_InvalidBody(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	r := httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestResolve_BodyTooLarge(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{MaxBodyBytes: 32})

	rr := do(t, h, http.MethodPost, "/v1/resolve", map[string]any{
		"name":           "Cube Smart",
		"candidate_urls": []string{"https://www.cubesmart.com", "https://www.yelp.com/biz/cube-smart"},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestResolveBatch(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{MaxBatchSize: 3})

	rr := do(t, h, http.MethodPost, "/v1/resolve/batch", map[string]any{
		"facilities": []map[string]any{
			{"name": "Cube Smart", "candidate_urls": []string{"https://www.cubesmart.com"}},
			{"name": "Nowhere", "candidate_urls": []string{"https://www.yelp.com"}},
			{"name": "Storage Depot", "possible_website": `["https://www.extraspace.com/x"]`},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got struct {
		Results []struct {
			Website      string `json:"website"`
			IsKnownBrand bool   `json:"is_known_brand"`
		} `json:"results"`
	}
	decodeBody(t, rr, &got)
	require.Len(t, got.Results, 3)
	assert.Equal(t, "https://www.cubesmart.com", got.Results[0].Website)
	assert.Equal(t, sitematch.NoneSentinel, got.Results[1].Website)
	assert.Equal(t, "https://www.extraspace.com/x", got.Results[2].Website)
	assert.True(t, got.Results[2].IsKnownBrand)
}

func TestResolveBatch_Limits(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{MaxBatchSize: 1})

	rr := do(t, h, http.MethodPost, "/v1/resolve/batch", map[string]any{"facilities": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/resolve/batch", map[string]any{
		"facilities": []map[string]any{{"name": "a"}, {"name": "b"}},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Contains(t, rr.Body.String(), "exceeds limit of 1")
}

func TestBrands(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	rr := do(t, h, http.MethodGet, "/v1/brands", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Count   int      `json:"count"`
		Entries []string `json:"entries"`
	}
	decodeBody(t, rr, &list)
	assert.Equal(t, 3, list.Count)
	assert.Equal(t, []string{"publicstorage", "cubesmart", "extraspace"}, list.Entries)

	rr = do(t, h, http.MethodGet, "/v1/brands/match?url=https://www.cubesmart.com/ny", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var m map[string]any
	decodeBody(t, rr, &m)
	assert.Equal(t, "cubesmart", m["site_token"])
	assert.Equal(t, true, m["matched"])
	assert.Equal(t, "cubesmart", m["entry"])

	rr = do(t, h, http.MethodGet, "/v1/brands/match?url=cubesmart.com", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/brands/match", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRuns_DisabledStore(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	for _, path := range []string{"/v1/runs", "/v1/runs/abc", "/v1/runs/abc/resolutions", "/v1/stats"} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestRuns(t *testing.T) {
	deps, s := testDeps(t, true)
	h := NewRouter(deps, Options{LookbackHours: 24})
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.NewRun{Source: "in.csv", Mode: "last_match", BrandEntries: 3})
	require.NoError(t, err)
	_, err = s.SaveResolutions(ctx, run.ID, []model.Resolution{
		{RunID: run.ID, RowIndex: 0, FacilityName: "Cube Smart", Website: "https://www.cubesmart.com", Via: "name", Ratio: 1, CandidateCount: 1},
		{RunID: run.ID, RowIndex: 1, FacilityName: "Nowhere", Website: "NULL", CandidateCount: 0},
	})
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, run.ID, &model.RunStats{Rows: 2, Resolved: 1, ByName: 1, None: 1}))

	t.Run("list", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs?status=complete", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var got struct {
			Runs []model.Run `json:"runs"`
		}
		decodeBody(t, rr, &got)
		require.Len(t, got.Runs, 1)
		assert.Equal(t, run.ID, got.Runs[0].ID)
	})

	t.Run("list bad params", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?status=bogus", nil).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?limit=-1", nil).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?offset=x", nil).Code)
	})

	t.Run("get", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs/"+run.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var got model.Run
		decodeBody(t, rr, &got)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Stats)
		assert.Equal(t, 2, got.Stats.Rows)
	})

	t.Run("get missing", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs/missing", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "not found")
	})

	t.Run("resolutions", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/resolutions?via=none", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var got struct {
			RunID       string             `json:"run_id"`
			Resolutions []model.Resolution `json:"resolutions"`
		}
		decodeBody(t, rr, &got)
		assert.Equal(t, run.ID, got.RunID)
		require.Len(t, got.Resolutions, 1)
		assert.Equal(t, "Nowhere", got.Resolutions[0].FacilityName)

		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/resolutions?via=other", nil).Code)
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/missing/resolutions", nil).Code)
	})

	t.Run("stats", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/stats", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var snap monitoring.MetricsSnapshot
		decodeBody(t, rr, &snap)
		assert.Equal(t, 1, snap.RunsTotal)
		assert.Equal(t, 1, snap.RunsComplete)
		assert.Equal(t, 2, snap.Rows)
		assert.InDelta(t, 0.5, snap.MatchRate, 1e-9)
		assert.Equal(t, 24, snap.LookbackHours)

		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/stats?hours=abc", nil).Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	do(t, h, http.MethodPost, "/v1/resolve", map[string]any{"name": "Cube Smart", "candidate_urls": []string{"https://www.cubesmart.com"}})

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `siteresolve_resolutions_total{outcome="name"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{CORSOrigins: []string{"https://app.example.com"}})

	r := httptest.NewRequest(http.MethodOptions, "/v1/resolve", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFoundAndMethod(t *testing.T) {
	deps, _ := testDeps(t, false)
	h := NewRouter(deps, Options{})

	rr := do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error"`)

	rr = do(t, h, http.MethodGet, "/v1/resolve", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
