package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/facility"
	"github.com/sells-group/siteresolve/internal/model"
	"github.com/sells-group/siteresolve/internal/pipeline"
	"github.com/sells-group/siteresolve/internal/sitematch"
	"github.com/sells-group/siteresolve/internal/store"
)

type handler struct {
	deps   Deps
	opts   Options
	filter *pipeline.Filter
}

func newHandler(deps Deps, opts Options) *handler {
	return &handler{
		deps:   deps,
		opts:   opts,
		filter: pipeline.NewFilter(deps.Resolver, nil, deps.Metrics, 0),
	}
}

// facilityRequest accepts candidates either as a list or as the scraper's
// serialized list string.
type facilityRequest struct {
	Name            string   `json:"name"`
	CandidateURLs   []string `json:"candidate_urls"`
	PossibleWebsite string   `json:"possible_website,omitempty"`
}

func (fr facilityRequest) facility() (sitematch.Facility, error) {
	f := sitematch.Facility{Name: fr.Name, CandidateURLs: fr.CandidateURLs}
	if len(f.CandidateURLs) == 0 && fr.PossibleWebsite != "" {
		urls, err := facility.ParseCandidates(fr.PossibleWebsite)
		if err != nil {
			return f, err
		}
		f.CandidateURLs = urls
	}
	return f, nil
}

type resolveResponse struct {
	Website string `json:"website"`
	sitematch.Result
}

func newResolveResponse(r sitematch.Result) resolveResponse {
	return resolveResponse{Website: r.Website(), Result: r}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"mode":          h.deps.Resolver.Mode(),
		"brand_entries": h.deps.Resolver.Registry().Len(),
		"store":         h.deps.Store != nil,
	})
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req facilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	f, err := req.facility()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.deps.Resolver.Resolve(f)
	h.deps.Metrics.ObserveResult(res)
	writeJSON(w, http.StatusOK, newResolveResponse(res))
}

func (h *handler) resolveBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Facilities []facilityRequest `json:"facilities"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Facilities) == 0 {
		writeError(w, http.StatusBadRequest, "facilities is required")
		return
	}
	if len(req.Facilities) > h.opts.MaxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			"batch of "+strconv.Itoa(len(req.Facilities))+" exceeds limit of "+strconv.Itoa(h.opts.MaxBatchSize))
		return
	}

	facilities := make([]sitematch.Facility, len(req.Facilities))
	for i, fr := range req.Facilities {
		f, err := fr.facility()
		if err != nil {
			writeError(w, http.StatusBadRequest, "facilities["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		facilities[i] = f
	}

	results, err := h.filter.Resolve(r.Context(), facilities)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}

	out := make([]resolveResponse, len(results))
	for i, res := range results {
		out[i] = newResolveResponse(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *handler) listBrands(w http.ResponseWriter, _ *http.Request) {
	entries := h.deps.Resolver.Registry().Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func (h *handler) matchBrand(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	token, err := sitematch.ExtractSiteToken(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := h.deps.Resolver.Registry().Match(token)
	writeJSON(w, http.StatusOK, struct {
		URL       string `json:"url"`
		SiteToken string `json:"site_token"`
		sitematch.BrandMatch
	}{URL: raw, SiteToken: token, BrandMatch: m})
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(string(filter.Status)))
		return
	}
	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	runs, err := h.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		h.internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) listResolutions(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := store.ResolutionFilter{Via: q.Get("via")}
	switch filter.Via {
	case "", "name", "brand", "none":
	default:
		writeError(w, http.StatusBadRequest, "via must be name, brand or none")
		return
	}
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	res, err := h.deps.Store.ListResolutions(r.Context(), run.ID, filter)
	if err != nil {
		h.internalError(w, "list resolutions", err)
		return
	}
	if res == nil {
		res = []model.Resolution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": run.ID, "resolutions": res})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Collector == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	hours, ok := queryInt(w, r, "hours")
	if !ok {
		return
	}
	if hours == 0 {
		hours = h.opts.LookbackHours
	}
	if hours <= 0 {
		hours = 24
	}

	snap, err := h.deps.Collector.Collect(r.Context(), hours)
	if err != nil {
		h.internalError(w, "collect stats", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.deps.Store.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run "+strconv.Quote(id)+" not found")
		return nil, false
	}
	if err != nil {
		h.internalError(w, "get run", err)
		return nil, false
	}
	return run, true
}

func (h *handler) requireStore(w http.ResponseWriter) bool {
	if h.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return false
	}
	return true
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *handler) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
