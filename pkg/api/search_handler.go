package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"irdin-archive/pkg/db"
	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/metrics"
	"irdin-archive/pkg/search"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// SourceStore loads one catalog item for the detail route
type SourceStore interface {
	SourceBySlug(ctx context.Context, slug string) (*domain.Source, error)
}

// CatalogHandler serves search and item detail
type CatalogHandler struct {
	engine  *search.Engine
	store   SourceStore
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCatalogHandler caches search responses for ttl; zero disables the cache.
func NewCatalogHandler(engine *search.Engine, store SourceStore, ttl time.Duration, m *metrics.Metrics) *CatalogHandler {
	h := &CatalogHandler{engine: engine, store: store, metrics: m, logger: zap.NewNop()}
	if ttl > 0 {
		h.cache = cache.New(ttl, 2*ttl)
	}
	return h
}

func (h *CatalogHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger
	router.HandleFunc("/api/search", h.Search).Methods(http.MethodGet)
	router.HandleFunc("/api/sources/{slug}", h.Source).Methods(http.MethodGet)
}

// Search handles GET /api/search?q=&page=&fields=
func (h *CatalogHandler) Search(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	page := 1
	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}

	sreq := search.Request{
		Query:  strings.TrimSpace(query.Get("q")),
		Page:   page,
		Fields: splitFields(query["fields"]),
	}

	key := cacheKey(sreq)
	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	res, err := h.engine.Search(req.Context(), sreq)
	if err != nil {
		h.logger.Error("search failed", zap.String("request_id", RequestID(req.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	h.metrics.SearchServed(res.Total)

	if h.cache != nil {
		h.cache.SetDefault(key, res)
	}
	writeJSON(w, http.StatusOK, res)
}

// Source handles GET /api/sources/{slug}
func (h *CatalogHandler) Source(w http.ResponseWriter, req *http.Request) {
	slug := mux.Vars(req)["slug"]

	src, err := h.store.SourceBySlug(req.Context(), slug)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	if err != nil {
		h.logger.Error("load source failed", zap.String("slug", slug), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load failed")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// splitFields accepts both repeated and comma separated fields parameters
func splitFields(values []string) []string {
	var fields []string
	for _, v := range values {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}
	return fields
}

func cacheKey(r search.Request) string {
	fields := append([]string(nil), r.Fields...)
	sort.Strings(fields)
	return strings.ToLower(r.Query) + "|" + strconv.Itoa(r.Page) + "|" + strings.Join(fields, ",")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
