package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pathlight/pathlight/internal/websearch"
)

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if strings.TrimSpace(query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		typ := websearch.SearchType(r.URL.Query().Get("type"))
		if typ != "" && !typ.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown search type %q", typ)
			return
		}
		limit := parseIntParam(r, "limit", 0, 25)

		resp, err := deps.Search.Search(r.Context(), query, typ, limit)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleTrends(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := deps.Trends.Trending(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to build trends report: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rep)
	}
}

func handleKeywords(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		cls, err := deps.Keywords.Extract(r.Context(), req.Text)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "keyword extraction failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cls)
	}
}
