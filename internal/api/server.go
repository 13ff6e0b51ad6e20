// Package api exposes pathlight over HTTP and MCP. The HTTP surface is a
// chi router with bearer-authenticated /v1 routes; the MCP server exposes
// the same operations as tools for agent use.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pathlight/pathlight/internal/engine"
	"github.com/pathlight/pathlight/internal/keywords"
	"github.com/pathlight/pathlight/internal/paths"
	"github.com/pathlight/pathlight/internal/trends"
	"github.com/pathlight/pathlight/internal/websearch"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds the services the HTTP and MCP surfaces are built on.
type AppDeps struct {
	Paths    *paths.Service
	Search   *websearch.Service
	Trends   *trends.Service
	Keywords *keywords.Extractor
	Engine   engine.Engine // optional; health reports not_configured when nil
	Token    string
}

// NewHandler builds the HTTP API. /health is public; everything under /v1
// requires the bearer token.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Route("/v1", func(v chi.Router) {
		v.Use(BearerAuth(deps.Token))

		v.Get("/paths", handleListPaths(deps))
		v.Post("/paths", handleCreatePath(deps))
		v.Post("/paths/generate", handleGeneratePath(deps))
		v.Get("/paths/{pathID}", handleGetPath(deps))
		v.Put("/paths/{pathID}", handleUpdatePath(deps))
		v.Delete("/paths/{pathID}", handleDeletePath(deps))
		v.Post("/paths/{pathID}/preview", handlePreviewPath(deps))
		v.Get("/paths/{pathID}/revisions", handleListRevisions(deps))

		v.Post("/diff", handleDiff)
		v.Post("/diff/apply", handleApplyDiff)

		v.Get("/search", handleSearch(deps))
		v.Get("/trends", handleTrends(deps))
		v.Post("/keywords", handleKeywords(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engineStatus := "not_configured"
		if deps.Engine != nil {
			if deps.Engine.IsRunning(r.Context()) {
				engineStatus = "ok"
			} else {
				engineStatus = "unreachable"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"engine": engineStatus,
		})
	}
}

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
