package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the http.Handler serving the upload API and the
// committed assets.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Upload and deletion
	mux.HandleFunc("POST /api/upload", s.RequireAuthentication(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleUpload(ctx, w, r)
	}))
	mux.HandleFunc("DELETE /api/upload", s.RequireAuthentication(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleDelete(ctx, w, r)
	}))
	// For clients that cannot send a body with DELETE.
	mux.HandleFunc("POST /api/upload/delete", s.RequireAuthentication(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleDelete(ctx, w, r)
	}))

	// Listing
	mux.HandleFunc("GET /api/assets/{entityType}/{entityId}", s.RequireAuthentication(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleListAssets(ctx, w, r, r.PathValue("entityType"), r.PathValue("entityId"))
	}))

	// Entity registry
	if s.Config.Entities != nil {
		mux.HandleFunc("PUT /api/entities/{entityType}/{entityId}", s.RequireAuthentication(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			s.handleEntityPut(ctx, w, r, r.PathValue("entityType"), r.PathValue("entityId"))
		}))
		mux.HandleFunc("GET /api/entities/{entityType}/{entityId}", s.RequireAuthentication(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			s.handleEntityGet(ctx, w, r, r.PathValue("entityType"), r.PathValue("entityId"))
		}))
	}

	// Public retrieval of committed assets
	mux.HandleFunc("GET "+s.Config.PublicPrefix+"/{path...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleServeAsset(w, r, r.PathValue("path"))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleHealth(ctx, w)
	})

	if s.Config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Config.Gatherer, promhttp.HandlerOpts{}))
	}

	handler := s.SlashFix(mux)
	handler = s.LogRequest(handler)
	handler = s.Recoverer(handler)
	return handler
}
