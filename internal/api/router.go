package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/wstore/internal/auth"
	"github.com/starford/wstore/internal/fileservice"
)

// DefaultMaxBodyBytes caps upload bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 50 << 20

// NewRouter creates the storage router. The whole URL path names a resource:
// reads are public, writes and deletes pass through the access gate.
func NewRouter(svc *fileservice.Service, gate *auth.Gate, maxBodyBytes int64) chi.Router {
	h := NewHandler(svc, maxBodyBytes)

	r := chi.NewRouter()
	r.Use(middleware.GetHead)

	r.Get("/*", h.Read)

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		r.Post("/*", h.Create)
		r.Put("/*", h.Upsert)
		r.Delete("/*", h.Delete)
	})

	return r
}

// NewAdminRouter creates the operational router served on its own listener:
// health probes, the change event stream and the journal query. events and
// journal may be nil.
func NewAdminRouter(gate *auth.Gate, events http.Handler, journal JournalLister) chi.Router {
	r := chi.NewRouter()

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusBody("ok"))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusBody("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		if events != nil {
			r.Get("/events", events.ServeHTTP)
		}
		if journal != nil {
			jh := &journalHandler{journal: journal}
			r.Get("/journal", jh.List)
		}
	})

	return r
}
