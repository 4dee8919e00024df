// Package httpapi exposes the pin store over JSON HTTP routes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
)

// Config controls router middleware.
type Config struct {
	// AllowedOrigins lists origins allowed by CORS. Empty or "*" allows any.
	AllowedOrigins []string
	// AccessLog enables per-request logging.
	AccessLog bool
}

// NewRouter returns the HTTP routes backed by store.
func NewRouter(store storage.PinStore, cfg Config) http.Handler {
	h := &handler{store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.AllowedOrigins))

	r.Get("/", h.handleRoot)
	r.Get("/get_pins", h.handleListPins)
	r.Get("/get_pin/{id}", h.handleGetPin)
	r.Delete("/delete_pin/{id}", h.handleDeletePin)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/add_pin", h.handleAddPin)
		r.Post("/add_rate", h.handleAddRate)
	})
	if lister, ok := store.(storage.RatingLister); ok {
		h.ratings = lister
		r.Get("/get_rates/{id}", h.handleListRatings)
	}
	r.NotFound(h.handleNotFound)
	r.MethodNotAllowed(h.handleMethodNotAllowed)
	return r
}
