package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
)

const (
	msgPinAdded    = "Pin added successfully."
	msgRatingAdded = "Rating added successfully."
)

type handler struct {
	store   storage.PinStore
	ratings storage.RatingLister
}

type addPinRequest struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

type addPinResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type addRatingRequest struct {
	PointID int64 `json:"point_id"`
	Rate    int   `json:"rate"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) handleAddPin(w http.ResponseWriter, r *http.Request) {
	var req addPinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.store.InsertPin(r.Context(), storage.NewPin{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		X:           req.X,
		Y:           req.Y,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addPinResponse{ID: id, Message: msgPinAdded})
}

func (h *handler) handleListPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.store.GetAllPins(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}

func (h *handler) handleGetPin(w http.ResponseWriter, r *http.Request) {
	id, err := pinIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pin, err := h.store.GetPinByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

func (h *handler) handleAddRate(w http.ResponseWriter, r *http.Request) {
	var req addRatingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := storage.SubmitRating(r.Context(), h.store, req.PointID, req.Rate); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgRatingAdded})
}

func (h *handler) handleDeletePin(w http.ResponseWriter, r *http.Request) {
	id, err := pinIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeletePin(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleListRatings(w http.ResponseWriter, r *http.Request) {
	id, err := pinIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.store.GetPinByID(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	ratings, err := h.ratings.ListRatings(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratings)
}

func (h *handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apperrors.Newf(apperrors.CodeNotFound, "no route for %s %s", r.Method, r.URL.Path))
}

func (h *handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, r, http.StatusMethodNotAllowed,
		apperrors.Newf(apperrors.CodeValidation, "method %s not allowed for %s", r.Method, r.URL.Path))
}

func pinIDParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.WrapWithMetadata(apperrors.CodeValidation,
			"pin id must be an integer", map[string]string{"Field": "id"}, err)
	}
	return id, nil
}
