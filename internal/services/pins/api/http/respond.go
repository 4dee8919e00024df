package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/services/shared/i18nhttp"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   apperrors.Code `json:"error"`
	Message string         `json:"message"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.Wrap(apperrors.CodeValidation, "request body too large", err)
		}
		return apperrors.Wrap(apperrors.CodeValidation, "decode request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, apperrors.CodeOf(err).HTTPStatus(), err)
}

// writeErrorStatus renders err as a localized JSON body. Server-side
// failures are logged with the underlying cause.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	code := apperrors.CodeOf(err)
	var metadata map[string]string
	if domainErr, ok := apperrors.As(err); ok {
		metadata = domainErr.Metadata
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	tag := i18nhttp.ResolveTag(r)
	w.Header().Set(i18nhttp.LangHeader, tag.String())
	writeJSON(w, status, errorResponse{
		Error:   code,
		Message: i18nhttp.Catalog(r).Format(string(code), metadata),
	})
}
