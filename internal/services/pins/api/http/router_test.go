package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	pinsqlite "github.com/louisbranch/pinmap/internal/services/pins/storage/sqlite"
)

type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	pins    map[int64]storage.Pin
	ratings map[int64][]int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{pins: map[int64]storage.Pin{}, ratings: map[int64][]int{}}
}

func (s *fakeStore) InsertPin(_ context.Context, pin storage.NewPin) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if err := storage.ValidateNewPin(pin); err != nil {
		return 0, err
	}
	s.nextID++
	s.pins[s.nextID] = storage.Pin{
		ID:          s.nextID,
		Type:        pin.Type,
		Title:       pin.Title,
		Description: pin.Description,
		X:           pin.X,
		Y:           pin.Y,
	}
	return s.nextID, nil
}

func (s *fakeStore) GetAllPins(context.Context) ([]storage.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	pins := make([]storage.Pin, 0, len(s.pins))
	for id := int64(1); id <= s.nextID; id++ {
		if pin, ok := s.pins[id]; ok {
			pins = append(pins, pin)
		}
	}
	return pins, nil
}

func (s *fakeStore) GetPinByID(_ context.Context, id int64) (storage.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.Pin{}, s.err
	}
	pin, ok := s.pins[id]
	if !ok {
		return storage.Pin{}, storage.NotFound(id)
	}
	return pin, nil
}

func (s *fakeStore) InsertRating(_ context.Context, pointID int64, rate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := storage.ValidateRate(rate); err != nil {
		return err
	}
	if _, ok := s.pins[pointID]; !ok {
		return storage.MissingPin(pointID, nil)
	}
	s.ratings[pointID] = append(s.ratings[pointID], rate)
	return nil
}

func (s *fakeStore) UpdateAverageRating(_ context.Context, pointID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[pointID]
	rates := s.ratings[pointID]
	if !ok || len(rates) == 0 {
		return nil
	}
	total := 0
	for _, rate := range rates {
		total += rate
	}
	pin.AverageRate = float64(total) / float64(len(rates))
	s.pins[pointID] = pin
	return nil
}

func (s *fakeStore) DeletePin(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.pins, id)
	delete(s.ratings, id)
	return nil
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRootReturnsOK(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, NewRouter(newFakeStore(), Config{}), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "OK")
	}
}

func TestAddPinReturnsCreatedID(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router := NewRouter(store, Config{})
	rec := doRequest(t, router, http.MethodPost, "/add_pin",
		`{"type":"museum","title":"Louvre","description":"Paris","x":2.3376,"y":48.8606}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	got := decodeBody[addPinResponse](t, rec)
	if got.ID != 1 || got.Message != msgPinAdded {
		t.Fatalf("response = %+v, want id 1 and %q", got, msgPinAdded)
	}
	if store.pins[1].Title != "Louvre" {
		t.Fatalf("stored title = %q, want Louvre", store.pins[1].Title)
	}
}

func TestAddPinRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "title too long", body: `{"title":"` + strings.Repeat("a", 33) + `","x":0,"y":0}`, wantStatus: http.StatusBadRequest},
		{name: "longitude", body: `{"title":"a","x":200,"y":0}`, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"title":`, wantStatus: http.StatusBadRequest},
		{name: "wrong type", body: `{"title":"a","x":"east","y":0}`, wantStatus: http.StatusBadRequest},
		{name: "content type", body: `{"title":"a"}`, contentType: "text/plain", wantStatus: http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(newFakeStore(), Config{})
			req := httptest.NewRequest(http.MethodPost, "/add_pin", strings.NewReader(tt.body))
			contentType := tt.contentType
			if contentType == "" {
				contentType = "application/json"
			}
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				got := decodeBody[errorResponse](t, rec)
				if got.Error != apperrors.CodeValidation {
					t.Fatalf("error code = %q, want %q", got.Error, apperrors.CodeValidation)
				}
			}
		})
	}
}

func TestGetPin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router := NewRouter(store, Config{})
	doRequest(t, router, http.MethodPost, "/add_pin", `{"type":"park","title":"Ibirapuera","x":-46.6576,"y":-23.5874}`)

	rec := doRequest(t, router, http.MethodGet, "/get_pin/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	pin := decodeBody[storage.Pin](t, rec)
	if pin.Title != "Ibirapuera" || pin.Type != "park" {
		t.Fatalf("pin = %+v", pin)
	}

	rec = doRequest(t, router, http.MethodGet, "/get_pin/99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing pin status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := decodeBody[errorResponse](t, rec); got.Error != apperrors.CodeNotFound || got.Message != "Pin 99 was not found." {
		t.Fatalf("missing pin body = %+v", got)
	}

	rec = doRequest(t, router, http.MethodGet, "/get_pin/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetPinsReturnsEmptyArray(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, NewRouter(newFakeStore(), Config{}), http.MethodGet, "/get_pins", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("body = %q, want []", rec.Body.String())
	}
}

func TestAddRate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router := NewRouter(store, Config{})
	doRequest(t, router, http.MethodPost, "/add_pin", `{"title":"Louvre","x":2.3376,"y":48.8606}`)

	for _, rate := range []string{"5", "4"} {
		rec := doRequest(t, router, http.MethodPost, "/add_rate", `{"point_id":1,"rate":`+rate+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		if got := decodeBody[messageResponse](t, rec); got.Message != msgRatingAdded {
			t.Fatalf("message = %q, want %q", got.Message, msgRatingAdded)
		}
	}
	if got := store.pins[1].AverageRate; got != 4.5 {
		t.Fatalf("average = %v, want 4.5", got)
	}

	rec := doRequest(t, router, http.MethodPost, "/add_rate", `{"point_id":1,"rate":6}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	rec = doRequest(t, router, http.MethodPost, "/add_rate", `{"point_id":42,"rate":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("missing pin status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := decodeBody[errorResponse](t, rec); got.Error != apperrors.CodeConstraint {
		t.Fatalf("missing pin code = %q, want %q", got.Error, apperrors.CodeConstraint)
	}
}

func TestDeletePinIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router := NewRouter(store, Config{})
	doRequest(t, router, http.MethodPost, "/add_pin", `{"title":"gone","x":0,"y":0}`)

	for range 2 {
		rec := doRequest(t, router, http.MethodDelete, "/delete_pin/1", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
	}
	if _, ok := store.pins[1]; ok {
		t.Fatal("expected pin to be deleted")
	}
}

func TestStorageErrorsMapToStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unavailable", err: apperrors.New(apperrors.CodeStorageUnavailable, "db locked"), want: http.StatusServiceUnavailable},
		{name: "serialization", err: apperrors.New(apperrors.CodeSerialization, "bad row"), want: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.err = tt.err
			rec := doRequest(t, NewRouter(store, Config{}), http.MethodGet, "/get_pins", "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			got := decodeBody[errorResponse](t, rec)
			if got.Message == "" {
				t.Fatal("expected localized message")
			}
			if strings.Contains(got.Message, "db locked") || strings.Contains(got.Message, "boom") {
				t.Fatalf("message leaks internal cause: %q", got.Message)
			}
		})
	}
}

func TestErrorMessagesAreLocalized(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeStore(), Config{})
	req := httptest.NewRequest(http.MethodGet, "/get_pin/7", nil)
	req.Header.Set("Accept-Language", "pt-BR")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	got := decodeBody[errorResponse](t, rec)
	if got.Message != "O pin 7 não foi encontrado." {
		t.Fatalf("message = %q", got.Message)
	}
	if lang := rec.Header().Get("Content-Language"); lang != "pt-BR" {
		t.Fatalf("Content-Language = %q, want pt-BR", lang)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeStore(), Config{})
	if rec := doRequest(t, router, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := doRequest(t, router, http.MethodPut, "/get_pins", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRatingsRouteRequiresLister(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, NewRouter(newFakeStore(), Config{}), http.MethodGet, "/get_rates/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRouterAgainstSQLiteStore(t *testing.T) {
	t.Parallel()

	store, err := pinsqlite.Open(filepath.Join(t.TempDir(), "tourist.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	router := NewRouter(store, Config{})

	rec := doRequest(t, router, http.MethodPost, "/add_pin",
		`{"type":"museum","title":"Louvre","description":"Paris","x":2.3376,"y":48.8606}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add pin status = %d: %s", rec.Code, rec.Body.String())
	}
	id := decodeBody[addPinResponse](t, rec).ID
	target := "/get_pin/" + jsonNumber(id)

	for _, rate := range []string{"5", "4"} {
		rec = doRequest(t, router, http.MethodPost, "/add_rate", `{"point_id":`+jsonNumber(id)+`,"rate":`+rate+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("add rate status = %d: %s", rec.Code, rec.Body.String())
		}
	}
	if pin := decodeBody[storage.Pin](t, doRequest(t, router, http.MethodGet, target, "")); pin.AverageRate != 4.5 {
		t.Fatalf("average = %v, want 4.5", pin.AverageRate)
	}

	rec = doRequest(t, router, http.MethodGet, "/get_rates/"+jsonNumber(id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get rates status = %d", rec.Code)
	}
	if ratings := decodeBody[[]storage.Rating](t, rec); len(ratings) != 2 {
		t.Fatalf("ratings = %d, want 2", len(ratings))
	}

	if rec = doRequest(t, router, http.MethodDelete, "/delete_pin/"+jsonNumber(id), ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec = doRequest(t, router, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec = doRequest(t, router, http.MethodGet, "/get_rates/"+jsonNumber(id), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get rates of deleted pin status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func jsonNumber(v int64) string {
	out, _ := json.Marshal(v)
	return string(out)
}
