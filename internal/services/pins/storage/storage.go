// Package storage defines persistence contracts for pins and their ratings.
//
// Request layers (HTTP, MCP) depend only on PinStore; concrete engines live in
// the sqlite and postgres subpackages.
package storage

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
)

// Invariant bounds shared by every backend and mirrored in the schema.
const (
	MaxTitleLength = 32
	MinLongitude   = -180.0
	MaxLongitude   = 180.0
	MinLatitude    = -90.0
	MaxLatitude    = 90.0
	MinRate        = 1
	MaxRate        = 5
)

var (
	// ErrNotFound matches any error reporting a missing pin.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
	// ErrValidation matches any invariant violation.
	ErrValidation = apperrors.New(apperrors.CodeValidation, "validation failed")
	// ErrConstraint matches any referential constraint failure.
	ErrConstraint = apperrors.New(apperrors.CodeConstraint, "constraint failed")
	// ErrUnavailable matches any failure to open or reach storage.
	ErrUnavailable = apperrors.New(apperrors.CodeStorageUnavailable, "storage unavailable")
	// ErrSerialization matches malformed persisted data.
	ErrSerialization = apperrors.New(apperrors.CodeSerialization, "malformed stored data")
)

// Pin is one stored point of interest.
type Pin struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	AverageRate float64 `json:"average_rate"`
}

// NewPin carries the client-supplied fields of a pin to insert.
type NewPin struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// Rating is one 1..5 score attached to a pin.
type Rating struct {
	ID      int64 `json:"id"`
	PointID int64 `json:"point_id"`
	Rate    int   `json:"rate"`
}

// PinStore persists pins and ratings.
type PinStore interface {
	InsertPin(ctx context.Context, pin NewPin) (int64, error)
	GetAllPins(ctx context.Context) ([]Pin, error)
	GetPinByID(ctx context.Context, id int64) (Pin, error)
	InsertRating(ctx context.Context, pointID int64, rate int) error
	UpdateAverageRating(ctx context.Context, pointID int64) error
	DeletePin(ctx context.Context, id int64) error
}

// AtomicRater is implemented by backends that can insert a rating and
// recompute the pin average in one transaction.
type AtomicRater interface {
	RatePin(ctx context.Context, pointID int64, rate int) error
}

// RatingLister is implemented by backends that can list the ratings of a pin.
type RatingLister interface {
	ListRatings(ctx context.Context, pointID int64) ([]Rating, error)
}

// SubmitRating records a rating and refreshes the pin average, atomically
// when the backend supports it.
func SubmitRating(ctx context.Context, store PinStore, pointID int64, rate int) error {
	if store == nil {
		return apperrors.New(apperrors.CodeStorageUnavailable, "pin store is not configured")
	}
	if rater, ok := store.(AtomicRater); ok {
		return rater.RatePin(ctx, pointID, rate)
	}
	if err := store.InsertRating(ctx, pointID, rate); err != nil {
		return err
	}
	return store.UpdateAverageRating(ctx, pointID)
}

// ValidateNewPin checks the pin invariants before any row is written.
func ValidateNewPin(pin NewPin) error {
	if n := utf8.RuneCountInString(pin.Title); n > MaxTitleLength {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("title must be at most %d characters, got %d", MaxTitleLength, n),
			map[string]string{"Field": "title", "Max": strconv.Itoa(MaxTitleLength)})
	}
	if math.IsNaN(pin.X) || pin.X < MinLongitude || pin.X > MaxLongitude {
		return rangeError("x", pin.X, MinLongitude, MaxLongitude)
	}
	if math.IsNaN(pin.Y) || pin.Y < MinLatitude || pin.Y > MaxLatitude {
		return rangeError("y", pin.Y, MinLatitude, MaxLatitude)
	}
	return nil
}

// ValidateRate checks that rate is within [MinRate, MaxRate].
func ValidateRate(rate int) error {
	if rate < MinRate || rate > MaxRate {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("rate must be between %d and %d, got %d", MinRate, MaxRate, rate),
			map[string]string{"Field": "rate", "Min": strconv.Itoa(MinRate), "Max": strconv.Itoa(MaxRate)})
	}
	return nil
}

// NotFound returns the not-found error for a pin id.
func NotFound(id int64) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("pin %d not found", id),
		map[string]string{"ID": strconv.FormatInt(id, 10)})
}

// MissingPin returns the constraint error for a rating whose pin is absent.
func MissingPin(pointID int64, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeConstraint,
		fmt.Sprintf("pin %d does not exist", pointID),
		map[string]string{"PointID": strconv.FormatInt(pointID, 10)},
		cause)
}

// CheckAverage rejects averages that cannot come from 1..5 ratings.
func CheckAverage(id int64, average float64) error {
	if math.IsNaN(average) || math.IsInf(average, 0) || average < 0 || average > MaxRate {
		return apperrors.Newf(apperrors.CodeSerialization,
			"pin %d has malformed average rate %v", id, average)
	}
	return nil
}

func rangeError(field string, value, lo, hi float64) error {
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return apperrors.WithMetadata(apperrors.CodeValidation,
		fmt.Sprintf("%s must be between %s and %s, got %s", field, format(lo), format(hi), format(value)),
		map[string]string{"Field": field, "Min": format(lo), "Max": format(hi)})
}
