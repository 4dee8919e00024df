// Package storagetest provides a conformance suite every storage.PinStore
// backend must pass. Each subtest receives a fresh, empty store from the
// caller's factory so backends can be exercised in parallel.
package storagetest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/louisbranch/pinmap/internal/services/pins/storage"
)

// Factory opens an empty store for one subtest. Cleanup belongs to the factory.
type Factory func(t *testing.T) storage.PinStore

// RunConformance asserts the pin and rating invariants against stores built
// by newStore:
//
//   - coordinates outside [-180,180] x [-90,90] are rejected
//   - titles of 32 characters are accepted and 33 rejected
//   - rates outside 1..5 are rejected
//   - the average is the mean of every rating after a recompute
//   - deleting a pin removes its ratings and is idempotent
//   - lookups of absent pins report not found
func RunConformance(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("coordinate bounds", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		for _, pin := range []storage.NewPin{
			{Title: "sw", X: -180, Y: -90},
			{Title: "ne", X: 180, Y: 90},
		} {
			if _, err := store.InsertPin(ctx, pin); err != nil {
				t.Fatalf("insert %q: %v", pin.Title, err)
			}
		}
		for _, pin := range []storage.NewPin{
			{Title: "x", X: 180.5, Y: 0},
			{Title: "x", X: -181, Y: 0},
			{Title: "y", X: 0, Y: 90.01},
			{Title: "y", X: 0, Y: -95},
			{Title: "nan", X: math.NaN(), Y: 0},
		} {
			if _, err := store.InsertPin(ctx, pin); !errors.Is(err, storage.ErrValidation) {
				t.Fatalf("insert (%v, %v) error = %v, want validation", pin.X, pin.Y, err)
			}
		}
		pins, err := store.GetAllPins(ctx)
		if err != nil {
			t.Fatalf("list pins: %v", err)
		}
		if len(pins) != 2 {
			t.Fatalf("pins = %d, want 2", len(pins))
		}
	})

	t.Run("title length", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		id, err := store.InsertPin(ctx, storage.NewPin{Title: strings.Repeat("t", storage.MaxTitleLength)})
		if err != nil {
			t.Fatalf("insert 32-char title: %v", err)
		}
		if _, err := store.InsertPin(ctx, storage.NewPin{Title: strings.Repeat("ü", storage.MaxTitleLength)}); err != nil {
			t.Fatalf("insert 32-rune title: %v", err)
		}
		if _, err := store.InsertPin(ctx, storage.NewPin{Title: strings.Repeat("t", storage.MaxTitleLength+1)}); !errors.Is(err, storage.ErrValidation) {
			t.Fatalf("insert 33-char title error = %v, want validation", err)
		}
		got, err := store.GetPinByID(ctx, id)
		if err != nil {
			t.Fatalf("get pin: %v", err)
		}
		if len(got.Title) != storage.MaxTitleLength {
			t.Fatalf("title length = %d, want %d", len(got.Title), storage.MaxTitleLength)
		}
	})

	t.Run("rate range", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, storage.NewPin{Title: "rated"})
		for _, rate := range []int{0, 6, -3} {
			if err := store.InsertRating(ctx, id, rate); !errors.Is(err, storage.ErrValidation) {
				t.Fatalf("insert rating %d error = %v, want validation", rate, err)
			}
		}
		for rate := storage.MinRate; rate <= storage.MaxRate; rate++ {
			if err := store.InsertRating(ctx, id, rate); err != nil {
				t.Fatalf("insert rating %d: %v", rate, err)
			}
		}
	})

	t.Run("rating requires pin", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)

		err := store.InsertRating(context.Background(), 424242, 3)
		if !errors.Is(err, storage.ErrConstraint) {
			t.Fatalf("insert rating error = %v, want constraint", err)
		}
		if errors.Is(err, storage.ErrValidation) {
			t.Fatal("missing pin must not be reported as validation")
		}
	})

	t.Run("average recompute", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, storage.NewPin{Title: "avg"})
		if got := mustGet(t, store, id).AverageRate; got != 0 {
			t.Fatalf("initial average = %v, want 0", got)
		}
		// No ratings: the recompute leaves the average alone.
		if err := store.UpdateAverageRating(ctx, id); err != nil {
			t.Fatalf("update average without ratings: %v", err)
		}
		if got := mustGet(t, store, id).AverageRate; got != 0 {
			t.Fatalf("average without ratings = %v, want 0", got)
		}

		steps := []struct {
			rate int
			want float64
		}{
			{rate: 1, want: 1},
			{rate: 2, want: 1.5},
			{rate: 3, want: 2},
			{rate: 4, want: 2.5},
		}
		for _, step := range steps {
			if err := store.InsertRating(ctx, id, step.rate); err != nil {
				t.Fatalf("insert rating %d: %v", step.rate, err)
			}
			if err := store.UpdateAverageRating(ctx, id); err != nil {
				t.Fatalf("update average: %v", err)
			}
			if got := mustGet(t, store, id).AverageRate; math.Abs(got-step.want) > 1e-9 {
				t.Fatalf("average after %d = %v, want %v", step.rate, got, step.want)
			}
		}
	})

	t.Run("average of absent pin", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)

		if err := store.UpdateAverageRating(context.Background(), 99); err != nil {
			t.Fatalf("update average of absent pin: %v", err)
		}
	})

	t.Run("delete cascades and is idempotent", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		keep := mustInsert(t, store, storage.NewPin{Title: "keep"})
		drop := mustInsert(t, store, storage.NewPin{Title: "drop"})
		for _, id := range []int64{keep, drop} {
			if err := storage.SubmitRating(ctx, store, id, 4); err != nil {
				t.Fatalf("rate %d: %v", id, err)
			}
		}

		if err := store.DeletePin(ctx, drop); err != nil {
			t.Fatalf("delete pin: %v", err)
		}
		if err := store.DeletePin(ctx, drop); err != nil {
			t.Fatalf("delete pin again: %v", err)
		}
		if err := store.DeletePin(ctx, 123456); err != nil {
			t.Fatalf("delete absent pin: %v", err)
		}
		if _, err := store.GetPinByID(ctx, drop); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get deleted pin error = %v, want not found", err)
		}

		lister, ok := store.(storage.RatingLister)
		if !ok {
			return
		}
		ratings, err := lister.ListRatings(ctx, drop)
		if err != nil {
			t.Fatalf("list ratings: %v", err)
		}
		if len(ratings) != 0 {
			t.Fatalf("ratings of deleted pin = %d, want 0", len(ratings))
		}
		ratings, err = lister.ListRatings(ctx, keep)
		if err != nil {
			t.Fatalf("list ratings: %v", err)
		}
		if len(ratings) != 1 || ratings[0].Rate != 4 || ratings[0].PointID != keep {
			t.Fatalf("ratings of kept pin = %+v, want one rate 4", ratings)
		}
	})

	t.Run("lookup", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		pins, err := store.GetAllPins(ctx)
		if err != nil {
			t.Fatalf("list empty store: %v", err)
		}
		if pins == nil || len(pins) != 0 {
			t.Fatalf("pins = %#v, want empty non-nil slice", pins)
		}
		if _, err := store.GetPinByID(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get absent pin error = %v, want not found", err)
		}

		first := mustInsert(t, store, storage.NewPin{Title: "first"})
		second := mustInsert(t, store, storage.NewPin{Title: "second"})
		if second <= first {
			t.Fatalf("ids = %d, %d, want increasing", first, second)
		}
		pins, err = store.GetAllPins(ctx)
		if err != nil {
			t.Fatalf("list pins: %v", err)
		}
		if len(pins) != 2 || pins[0].ID != first || pins[1].ID != second {
			t.Fatalf("pins = %+v, want ids %d then %d", pins, first, second)
		}
	})

	t.Run("louvre scenario", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		input := storage.NewPin{
			Type:        "museum",
			Title:       "Louvre",
			Description: "art museum",
			X:           2.3376,
			Y:           48.8606,
		}
		id := mustInsert(t, store, input)

		pins, err := store.GetAllPins(ctx)
		if err != nil {
			t.Fatalf("list pins: %v", err)
		}
		want := storage.Pin{
			ID:          id,
			Type:        input.Type,
			Title:       input.Title,
			Description: input.Description,
			X:           input.X,
			Y:           input.Y,
		}
		if len(pins) != 1 || pins[0] != want {
			t.Fatalf("pins = %+v, want [%+v]", pins, want)
		}

		for _, step := range []struct {
			rate    int
			average float64
		}{
			{rate: 4, average: 4.0},
			{rate: 2, average: 3.0},
		} {
			if err := store.InsertRating(ctx, id, step.rate); err != nil {
				t.Fatalf("insert rating %d: %v", step.rate, err)
			}
			if err := store.UpdateAverageRating(ctx, id); err != nil {
				t.Fatalf("update average after %d: %v", step.rate, err)
			}
			if got := mustGet(t, store, id).AverageRate; got != step.average {
				t.Fatalf("average after %d = %v, want %v", step.rate, got, step.average)
			}
		}

		if err := store.DeletePin(ctx, id); err != nil {
			t.Fatalf("delete pin: %v", err)
		}
		if _, err := store.GetPinByID(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get deleted pin error = %v, want not found", err)
		}
		if err := storage.SubmitRating(ctx, store, id, 3); !errors.Is(err, storage.ErrConstraint) {
			t.Fatalf("rate deleted pin error = %v, want constraint", err)
		}
	})

	t.Run("concurrent ratings", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, storage.NewPin{Title: "busy"})
		const raters = 20
		var wg sync.WaitGroup
		errs := make(chan error, raters)
		for i := range raters {
			wg.Add(1)
			go func(rate int) {
				defer wg.Done()
				errs <- storage.SubmitRating(ctx, store, id, rate)
			}(i%storage.MaxRate + 1)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent rating: %v", err)
			}
		}

		// A final recompute makes the result independent of write ordering.
		if err := store.UpdateAverageRating(ctx, id); err != nil {
			t.Fatalf("update average: %v", err)
		}
		if got := mustGet(t, store, id).AverageRate; math.Abs(got-3) > 1e-9 {
			t.Fatalf("average = %v, want 3", got)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		store := newStore(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := store.GetAllPins(ctx); !errors.Is(err, storage.ErrUnavailable) {
			t.Fatalf("list with canceled context error = %v, want unavailable", err)
		}
	})
}

func mustInsert(t *testing.T, store storage.PinStore, pin storage.NewPin) int64 {
	t.Helper()
	id, err := store.InsertPin(context.Background(), pin)
	if err != nil {
		t.Fatalf("insert pin %q: %v", pin.Title, err)
	}
	return id
}

func mustGet(t *testing.T, store storage.PinStore, id int64) storage.Pin {
	t.Helper()
	pin, err := store.GetPinByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get pin %d: %v", id, err)
	}
	return pin
}
