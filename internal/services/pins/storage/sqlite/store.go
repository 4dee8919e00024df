// Package sqlite provides the SQLite-backed pin store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/platform/storage/sqliteschema"
	"github.com/louisbranch/pinmap/internal/platform/timeouts"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	"github.com/louisbranch/pinmap/internal/services/pins/storage/sqlite/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// DefaultMaxOpenConns bounds the pool when no option overrides it.
const DefaultMaxOpenConns = 4

var tracer = otel.Tracer("github.com/louisbranch/pinmap/internal/services/pins/storage/sqlite")

// Store persists pins and ratings in SQLite.
type Store struct {
	sqlDB   *sql.DB
	timeout time.Duration
}

type options struct {
	maxOpenConns int
	timeout      time.Duration
}

// Option configures Open.
type Option func(*options)

// WithMaxOpenConns bounds concurrent connections; callers beyond the bound
// wait for a free connection until their operation times out.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithOperationTimeout caps each store call.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Open creates the database file when needed, verifies foreign keys are
// enforced, and creates the pins and rates tables if either is missing.
// Calling it again on an initialized file is a no-op beyond opening.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodeStorageUnavailable, "storage path is required")
	}
	cfg := options{maxOpenConns: DefaultMaxOpenConns, timeout: timeouts.StorageOperation}
	for _, opt := range opts {
		opt(&cfg)
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create storage dir", err)
		}
	}
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open sqlite db", err)
	}
	sqlDB.SetMaxOpenConns(cfg.maxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.maxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.StorageConnect)
	defer cancel()
	if err := initialize(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{sqlDB: sqlDB, timeout: cfg.timeout}, nil
}

func initialize(ctx context.Context, sqlDB *sql.DB) error {
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping sqlite db", err)
	}
	var foreignKeys int
	if err := sqlDB.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&foreignKeys); err != nil {
		return unavailable("read foreign_keys pragma", err)
	}
	if foreignKeys != 1 {
		return apperrors.New(apperrors.CodeStorageUnavailable, "sqlite foreign keys are not enforced")
	}
	if _, err := sqliteschema.Ensure(ctx, sqlDB, schema.FS, ".", "pins", "rates"); err != nil {
		return unavailable("create schema", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InsertPin validates and stores a new pin with a zero average and returns its id.
func (s *Store) InsertPin(ctx context.Context, pin storage.NewPin) (id int64, err error) {
	ctx, end, err := s.begin(ctx, "InsertPin")
	if err != nil {
		return 0, err
	}
	defer func() { end(err) }()

	if err := storage.ValidateNewPin(pin); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pins (type, title, description, x, y, average_rate) VALUES (?, ?, ?, ?, ?, 0)`,
		pin.Type,
		pin.Title,
		pin.Description,
		pin.X,
		pin.Y,
	)
	if err != nil {
		return 0, mapError("insert pin", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, mapError("read pin id", err)
	}
	return id, nil
}

// GetAllPins returns every pin ordered by id.
func (s *Store) GetAllPins(ctx context.Context) (pins []storage.Pin, err error) {
	ctx, end, err := s.begin(ctx, "GetAllPins")
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, type, title, description, x, y, average_rate FROM pins ORDER BY id ASC`,
	)
	if err != nil {
		return nil, mapError("list pins", err)
	}
	defer rows.Close()

	pins = make([]storage.Pin, 0)
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate pins", err)
	}
	return pins, nil
}

// GetPinByID returns one pin or a not-found error.
func (s *Store) GetPinByID(ctx context.Context, id int64) (pin storage.Pin, err error) {
	ctx, end, err := s.begin(ctx, "GetPinByID", attribute.Int64("pin.id", id))
	if err != nil {
		return storage.Pin{}, err
	}
	defer func() { end(err) }()

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, type, title, description, x, y, average_rate FROM pins WHERE id = ?`,
		id,
	)
	pin, err = scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Pin{}, storage.NotFound(id)
	}
	if err != nil {
		return storage.Pin{}, err
	}
	return pin, nil
}

// InsertRating stores one rating. A missing pin fails the foreign key check.
func (s *Store) InsertRating(ctx context.Context, pointID int64, rate int) (err error) {
	ctx, end, err := s.begin(ctx, "InsertRating", attribute.Int64("pin.id", pointID))
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	if err := storage.ValidateRate(rate); err != nil {
		return err
	}
	return insertRating(ctx, s.sqlDB, pointID, rate)
}

// UpdateAverageRating recomputes the pin average from all of its ratings.
// Pins without ratings keep their current average; an absent pin is not an error.
func (s *Store) UpdateAverageRating(ctx context.Context, pointID int64) (err error) {
	ctx, end, err := s.begin(ctx, "UpdateAverageRating", attribute.Int64("pin.id", pointID))
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	return updateAverage(ctx, s.sqlDB, pointID)
}

// RatePin inserts a rating and recomputes the average in one transaction.
func (s *Store) RatePin(ctx context.Context, pointID int64, rate int) (err error) {
	ctx, end, err := s.begin(ctx, "RatePin", attribute.Int64("pin.id", pointID))
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	if err := storage.ValidateRate(rate); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin rating transaction", err)
	}
	if err := insertRating(ctx, tx, pointID, rate); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := updateAverage(ctx, tx, pointID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit rating transaction", err)
	}
	return nil
}

// ListRatings returns the ratings of one pin ordered by id.
func (s *Store) ListRatings(ctx context.Context, pointID int64) (ratings []storage.Rating, err error) {
	ctx, end, err := s.begin(ctx, "ListRatings", attribute.Int64("pin.id", pointID))
	if err != nil {
		return nil, err
	}
	defer func() { end(err) }()

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, point_id, rate FROM rates WHERE point_id = ? ORDER BY id ASC`,
		pointID,
	)
	if err != nil {
		return nil, mapError("list ratings", err)
	}
	defer rows.Close()

	ratings = make([]storage.Rating, 0)
	for rows.Next() {
		var rating storage.Rating
		if err := rows.Scan(&rating.ID, &rating.PointID, &rating.Rate); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSerialization, "scan rating", err)
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate ratings", err)
	}
	return ratings, nil
}

// DeletePin removes a pin and, through the cascade, its ratings.
// Deleting an absent id succeeds.
func (s *Store) DeletePin(ctx context.Context, id int64) (err error) {
	ctx, end, err := s.begin(ctx, "DeletePin", attribute.Int64("pin.id", id))
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pins WHERE id = ?`, id); err != nil {
		return mapError("delete pin", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRating(ctx context.Context, db execer, pointID int64, rate int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO rates (point_id, rate) VALUES (?, ?)`, pointID, rate)
	if err == nil {
		return nil
	}
	if isForeignKeyViolation(err) {
		return storage.MissingPin(pointID, err)
	}
	return mapError("insert rating", err)
}

func updateAverage(ctx context.Context, db execer, pointID int64) error {
	_, err := db.ExecContext(
		ctx,
		`UPDATE pins
		 SET average_rate = (SELECT AVG(rate) FROM rates WHERE point_id = ?)
		 WHERE id = ? AND EXISTS (SELECT 1 FROM rates WHERE point_id = ?)`,
		pointID,
		pointID,
		pointID,
	)
	if err != nil {
		return mapError("update average rating", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPin(row rowScanner) (storage.Pin, error) {
	var pin storage.Pin
	var average sql.NullFloat64
	if err := row.Scan(&pin.ID, &pin.Type, &pin.Title, &pin.Description, &pin.X, &pin.Y, &average); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Pin{}, err
		}
		if isContextError(err) {
			return storage.Pin{}, mapError("scan pin", err)
		}
		return storage.Pin{}, apperrors.Wrap(apperrors.CodeSerialization, "scan pin", err)
	}
	if !average.Valid {
		return storage.Pin{}, apperrors.Newf(apperrors.CodeSerialization, "pin %d has no average rate", pin.ID)
	}
	if err := storage.CheckAverage(pin.ID, average.Float64); err != nil {
		return storage.Pin{}, err
	}
	pin.AverageRate = average.Float64
	return pin, nil
}

// begin applies the operation timeout and opens a span. The returned func
// records the final error and ends both.
func (s *Store) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error), error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, mapError(op, err)
	}
	if s == nil || s.sqlDB == nil {
		return ctx, nil, apperrors.New(apperrors.CodeStorageUnavailable, "storage is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, span := tracer.Start(ctx, "pins.sqlite."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("db.system", "sqlite"))...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, string(apperrors.CodeOf(err)))
		}
		span.End()
		cancel()
	}, nil
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if isContextError(err) {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, op+": operation timed out", err)
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return apperrors.Wrap(apperrors.CodeValidation, op+": check constraint failed", err)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return apperrors.Wrap(apperrors.CodeConstraint, op+": foreign key constraint failed", err)
		}
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeStorageUnavailable, op, err)
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

var (
	_ storage.PinStore     = (*Store)(nil)
	_ storage.AtomicRater  = (*Store)(nil)
	_ storage.RatingLister = (*Store)(nil)
)
