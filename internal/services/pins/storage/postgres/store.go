// Package postgres provides a PostgreSQL-backed pin store over the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/platform/timeouts"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	"github.com/louisbranch/pinmap/internal/services/pins/storage/postgres/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxOpenConns bounds the pool when no option overrides it.
const DefaultMaxOpenConns = 4

// SQLSTATE codes mapped to domain error kinds.
const (
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

var tracer = otel.Tracer("github.com/louisbranch/pinmap/internal/services/pins/storage/postgres")

// Store persists pins and ratings in PostgreSQL.
type Store struct {
	sqlDB   *sql.DB
	timeout time.Duration
}

type options struct {
	maxOpenConns int
	timeout      time.Duration
	searchPath   string
}

// Option configures Open.
type Option func(*options)

// WithMaxOpenConns bounds concurrent connections.
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

// WithSearchPath places the tables in the given schema.
func WithSearchPath(schemaName string) Option {
	return func(o *options) {
		o.searchPath = strings.TrimSpace(schemaName)
	}
}

// Open connects to dsn and creates the pins and rates tables if either is missing.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, apperrors.New(apperrors.CodeStorageUnavailable, "postgres dsn is required")
	}
	cfg := options{maxOpenConns: DefaultMaxOpenConns, timeout: timeouts.StorageOperation}
	for _, opt := range opts {
		opt(&cfg)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable("parse postgres dsn", err)
	}
	if cfg.searchPath != "" {
		connConfig.RuntimeParams["search_path"] = cfg.searchPath
	}
	sqlDB := stdlib.OpenDB(*connConfig)
	sqlDB.SetMaxOpenConns(cfg.maxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.maxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, timeouts.StorageConnect)
	defer cancel()
	if err := initialize(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{sqlDB: sqlDB, timeout: cfg.timeout}, nil
}

func initialize(ctx context.Context, sqlDB *sql.DB) error {
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	var present bool
	err := sqlDB.QueryRowContext(
		ctx,
		`SELECT to_regclass('pins') IS NOT NULL AND to_regclass('rates') IS NOT NULL`,
	).Scan(&present)
	if err != nil {
		return unavailable("check schema", err)
	}
	if present {
		return nil
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin schema transaction", err)
	}
	for _, stmt := range strings.Split(schema.DDL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return unavailable("create schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit schema", err)
	}
	return nil
}

// Close closes the connection pool.
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
	err = s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO pins (type, title, description, x, y, average_rate)
		 VALUES ($1, $2, $3, $4, $5, 0)
		 RETURNING id`,
		pin.Type,
		pin.Title,
		pin.Description,
		pin.X,
		pin.Y,
	).Scan(&id)
	if err != nil {
		return 0, mapError("insert pin", err)
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
		`SELECT id, type, title, description, x, y, average_rate FROM pins WHERE id = $1`,
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
func (s *Store) UpdateAverageRating(ctx context.Context, pointID int64) (err error) {
	ctx, end, err := s.begin(ctx, "UpdateAverageRating", attribute.Int64("pin.id", pointID))
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	return updateAverage(ctx, s.sqlDB, pointID)
}

// RatePin locks the pin row, inserts a rating, and recomputes the average in
// one transaction so concurrent raters never publish a stale mean.
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
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM pins WHERE id = $1 FOR UPDATE`, pointID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.MissingPin(pointID, err)
	}
	if err != nil {
		return mapError("lock pin", err)
	}
	if err = insertRating(ctx, tx, pointID, rate); err != nil {
		return err
	}
	if err = updateAverage(ctx, tx, pointID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
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
		`SELECT id, point_id, rate FROM rates WHERE point_id = $1 ORDER BY id ASC`,
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

// DeletePin removes a pin and its ratings. Deleting an absent id succeeds.
func (s *Store) DeletePin(ctx context.Context, id int64) (err error) {
	ctx, end, err := s.begin(ctx, "DeletePin", attribute.Int64("pin.id", id))
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pins WHERE id = $1`, id); err != nil {
		return mapError("delete pin", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRating(ctx context.Context, db execer, pointID int64, rate int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO rates (point_id, rate) VALUES ($1, $2)`, pointID, rate)
	if err == nil {
		return nil
	}
	if pgCode(err) == codeForeignKeyViolation {
		return storage.MissingPin(pointID, err)
	}
	return mapError("insert rating", err)
}

func updateAverage(ctx context.Context, db execer, pointID int64) error {
	_, err := db.ExecContext(
		ctx,
		`UPDATE pins
		 SET average_rate = (SELECT AVG(rate) FROM rates WHERE point_id = $1)
		 WHERE id = $1 AND EXISTS (SELECT 1 FROM rates WHERE point_id = $1)`,
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
		var pgErr *pgconn.PgError
		if isContextError(err) || errors.As(err, &pgErr) {
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

func (s *Store) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error), error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, mapError(op, err)
	}
	if s == nil || s.sqlDB == nil {
		return ctx, nil, apperrors.New(apperrors.CodeStorageUnavailable, "storage is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, span := tracer.Start(ctx, "pins.postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("db.system", "postgresql"))...),
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
	switch pgCode(err) {
	case codeCheckViolation, codeNotNullViolation:
		return apperrors.Wrap(apperrors.CodeValidation, op+": check constraint failed", err)
	case codeForeignKeyViolation:
		return apperrors.Wrap(apperrors.CodeConstraint, op+": foreign key constraint failed", err)
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeStorageUnavailable, op, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

var (
	_ storage.PinStore     = (*Store)(nil)
	_ storage.AtomicRater  = (*Store)(nil)
	_ storage.RatingLister = (*Store)(nil)
)
