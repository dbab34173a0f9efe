// Package sink writes canonical records to the store with insert-or-update
// on each table's natural key. Writing the same batch twice leaves the
// store unchanged.
package sink

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// ErrUnknownSymbol is reported for records whose symbol is not listed.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Observer receives write counts, normally the metrics recorder.
type Observer interface {
	RowsUpserted(table string, rows int)
}

// Sink is the only writer of the store.
type Sink struct {
	db       *database.DB
	symbols  *SymbolIndex
	observer Observer
	log      zerolog.Logger

	maxTries  uint
	retryWait time.Duration
}

// Option customises a Sink.
type Option func(*Sink)

// WithObserver reports every successful write to o.
func WithObserver(o Observer) Option {
	return func(s *Sink) { s.observer = o }
}

// WithRetry overrides the transient-error retry policy.
func WithRetry(maxTries uint, wait time.Duration) Option {
	return func(s *Sink) {
		s.maxTries = maxTries
		s.retryWait = wait
	}
}

// New creates a sink. Transient failures are retried 5 times, 1s apart.
func New(db *database.DB, log zerolog.Logger, opts ...Option) *Sink {
	s := &Sink{
		db:        db,
		symbols:   NewSymbolIndex(db, 10*time.Minute),
		log:       log.With().Str("component", "sink").Logger(),
		maxTries:  5,
		retryWait: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Symbols exposes the sink's symbol index to readers that need ids.
func (s *Sink) Symbols() *SymbolIndex {
	return s.symbols
}

// Upsert writes records into their table and returns the number of rows
// sent. Symbol-keyed records are bound to their listing id first; records
// with an unlisted symbol are dropped with a warning. Each chunk of at most
// database.BatchSize rows is one statement and is durable before the next
// is sent.
func Upsert[R domain.Record](ctx context.Context, s *Sink, records []R) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	spec := records[0].Table()
	log := s.log.With().Str("table", spec.Name).Logger()

	rows := records
	if spec.SymbolKeyed {
		bound, err := bindSymbols(ctx, s, spec, records)
		if err != nil {
			return 0, err
		}
		rows = bound
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query := s.db.Dialect().UpsertSQL(spec)
	size := database.BatchSize(spec)
	written := 0
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		if err := s.exec(ctx, query, chunk); err != nil {
			return written, fmt.Errorf("failed to upsert %d rows into %s: %w", len(chunk), spec.Name, err)
		}
		written += len(chunk)
	}

	if spec.Name == domain.TableListedEquities.Name {
		s.symbols.Invalidate()
	}
	if s.observer != nil {
		s.observer.RowsUpserted(spec.Name, written)
	}
	log.Debug().Int("rows", written).Msg("Upserted batch")
	return written, nil
}

// bindSymbols resolves symbol codes against the listing snapshot taken at
// batch start and returns a copy holding only the listed records.
func bindSymbols[R domain.Record](ctx context.Context, s *Sink, spec domain.TableSpec, records []R) ([]R, error) {
	ids, err := s.symbols.Lookup(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]R, 0, len(records))
	unknown := map[string]int{}
	for i := range records {
		rec := records[i]
		bound, ok := any(&rec).(domain.SymbolBound)
		if !ok {
			return nil, fmt.Errorf("%s is symbol keyed but %T carries no symbol", spec.Name, rec)
		}
		id, ok := ids[bound.SymbolCode()]
		if !ok {
			unknown[bound.SymbolCode()]++
			continue
		}
		bound.BindSymbolID(id)
		out = append(out, rec)
	}

	for code, n := range unknown {
		s.log.Warn().
			Str("table", spec.Name).
			Str("symbol", code).
			Int("rows", n).
			Err(ErrUnknownSymbol).
			Msg("Dropping rows for unlisted symbol")
	}
	return out, nil
}

func (s *Sink) exec(ctx context.Context, query string, chunk any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := s.db.Conn().NamedExecContext(ctx, query, chunk)
		if err != nil && !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryWait)),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn().Err(err).Dur("retry_in", next).Msg("Transient store error, retrying")
		}),
	)
	return err
}

// IsTransient reports whether a store error is worth retrying: lost
// connections, network failures and lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, 1213, 2006, 2013: // lock wait timeout, deadlock, server gone, lost connection
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
