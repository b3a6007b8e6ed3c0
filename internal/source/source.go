// Package source fetches CDR datasets from a remote call-detail table.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/config"
)

var (
	ErrNotConfigured = errors.New("remote query source not configured")
	ErrInvalidRange  = errors.New("invalid date range")
)

// DefaultLimit caps the rows a single query may return
const DefaultLimit = 100000

// Query selects calls in [From, To) with optional exact source and
// destination matches. A zero From or To leaves that side open.
type Query struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Source      string    `json:"src"`
	Destination string    `json:"dst"`
	Limit       int       `json:"limit"`
}

// Validate checks the range and applies the default limit
func (q *Query) Validate() error {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return ErrInvalidRange
	}
	if q.Limit <= 0 || q.Limit > DefaultLimit {
		q.Limit = DefaultLimit
	}
	return nil
}

// Source returns datasets in the remote superset schema
type Source interface {
	Fetch(ctx context.Context, q Query) (cdr.Dataset, error)
	Close() error
}

// NoopSource is used when no query driver is configured
type NoopSource struct{}

func NewNoopSource() *NoopSource { return &NoopSource{} }

func (NoopSource) Fetch(context.Context, Query) (cdr.Dataset, error) {
	return cdr.Dataset{}, ErrNotConfigured
}

func (NoopSource) Close() error { return nil }

// New creates the source selected by cfg.QueryDriver
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Source, error) {
	switch cfg.QueryDriver {
	case config.QueryDriverSQLite, config.QueryDriverPostgres:
		return Open(ctx, cfg.QueryDriver, cfg.QueryDSN, cfg.QueryTable, logger)
	default:
		logger.Info().Msg("remote query source disabled (QUERY_DRIVER=none)")
		return NewNoopSource(), nil
	}
}
