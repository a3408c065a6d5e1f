// Package store provides durable storage backends for LeadPipe.
//
// It persists one session row per phone number (upsert) and at most one lead row per
// phone number (insert-once). SQLite and PostgreSQL are supported, plus an in-memory
// implementation for tests and credential-less runs.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var (
	// ErrNotFound is returned when no row exists for the requested phone number.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateLead is returned when a lead already exists for the phone number.
	ErrDuplicateLead = errors.New("store: lead already exists")
)

// Store is the durable backing for sessions and leads.
type Store interface {
	GetSession(ctx context.Context, phone string) (*models.Session, error)
	SaveSession(ctx context.Context, s models.Session) error
	GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error)
	CreateLead(ctx context.Context, lead models.Lead) error
	ListLeads(ctx context.Context) ([]models.Lead, error)
	Close() error
}

// Opts holds configuration options for the durable store.
type Opts struct {
	DSN    string
	Driver string // "postgres" or "sqlite3"; detected from DSN when empty
}

// Option defines a configuration option for the store.
type Option func(*Opts)

// WithPostgresDSN selects PostgreSQL with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// WithSQLiteDSN selects SQLite with the given file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// libpq key=value form, e.g. "host=localhost dbname=leads".
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the store described by opts. With no DSN it returns an in-memory store.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDSNType(cfg.DSN)
	}
	if driver == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
