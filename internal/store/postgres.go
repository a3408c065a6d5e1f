package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/LeadPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, phone string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE phone_number = $1`, phone)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get session for %s: %w", phone, err)
	}
	return sess, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess models.Session) error {
	data, err := encodeSessionData(sess.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3::jsonb, $4, $5)
		 ON CONFLICT (phone_number) DO UPDATE SET step = EXCLUDED.step, data = EXCLUDED.data, last_active = EXCLUDED.last_active`,
		sess.PhoneNumber, string(sess.Step), data, sess.CreatedAt, sess.LastActive)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "phone", sess.PhoneNumber)
		return fmt.Errorf("failed to save session for %s: %w", sess.PhoneNumber, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "phone", sess.PhoneNumber, "step", sess.Step)
	return nil
}

func (s *PostgresStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE phone_number = $1`, phone)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead for %s: %w", phone, err)
	}
	return lead, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead models.Lead) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (phone_number) DO NOTHING`,
		leadArgs(lead)...)
	if err != nil {
		slog.Error("PostgresStore CreateLead failed", "error", err, "phone", lead.PhoneNumber)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.PhoneNumber, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateLead
	}
	slog.Debug("PostgresStore CreateLead succeeded", "phone", lead.PhoneNumber, "id", lead.ID)
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	return scanLeads(rows)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
