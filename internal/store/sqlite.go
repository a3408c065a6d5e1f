package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/BTreeMap/LeadPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if path := sqliteFilePath(dsn); path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One writer avoids "database is locked" under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// sqliteFilePath extracts the file path from a plain path or a file: URI.
// In-memory databases return "".
func sqliteFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i != -1 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func (s *SQLiteStore) GetSession(ctx context.Context, phone string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE phone_number = ?`, phone)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get session for %s: %w", phone, err)
	}
	return sess, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess models.Session) error {
	data, err := encodeSessionData(sess.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		sess.PhoneNumber, string(sess.Step), data, sess.CreatedAt, sess.LastActive)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "phone", sess.PhoneNumber)
		return fmt.Errorf("failed to save session for %s: %w", sess.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "phone", sess.PhoneNumber, "step", sess.Step)
	return nil
}

func (s *SQLiteStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE phone_number = ?`, phone)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead for %s: %w", phone, err)
	}
	return lead, nil
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead models.Lead) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		leadArgs(lead)...)
	if err != nil {
		slog.Error("SQLiteStore CreateLead failed", "error", err, "phone", lead.PhoneNumber)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.PhoneNumber, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateLead
	}
	slog.Debug("SQLiteStore CreateLead succeeded", "phone", lead.PhoneNumber, "id", lead.ID)
	return nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	return scanLeads(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
