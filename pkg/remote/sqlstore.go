package remote

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore persists snapshots through database/sql, so any driver works.
// Init creates the table, or provision it yourself with this shape:
//
//	CREATE TABLE loom_sessions (
//	    id         VARCHAR(64) PRIMARY KEY,
//	    data       BYTEA NOT NULL,
//	    expires_at TIMESTAMP WITH TIME ZONE NOT NULL
//	);
//	CREATE INDEX idx_loom_sessions_expires ON loom_sessions(expires_at);
type SQLStore struct {
	db      *sql.DB
	table   string
	dialect SQLDialect
}

// SQLDialect selects placeholder and upsert syntax.
type SQLDialect int

const (
	DialectPostgres SQLDialect = iota
	DialectMySQL
	DialectSQLite
)

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*SQLStore)

// WithSQLTable overrides the default "loom_sessions" table name.
func WithSQLTable(name string) SQLStoreOption {
	return func(s *SQLStore) { s.table = name }
}

// WithSQLDialect selects the SQL dialect. Default is Postgres.
func WithSQLDialect(d SQLDialect) SQLStoreOption {
	return func(s *SQLStore) { s.dialect = d }
}

// NewSQLStore wraps db as a SnapshotStore. The caller owns db's lifecycle;
// Close here does not close it.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{db: db, table: "loom_sessions", dialect: DialectPostgres}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the snapshot table and its expiry index if they do not
// already exist.
func (s *SQLStore) Init(ctx context.Context) error {
	blob := "BYTEA"
	ts := "TIMESTAMP WITH TIME ZONE"
	switch s.dialect {
	case DialectMySQL:
		blob, ts = "BLOB", "DATETIME"
	case DialectSQLite:
		blob, ts = "BLOB", "TIMESTAMP"
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         VARCHAR(64) PRIMARY KEY,
		data       %s NOT NULL,
		expires_at %s NOT NULL
	)`, s.table, blob, ts)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at)",
		s.table, s.table)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("index %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	var query string
	switch s.dialect {
	case DialectPostgres:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				expires_at = EXCLUDED.expires_at`, s.table)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				expires_at = VALUES(expires_at)`, s.table)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (id, data, expires_at)
			VALUES (?, ?, ?)`, s.table)
	}
	_, err := s.db.ExecContext(ctx, query, sessionID, data, expiresAt)
	if err != nil {
		return fmt.Errorf("remote: save snapshot: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE id = %s AND expires_at > %s`,
		s.table, s.placeholder(1), s.placeholder(2))
	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, time.Now()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote: load snapshot: %w", err)
	}
	return data, nil
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.table, s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("remote: delete snapshot: %w", err)
	}
	return nil
}

// DeleteExpired clears snapshots whose resume window has passed. Run it
// periodically; nothing else prunes the table.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, s.table, s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("remote: delete expired snapshots: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Close() error { return nil }

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
