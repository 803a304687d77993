package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

// PostgresPayloadStore writes payloads to the database named by the job
// credentials, keeping one pool per target. Credentials without a host, or
// equal to the defaults, use the default pool.
type PostgresPayloadStore struct {
	defaultDB *sqlx.DB
	defaults  domain.DatabaseCredentials

	mu    sync.Mutex
	pools map[string]*sqlx.DB
	open  func(dsn string) (*sqlx.DB, error)
}

func NewPostgresPayloadStore(defaultDB *sqlx.DB, defaults domain.DatabaseCredentials) *PostgresPayloadStore {
	return &PostgresPayloadStore{
		defaultDB: defaultDB,
		defaults:  defaults,
		pools:     make(map[string]*sqlx.DB),
		open: func(dsn string) (*sqlx.DB, error) {
			return sqlx.Open("pgx", dsn)
		},
	}
}

func (s *PostgresPayloadStore) Save(ctx context.Context, creds domain.DatabaseCredentials, payload *Payload) error {
	db, err := s.dbFor(creds)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO imported_payloads (synchronization_id, table_name, checksum, size_bytes, payload, imported_at)
		VALUES (:synchronization_id, :table_name, :checksum, :size_bytes, :payload, :imported_at)
		ON CONFLICT (synchronization_id) DO UPDATE SET
			table_name = EXCLUDED.table_name,
			checksum = EXCLUDED.checksum,
			size_bytes = EXCLUDED.size_bytes,
			payload = EXCLUDED.payload,
			imported_at = EXCLUDED.imported_at`

	if _, err := db.NamedExecContext(ctx, query, payload); err != nil {
		return fmt.Errorf("payload store: failed to save payload: %w", err)
	}
	return nil
}

func (s *PostgresPayloadStore) Fetch(ctx context.Context, creds domain.DatabaseCredentials, syncID string) (*Payload, error) {
	db, err := s.dbFor(creds)
	if err != nil {
		return nil, err
	}
	var p Payload
	query := `SELECT synchronization_id, table_name, checksum, size_bytes, payload, imported_at
		FROM imported_payloads WHERE synchronization_id = $1`
	if err := db.GetContext(ctx, &p, query, syncID); err != nil {
		return nil, fmt.Errorf("payload store: failed to fetch payload: %w", err)
	}
	return &p, nil
}

func (s *PostgresPayloadStore) StoredSize(ctx context.Context, creds domain.DatabaseCredentials, syncID string) (int64, error) {
	db, err := s.dbFor(creds)
	if err != nil {
		return 0, err
	}
	var size int64
	err = db.GetContext(ctx, &size, `SELECT size_bytes FROM imported_payloads WHERE synchronization_id = $1`, syncID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("payload store: failed to read payload size: %w", err)
	}
	return size, nil
}

func (s *PostgresPayloadStore) dbFor(creds domain.DatabaseCredentials) (*sqlx.DB, error) {
	if creds.Host == "" || creds == s.defaults {
		return s.defaultDB, nil
	}
	if creds.SSLMode == "" {
		creds.SSLMode = s.defaults.SSLMode
	}
	dsn := creds.DSN()

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.pools[dsn]; ok {
		return db, nil
	}
	db, err := s.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("payload store: failed to open %s/%s: %w", creds.Host, creds.Database, err)
	}
	db.SetMaxOpenConns(5)
	s.pools[dsn] = db
	return db, nil
}

func (s *PostgresPayloadStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for dsn, db := range s.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.pools, dsn)
	}
	return firstErr
}
