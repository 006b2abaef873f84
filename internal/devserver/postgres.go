package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/internal/metrics"
	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
)

// schema keeps the wire array as json (not jsonb) so opaque slots come
// back byte-for-byte.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	owner      TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	fields     JSON        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner, id)
)`

// PostgresStore keeps records in PostgreSQL, one row per record.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the database.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate creates the records table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	logging.Info("running migration", logging.String("table", "records"))
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Index(ctx context.Context, owner string) (map[string]string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("index", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM records WHERE owner = $1`, owner)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec models.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			logging.Warn("skipping undecodable record",
				logging.String("owner", owner),
				logging.String("id", id),
				logging.Err(err))
			continue
		}
		out[storePath(&rec)] = id
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, owner, id string) (*models.Record, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get", time.Since(start)) }()

	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT fields FROM records WHERE owner = $1 AND id = $2`, owner, id), id)
}

func (s *PostgresStore) Apply(ctx context.Context, owner string, updates []protocol.Mutation) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("apply", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	changes, err := applyBatch(updates, func(id string) (*models.Record, bool, error) {
		rec, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT fields FROM records WHERE owner = $1 AND id = $2 FOR UPDATE`, owner, id), id)
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return rec, true, nil
	})
	if err != nil {
		return err
	}

	for id, rec := range changes {
		if rec == nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM records WHERE owner = $1 AND id = $2`, owner, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (owner, id, fields) VALUES ($1, $2, $3)
			 ON CONFLICT (owner, id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = NOW()`,
			owner, id, string(raw)); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanRecord(row *sql.Row, id string) (*models.Record, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query record %s: %w", id, err)
	}
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}
