package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/lib/pq"
)

// PostgresStore keeps each collection in its own table of
// (id TEXT PRIMARY KEY, item JSONB). Filters are evaluated in memory after
// the scan so every backend shares the same predicate semantics.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-based store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres opens and verifies a PostgreSQL connection pool
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsurePostgresTables creates the backing table of every collection if it is missing
func EnsurePostgresTables(ctx context.Context, db *sql.DB, tables ...string) error {
	for _, table := range tables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			item JSONB NOT NULL
		)`, pq.QuoteIdentifier(table))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

// Put upserts an item
func (s *PostgresStore) Put(ctx context.Context, table string, item Item) error {
	id, err := ItemID(item)
	if err != nil {
		return err
	}

	data, err := encodeItem(item)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, item) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET item = EXCLUDED.item`,
		pq.QuoteIdentifier(table)),
		id, data,
	)
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// Get retrieves an item by id
func (s *PostgresStore) Get(ctx context.Context, table, id string) (Item, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT item FROM %s WHERE id = $1`, pq.QuoteIdentifier(table)),
		id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return decodeItem(data)
}

// Update locks the row, checks the condition and writes the result in one transaction
func (s *PostgresStore) Update(ctx context.Context, table, id string, m Mutation) (Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := pq.QuoteIdentifier(table)

	var current Item
	var data []byte
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT item FROM %s WHERE id = $1 FOR UPDATE`, quoted),
		id,
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read item: %w", err)
	default:
		if current, err = decodeItem(data); err != nil {
			return nil, err
		}
	}

	next, err := applyMutation(id, current, m)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeItem(next)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, item) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET item = EXCLUDED.item`, quoted),
		id, encoded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to write item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return next, nil
}

// Delete removes an item by id
func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pq.QuoteIdentifier(table)),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// Scan reads every row of the table and keeps the ones matching filter
func (s *PostgresStore) Scan(ctx context.Context, table string, filter Filter) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT item FROM %s`, pq.QuoteIdentifier(table)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		item, err := decodeItem(data)
		if err != nil {
			return nil, err
		}
		if Match(filter, item) {
			items = append(items, item)
		}
	}
	return items, rows.Err()
}

// encodeItem converts attribute values to plain JSON; NULL becomes null and
// absent attributes stay absent.
func encodeItem(item Item) ([]byte, error) {
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(item, &plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return json.Marshal(plain)
}

func decodeItem(data []byte) (Item, error) {
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	item, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return item, nil
}
