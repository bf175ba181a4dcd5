package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS capture_cycles (
	session   UUID        NOT NULL,
	idx       INTEGER     NOT NULL,
	name      TEXT        NOT NULL,
	paired    BOOLEAN     NOT NULL,
	shots     JSONB       NOT NULL,
	captured  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session, idx)
)`

// Postgres stores entries in the capture_cycles table
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the table if needed
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect catalog database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create capture_cycles: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Record implements Store.  A repeated (session, index) overwrites.
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	shots, err := json.Marshal(e.Shots)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO capture_cycles (session, idx, name, paired, shots, captured)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session, idx) DO UPDATE SET
			name=EXCLUDED.name, paired=EXCLUDED.paired,
			shots=EXCLUDED.shots, captured=EXCLUDED.captured`
	_, err = p.pool.Exec(ctx, query, e.Session, e.Index, e.Name, e.Paired, shots, e.Time)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

var _ Sessions = (*Postgres)(nil)

// Session returns the entries of one session ordered by index
func (p *Postgres) Session(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT session, idx, name, paired, shots, captured
		FROM capture_cycles WHERE session=$1 ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			shots []byte
		)
		if err := rows.Scan(&e.Session, &e.Index, &e.Name, &e.Paired, &shots, &e.Time); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if err := json.Unmarshal(shots, &e.Shots); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Store
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
