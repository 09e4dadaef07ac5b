package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const intentColumns = `id, type, target::text AS target, created_at, retry_count, last_error`

// Postgres stores intents in a shared database, for deployments running several workers
// against one mailbox.
type Postgres struct {
	dsn string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewPostgres(dsn string) *Postgres {
	return &Postgres{dsn: dsn}
}

func (p *Postgres) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging postgres: %w", err)
	}
	if err := runPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	p.pool = pool
	return nil
}

func runPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	currentVersion := 0

	var exists bool
	if err := pool.QueryRow(ctx,
		"SELECT to_regclass('inboxsweep_schema_version') IS NOT NULL").Scan(&exists); err != nil {
		return fmt.Errorf("checking schema version table: %w", err)
	}
	if exists {
		if err := pool.QueryRow(ctx,
			"SELECT COALESCE(MAX(version), 0) FROM inboxsweep_schema_version").Scan(&currentVersion); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range postgresMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (p *Postgres) conn() (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		return nil, errors.New("postgres store is not initialized")
	}
	return p.pool, nil
}

func (p *Postgres) Add(ctx context.Context, intent action.Intent) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	row, err := toRow(intent)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO inboxsweep_intents (id, type, target, created_at, retry_count, last_error)
		VALUES ($1, $2, $3::text::jsonb, $4, $5, $6)`,
		row.ID, row.Type, row.Target, row.CreatedAt, row.RetryCount, row.LastError)
	if err != nil {
		return fmt.Errorf("inserting intent: %w", err)
	}
	return nil
}

func (p *Postgres) GetAll(ctx context.Context) ([]action.Intent, error) {
	pool, err := p.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT `+intentColumns+` FROM inboxsweep_intents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing intents: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[intentRow])
	if err != nil {
		return nil, fmt.Errorf("scanning intents: %w", err)
	}

	intents := make([]action.Intent, 0, len(records))
	for _, r := range records {
		intent, err := r.intent()
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (action.Intent, bool, error) {
	pool, err := p.conn()
	if err != nil {
		return action.Intent{}, false, err
	}
	rows, err := pool.Query(ctx, `SELECT `+intentColumns+` FROM inboxsweep_intents WHERE id = $1`, id)
	if err != nil {
		return action.Intent{}, false, fmt.Errorf("getting intent: %w", err)
	}
	record, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[intentRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return action.Intent{}, false, nil
	}
	if err != nil {
		return action.Intent{}, false, fmt.Errorf("scanning intent: %w", err)
	}
	intent, err := record.intent()
	if err != nil {
		return action.Intent{}, false, err
	}
	return intent, true, nil
}

func (p *Postgres) Put(ctx context.Context, intent action.Intent) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	row, err := toRow(intent)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		UPDATE inboxsweep_intents
		SET type = $2, target = $3::text::jsonb, retry_count = $4, last_error = $5
		WHERE id = $1`,
		row.ID, row.Type, row.Target, row.RetryCount, row.LastError)
	if err != nil {
		return fmt.Errorf("updating intent: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	pool, err := p.conn()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, "DELETE FROM inboxsweep_intents WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting intent: %w", err)
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	pool, err := p.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM inboxsweep_intents").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting intents: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}
