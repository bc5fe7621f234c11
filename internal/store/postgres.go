package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver used by goose
	"github.com/pressly/goose/v3"

	"claimguard/pkg/platform/sentinel"
	"claimguard/pkg/platform/tx"
	"claimguard/pkg/requestcontext"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pgUniqueViolation = "23505"

// PostgresStore persists versions as rows keyed by (kind, id, version).
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a pgx-backed *sql.DB and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies all pending goose migrations from the embedded SQL files.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Put(ctx context.Context, e Entity) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	kind, id := e.EntityKind(), e.EntityID()

	// version 1 for write-once kinds: the primary key rejects a second insert
	query := `
		INSERT INTO records (kind, id, version, body, created_at)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4
		FROM records WHERE kind = $1 AND id = $2`
	if kind.WriteOnce() {
		query = `INSERT INTO records (kind, id, version, body, created_at) VALUES ($1, $2, 1, $3, $4)`
	}
	_, err = s.conn(ctx).ExecContext(ctx, query, string(kind), id, string(body), requestcontext.Now(ctx))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if kind.WriteOnce() {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("concurrent write to %s %s: %w", kind, id, sentinel.ErrConflict)
		}
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind Kind, id string, dest any) error {
	var body []byte
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT body FROM records WHERE kind = $1 AND id = $2 ORDER BY version DESC LIMIT 1`,
		string(kind), id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return decode(kind, id, body, dest)
}

func (s *PostgresStore) History(ctx context.Context, kind Kind, id string) ([]Record, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT version, body, created_at FROM records WHERE kind = $1 AND id = $2 ORDER BY version`,
		string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", kind, id, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := Record{Kind: kind, ID: id}
		var body []byte
		if err := rows.Scan(&r.Version, &body, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Body = body
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ RecordStore = (*PostgresStore)(nil)

// PutAll writes all entities in one transaction.
func (s *PostgresStore) PutAll(ctx context.Context, entities ...Entity) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		for _, e := range entities {
			if err := s.Put(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}
