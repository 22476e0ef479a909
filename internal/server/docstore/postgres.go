package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/dmitrijs2005/tripkeeper/internal/server/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var gooseUpContext = goose.UpContext

const (
	getSQL    = `SELECT data, revision FROM documents WHERE path = $1`
	createSQL = `INSERT INTO documents (path, collection, id, data) VALUES ($1, $2, $3, $4::jsonb) ON CONFLICT (path) DO NOTHING`
	setSQL    = `INSERT INTO documents (path, collection, id, data) VALUES ($1, $2, $3, $4::jsonb) ` +
		`ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, revision = documents.revision + 1, updated_at = now()`
	mergeSQL = `INSERT INTO documents (path, collection, id, data) VALUES ($1, $2, $3, $4::jsonb) ` +
		`ON CONFLICT (path) DO UPDATE SET data = documents.data || EXCLUDED.data, revision = documents.revision + 1, updated_at = now()`
	deleteSQL = `DELETE FROM documents WHERE path = $1`
)

// PostgresStore keeps documents as JSONB rows in one table. Transactions run
// at SERIALIZABLE isolation and are re-run on serialization failures.
type PostgresStore struct {
	db    *sql.DB
	retry RetryPolicy
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, retry: DefaultRetryPolicy}
}

// OpenPostgres connects with the pgx driver and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, ".")
}

func (s *PostgresStore) Get(ctx context.Context, path string) (*Doc, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return getDoc(ctx, s.db, path)
}

func (s *PostgresStore) Create(ctx context.Context, path string, data Data) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, createSQL, path, Collection(path), ID(path), raw)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	switch n {
	case 0:
		return ErrAlreadyExists
	case 1:
		return nil
	default:
		return fmt.Errorf("create %s: unexpected rows affected %d", path, n)
	}
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]*Doc, error) {
	q, err := q.validate()
	if err != nil {
		return nil, err
	}
	query, args, err := compileQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []*Doc
	for rows.Next() {
		var (
			path string
			raw  []byte
			rev  int64
		)
		if err := rows.Scan(&path, &raw, &rev); err != nil {
			return nil, err
		}
		data, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &Doc{Path: path, Data: data, Revision: rev})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runWithRetry(ctx, s.retry, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, dbx.Serializable, func(ctx context.Context, tx dbx.DBTX) error {
			return fn(ctx, &pgTx{db: tx})
		})
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type pgTx struct {
	db dbx.DBTX
}

func (t *pgTx) Get(ctx context.Context, path string) (*Doc, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return getDoc(ctx, t.db, path)
}

func (t *pgTx) Set(ctx context.Context, path string, data Data) error {
	return t.upsert(ctx, setSQL, path, data)
}

func (t *pgTx) Merge(ctx context.Context, path string, data Data) error {
	return t.upsert(ctx, mergeSQL, path, data)
}

func (t *pgTx) Delete(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if _, err := t.db.ExecContext(ctx, deleteSQL, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (t *pgTx) upsert(ctx context.Context, query, path string, data Data) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	if _, err := t.db.ExecContext(ctx, query, path, Collection(path), ID(path), raw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func getDoc(ctx context.Context, db dbx.DBTX, path string) (*Doc, error) {
	var (
		raw []byte
		rev int64
	)
	err := db.QueryRowContext(ctx, getSQL, path).Scan(&raw, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	data, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &Doc{Path: path, Data: data, Revision: rev}, nil
}

func encode(data Data) (string, error) {
	norm, err := Normalize(data)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw []byte) (Data, error) {
	data := Data{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}

func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// compileQuery turns a validated Query into SQL. Field names are
// interpolated, so they must have passed fieldNameRe.
func compileQuery(q Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT path, data, revision FROM documents WHERE collection = $1`)

	if q.StartAfterID != "" {
		args = append(args, q.StartAfterID)
		fmt.Fprintf(&b, ` AND id > $%d`, len(args))
	}

	for _, f := range q.Filters {
		field := fmt.Sprintf(`data->'%s'`, f.Field)
		text := fmt.Sprintf(`data->>'%s'`, f.Field)

		switch f.Op {
		case OpEq:
			v, err := jsonArg(f.Value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
			fmt.Fprintf(&b, ` AND COALESCE(%s, 'null'::jsonb) = $%d::jsonb`, field, len(args))
		case OpNe:
			v, err := jsonArg(f.Value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
			fmt.Fprintf(&b, ` AND %s IS NOT NULL AND %s <> $%d::jsonb`, field, field, len(args))
		case OpNotNull:
			fmt.Fprintf(&b, ` AND COALESCE(jsonb_typeof(%s), 'null') <> 'null'`, field)
		case OpIn:
			values := f.Value.([]any)
			if len(values) == 0 {
				b.WriteString(` AND FALSE`)
				continue
			}
			placeholders := make([]string, len(values))
			for i, x := range values {
				v, err := jsonArg(x)
				if err != nil {
					return "", nil, err
				}
				args = append(args, v)
				placeholders[i] = fmt.Sprintf(`$%d::jsonb`, len(args))
			}
			fmt.Fprintf(&b, ` AND %s IN (%s)`, field, strings.Join(placeholders, ", "))
		default:
			args = append(args, f.Value)
			switch f.Value.(type) {
			case string:
				fmt.Fprintf(&b, ` AND jsonb_typeof(%s) = 'string' AND %s %s $%d`, field, text, f.Op, len(args))
			case float64:
				fmt.Fprintf(&b, ` AND jsonb_typeof(%s) = 'number' AND (%s)::numeric %s $%d`, field, text, f.Op, len(args))
			}
		}
	}

	if q.OrderBy != "" {
		fmt.Fprintf(&b, ` ORDER BY data->'%s' ASC NULLS LAST, id ASC`, q.OrderBy)
	} else {
		b.WriteString(` ORDER BY id ASC`)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args, nil
}
