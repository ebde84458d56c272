package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type dialect struct {
	schema string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// INSERT ... RETURNING id instead of LastInsertId
	returning bool
}

var dialects = map[string]dialect{
	DriverSQLite: {
		schema: `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT,
	due_date TEXT,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);`,
	},
	DriverMySQL: {
		schema: `
CREATE TABLE IF NOT EXISTS tasks (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	title VARCHAR(1024) NOT NULL,
	description TEXT NULL,
	due_date VARCHAR(64) NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at VARCHAR(40) NOT NULL
)`,
	},
	DriverPostgres: {
		schema: `
CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	due_date TEXT,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TEXT NOT NULL
)`,
		numbered:  true,
		returning: true,
	},
}

// SQLConfig describes a relational task store connection.
type SQLConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLRepo is a Repository over database/sql for sqlite, mysql and postgres.
type SQLRepo struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLRepo opens and pings the database. Call ApplyMigrations before use.
func OpenSQLRepo(ctx context.Context, cfg SQLConfig) (*SQLRepo, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s dsn is empty", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if cfg.Driver == DriverSQLite {
		// Reasonable pragmas for an app server
		if _, err := db.ExecContext(ctx, `
			PRAGMA journal_mode=WAL;
			PRAGMA synchronous=NORMAL;
			PRAGMA foreign_keys=ON;
		`); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return &SQLRepo{db: db, dialect: d}, nil
}

// NewSQLiteRepo opens a sqlite-backed repo with default pool settings.
func NewSQLiteRepo(dsn string) (*SQLRepo, error) {
	return OpenSQLRepo(context.Background(), SQLConfig{Driver: DriverSQLite, DSN: dsn})
}

func (r *SQLRepo) Close() error { return r.db.Close() }

// ApplyMigrations ensures schema exists
func (r *SQLRepo) ApplyMigrations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, r.dialect.schema)
	return err
}

func (r *SQLRepo) Create(ctx context.Context, t Task) (Task, error) {
	now := time.Now().UTC()
	args := []any{t.Title, t.Description, t.DueDate, t.Completed, now.Format(time.RFC3339Nano)}
	insert := `INSERT INTO tasks (title, description, due_date, completed, created_at) VALUES (?, ?, ?, ?, ?)`

	if r.dialect.returning {
		if err := r.db.QueryRowContext(ctx, r.rebind(insert+` RETURNING id`), args...).Scan(&t.ID); err != nil {
			return Task{}, err
		}
	} else {
		res, err := r.db.ExecContext(ctx, r.rebind(insert), args...)
		if err != nil {
			return Task{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return Task{}, err
		}
		t.ID = id
	}
	t.CreatedAt = now
	return t, nil
}

func (r *SQLRepo) Get(ctx context.Context, id int64) (Task, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, title, description, due_date, completed, created_at
		FROM tasks
		WHERE id = ?
	`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	return t, err
}

// Update writes the mutable fields and re-reads the row. RowsAffected is not
// used for existence because MySQL reports 0 for unchanged rows.
func (r *SQLRepo) Update(ctx context.Context, t Task) (Task, error) {
	if _, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE tasks
		SET title = ?, description = ?, due_date = ?, completed = ?
		WHERE id = ?
	`), t.Title, t.Description, t.DueDate, t.Completed, t.ID); err != nil {
		return Task{}, err
	}
	return r.Get(ctx, t.ID)
}

func (r *SQLRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *SQLRepo) List(ctx context.Context) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, due_date, completed, created_at
		FROM tasks
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (Task, error) {
	var (
		t           Task
		description sql.NullString
		dueDate     sql.NullString
		created     string
	)
	if err := s.Scan(&t.ID, &t.Title, &description, &dueDate, &t.Completed, &created); err != nil {
		return Task{}, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Task{}, fmt.Errorf("parse created_at of task %d: %w", t.ID, err)
	}
	t.CreatedAt = ts
	return t, nil
}

// rebind rewrites ? placeholders as $1..$n for postgres.
func (r *SQLRepo) rebind(query string) string {
	if !r.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Helper to build DSN like: file:/absolute/path?_pragma=busy_timeout(5000)
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)", nil
}
