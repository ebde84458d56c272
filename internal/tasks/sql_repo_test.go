package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTempDB(t *testing.T) *SQLRepo {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	dsn, err := SQLiteFileDSN(dbPath)
	if err != nil {
		t.Fatalf("dsn error: %v", err)
	}
	repo, err := NewSQLiteRepo(dsn)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
		_ = os.RemoveAll(dir)
	})
	if err := repo.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return repo
}

// openExternalDB connects to a server-backed store named by envKey and empties its table.
func openExternalDB(t *testing.T, driver, envKey string) *SQLRepo {
	t.Helper()
	dsn := os.Getenv(envKey)
	if dsn == "" {
		t.Skipf("%s not set", envKey)
	}
	ctx := context.Background()
	repo, err := OpenSQLRepo(ctx, SQLConfig{Driver: driver, DSN: dsn})
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.ApplyMigrations(ctx); err != nil {
		t.Fatalf("migrate %s: %v", driver, err)
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		t.Fatalf("truncate %s: %v", driver, err)
	}
	return repo
}

func TestSQLiteRepo_Contract(t *testing.T) {
	testRepositoryContract(t, newTempDB(t))
}

func TestSQLiteRepo_ApplyMigrationsIsIdempotent(t *testing.T) {
	repo := newTempDB(t)
	if err := repo.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLiteRepo_ListEmpty(t *testing.T) {
	list, err := newTempDB(t).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", list)
	}
}

func TestMySQLRepo_Contract(t *testing.T) {
	testRepositoryContract(t, openExternalDB(t, DriverMySQL, "TASKS_TEST_MYSQL_DSN"))
}

func TestPostgresRepo_Contract(t *testing.T) {
	testRepositoryContract(t, openExternalDB(t, DriverPostgres, "TASKS_TEST_POSTGRES_DSN"))
}

func TestOpenSQLRepo_Rejects(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenSQLRepo(ctx, SQLConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := OpenSQLRepo(ctx, SQLConfig{Driver: DriverMySQL, DSN: "  "}); err == nil {
		t.Fatalf("expected empty dsn error")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepo{dialect: dialects[DriverPostgres]}
	got := pg.rebind(`UPDATE tasks SET title = ?, completed = ? WHERE id = ?`)
	want := `UPDATE tasks SET title = $1, completed = $2 WHERE id = $3`
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}

	lite := &SQLRepo{dialect: dialects[DriverSQLite]}
	if q := `SELECT ? FROM t`; lite.rebind(q) != q {
		t.Fatalf("sqlite queries must not be rewritten")
	}
}
