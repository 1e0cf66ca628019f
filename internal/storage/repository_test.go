package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/weather-aggregator/internal/storage"
	"github.com/neexbeast/weather-aggregator/internal/weather"
)

// ---- mock DB ----

type mockDB struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
	queryFn func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFn  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pingFn  func(ctx context.Context) error
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) { return m.beginFn(ctx) }
func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return m.queryFn(ctx, sql, args...)
}
func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFn == nil {
		return pgconn.CommandTag{}, nil
	}
	return m.execFn(ctx, sql, args...)
}
func (m *mockDB) Ping(ctx context.Context) error { return m.pingFn(ctx) }

// ---- mock pgx.Row ----

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (f *fakeRow) Scan(dest ...any) error { return f.scanFn(dest...) }

// ---- mock pgx.Rows ----

type fakeRows struct {
	rows    [][]any
	idx     int
	rowErr  error
	scanErr error
}

func (f *fakeRows) Next() bool                                   { f.idx++; return f.idx <= len(f.rows) }
func (f *fakeRows) Err() error                                   { return f.rowErr }
func (f *fakeRows) Close()                                       {}
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *[]byte:
			*v = row[i].([]byte)
		case *time.Time:
			*v = row[i].(time.Time)
		}
	}
	return nil
}

// mockTx is a minimal pgx.Tx implementation.
type mockTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *mockTx) Commit(ctx context.Context) error   { return t.commitFn(ctx) }
func (t *mockTx) Rollback(ctx context.Context) error { return t.rollbackFn(ctx) }
func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if t.queryRowFn == nil {
		return &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*bool) = false
			return nil
		}}
	}
	return t.queryRowFn(ctx, sql, args...)
}

// pgx.Tx has many more methods; stub them all out.
func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (t *mockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

// ---- helpers ----

func okTx(exec func(sql string, args ...any)) *mockTx {
	return &mockTx{
		execFn: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if exec != nil {
				exec(sql, args...)
			}
			return pgconn.CommandTag{}, nil
		},
		commitFn:   func(_ context.Context) error { return nil },
		rollbackFn: func(_ context.Context) error { return nil },
	}
}

func sampleSnapshot() weather.Snapshot {
	return weather.Snapshot{Name: "Paris", Main: weather.MainMetrics{Temp: 22.5}}
}

func writeSQLFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// ---- Append ----

func TestAppend_InsertsAndTrims(t *testing.T) {
	var statements []string
	var insertArgs, trimArgs []any
	committed := false

	tx := okTx(func(sql string, args ...any) {
		statements = append(statements, sql)
		if strings.Contains(sql, "INSERT") {
			insertArgs = args
		} else {
			trimArgs = args
		}
	})
	tx.commitFn = func(_ context.Context) error { committed = true; return nil }

	db := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	repo := storage.NewRepositoryWithDB(db, 10)
	require.NoError(t, repo.Append(context.Background(), "Paris", sampleSnapshot()))

	require.Len(t, statements, 2)
	assert.True(t, committed)

	require.Len(t, insertArgs, 3)
	assert.Equal(t, "Paris", insertArgs[0])
	var snap weather.Snapshot
	require.NoError(t, json.Unmarshal(insertArgs[1].([]byte), &snap))
	assert.Equal(t, "Paris", snap.Name)

	require.Len(t, trimArgs, 1)
	assert.Equal(t, 10, trimArgs[0])
}

func TestAppend_DefaultLimit(t *testing.T) {
	var trimArgs []any
	tx := okTx(func(sql string, args ...any) {
		if strings.Contains(sql, "DELETE") {
			trimArgs = args
		}
	})
	db := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	require.NoError(t, storage.NewRepositoryWithDB(db, 0).Append(context.Background(), "Paris", sampleSnapshot()))
	assert.Equal(t, []any{10}, trimArgs)
}

func TestAppend_BeginError(t *testing.T) {
	db := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return nil, fmt.Errorf("cannot begin") }}

	err := storage.NewRepositoryWithDB(db, 10).Append(context.Background(), "Paris", sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beginning transaction")
}

func TestAppend_InsertErrorRollsBack(t *testing.T) {
	rolledBack := false
	tx := okTx(nil)
	tx.execFn = func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, fmt.Errorf("insert failed")
	}
	tx.rollbackFn = func(_ context.Context) error { rolledBack = true; return nil }
	db := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	err := storage.NewRepositoryWithDB(db, 10).Append(context.Background(), "Paris", sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting history")
	assert.True(t, rolledBack)
}

func TestAppend_TrimError(t *testing.T) {
	tx := okTx(nil)
	tx.execFn = func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		if strings.Contains(sql, "DELETE") {
			return pgconn.CommandTag{}, fmt.Errorf("delete failed")
		}
		return pgconn.CommandTag{}, nil
	}
	db := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	err := storage.NewRepositoryWithDB(db, 10).Append(context.Background(), "Paris", sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trimming history")
}

func TestAppend_CommitError(t *testing.T) {
	tx := okTx(nil)
	tx.commitFn = func(_ context.Context) error { return fmt.Errorf("commit failed") }
	db := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	err := storage.NewRepositoryWithDB(db, 10).Append(context.Background(), "Paris", sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing")
}

// ---- All ----

func TestAll_Found(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	snapJSON, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)

	rows := &fakeRows{rows: [][]any{
		{"Paris", snapJSON, ts},
		{"Berlin", snapJSON, ts.Add(time.Minute)},
	}}
	db := &mockDB{queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil }}

	records, err := storage.NewRepositoryWithDB(db, 10).All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Paris", records[0].Location)
	assert.Equal(t, 22.5, records[0].Weather.Main.Temp)
	assert.Equal(t, "2024-01-01T12:00:00Z", records[0].Timestamp)
	assert.Equal(t, "Berlin", records[1].Location)
}

func TestAll_Empty(t *testing.T) {
	db := &mockDB{queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return &fakeRows{}, nil }}

	records, err := storage.NewRepositoryWithDB(db, 10).All(context.Background())
	require.NoError(t, err)
	require.NotNil(t, records)
	assert.Empty(t, records)
}

func TestAll_QueryError(t *testing.T) {
	db := &mockDB{queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
		return nil, fmt.Errorf("query failed")
	}}

	_, err := storage.NewRepositoryWithDB(db, 10).All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying history")
}

func TestAll_ScanError(t *testing.T) {
	rows := &fakeRows{
		rows:    [][]any{{"Paris", []byte("{}"), time.Now()}},
		scanErr: fmt.Errorf("scan failed"),
	}
	db := &mockDB{queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil }}

	_, err := storage.NewRepositoryWithDB(db, 10).All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning")
}

func TestAll_RowsErr(t *testing.T) {
	rows := &fakeRows{rowErr: fmt.Errorf("rows iteration error")}
	db := &mockDB{queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil }}

	_, err := storage.NewRepositoryWithDB(db, 10).All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterating")
}

func TestAll_BadJSON(t *testing.T) {
	rows := &fakeRows{rows: [][]any{{"Paris", []byte("not-json"), time.Now()}}}
	db := &mockDB{queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil }}

	_, err := storage.NewRepositoryWithDB(db, 10).All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling")
}

func TestPing(t *testing.T) {
	db := &mockDB{pingFn: func(_ context.Context) error { return fmt.Errorf("down") }}
	require.Error(t, storage.NewRepositoryWithDB(db, 10).Ping(context.Background()))
}

func TestNewRepository_NotNil(t *testing.T) {
	repo := storage.NewRepository(nil, 10)
	assert.NotNil(t, repo)
}

// ---- RunMigrations ----

func TestRunMigrations_MissingDir(t *testing.T) {
	_, err := storage.RunMigrations(context.Background(), nil, "/nonexistent/dir")
	require.Error(t, err)
}

func TestRunMigrations_EmptyDir(t *testing.T) {
	applied, err := storage.RunMigrations(context.Background(), nil, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRunMigrations_Success(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	var recorded []any
	tx := okTx(func(sql string, args ...any) {
		if strings.Contains(sql, "schema_migrations") {
			recorded = args
		}
	})
	pool := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	applied, err := storage.RunMigrations(context.Background(), pool, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_test.sql"}, applied)
	assert.Equal(t, []any{"001_test.sql"}, recorded)
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	executed := false
	tx := okTx(func(_ string, _ ...any) { executed = true })
	tx.queryRowFn = func(_ context.Context, _ string, _ ...any) pgx.Row {
		return &fakeRow{scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		}}
	}
	pool := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	applied, err := storage.RunMigrations(context.Background(), pool, dir)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.False(t, executed)
}

func TestRunMigrations_CreateTableError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	pool := &mockDB{execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, fmt.Errorf("permission denied")
	}}

	_, err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_migrations")
}

func TestRunMigrations_BeginError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	pool := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return nil, fmt.Errorf("cannot begin") }}

	_, err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing migration")
}

func TestRunMigrations_ExecError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "INVALID SQL;")

	tx := okTx(nil)
	tx.execFn = func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, fmt.Errorf("syntax error")
	}
	pool := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	_, err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
}

func TestRunMigrations_CommitError(t *testing.T) {
	dir := t.TempDir()
	writeSQLFile(t, dir, "001_test.sql", "SELECT 1;")

	tx := okTx(nil)
	tx.commitFn = func(_ context.Context) error { return fmt.Errorf("commit failed") }
	pool := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	_, err := storage.RunMigrations(context.Background(), pool, dir)
	require.Error(t, err)
}

func TestRunMigrations_SortsFilesLexicographically(t *testing.T) {
	dir := t.TempDir()
	var order []string
	writeSQLFile(t, dir, "003_c.sql", "SELECT 3;")
	writeSQLFile(t, dir, "001_a.sql", "SELECT 1;")
	writeSQLFile(t, dir, "002_b.sql", "SELECT 2;")

	tx := okTx(func(sql string, _ ...any) {
		if strings.HasPrefix(sql, "SELECT") {
			order = append(order, sql)
		}
	})
	pool := &mockDB{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	applied, err := storage.RunMigrations(context.Background(), pool, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql", "003_c.sql"}, applied)
	assert.Equal(t, []string{"SELECT 1;", "SELECT 2;", "SELECT 3;"}, order)
}

// ---- Connect ----

func TestConnect_BadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := storage.Connect(ctx, "postgres://invalid-host-xyz:5432/db?sslmode=disable")
	require.Error(t, err)
}
