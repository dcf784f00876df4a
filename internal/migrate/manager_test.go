package migrate

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func ensureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create table if not exists schema_seeds`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("create table b (id int);")},
		"0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
		"README.md":       {Data: []byte("ignored")},
	}
	ensureTables(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`select name from schema_migrations`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`create table b (id int);`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`insert into schema_migrations(name, applied_at)`)).
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := NewManager(db, fsys, nil).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}
	ensureTables(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`select name, applied_at from schema_migrations order by applied_at asc, name asc`)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("0001_a.up.sql", time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`drop table a;`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`delete from schema_migrations where name = $1`)).
		WithArgs("0001_a.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := NewManager(db, fsys, nil).Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeedFailureLeavesNoRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	seeds := fstest.MapFS{"0001_demo.sql": {Data: []byte("insert into tenants values ('t1');")}}
	ensureTables(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`select name from schema_seeds`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`insert into tenants values ('t1');`)).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err = NewManager(db, fstest.MapFS{}, seeds).Seed(context.Background())
	if err == nil || !strings.Contains(err.Error(), "apply seed 0001_demo.sql") {
		t.Fatalf("expected seed error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ensureTables(mock)
	mock.ExpectQuery(`select name, applied_at from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}))

	if err := NewManager(db, fstest.MapFS{}, nil).Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestEmbeddedSchemaHasPairs(t *testing.T) {
	ups, err := listSQL(Migrations(), upSuffix)
	if err != nil || len(ups) == 0 {
		t.Fatalf("expected embedded migrations, got %v %v", ups, err)
	}
	downs, _ := listSQL(Migrations(), downSuffix)
	if len(downs) != len(ups) {
		t.Fatalf("every migration needs a down file: %v vs %v", ups, downs)
	}
	seeds, _ := listSQL(Seeds(), ".sql")
	if len(seeds) == 0 {
		t.Fatalf("expected embedded seeds")
	}
}

func TestSplitStatements(t *testing.T) {
	cases := []struct {
		name   string
		script string
		want   []string
	}{
		{"quoted semicolon", "insert into t values ('a;b');\nselect 1;", []string{"insert into t values ('a;b');", "select 1;"}},
		{"escaped quote", "insert into t values ('it''s; fine');", []string{"insert into t values ('it''s; fine');"}},
		{"comment", "-- seed: don't split; here\nselect 1;", []string{"select 1;"}},
		{"dashes in string", "select '--x;';", []string{"select '--x;';"}},
		{"trailing without semicolon", "select 1;\n\nselect 2", []string{"select 1;", "select 2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := splitStatements(tc.script); !slices.Equal(got, tc.want) {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
