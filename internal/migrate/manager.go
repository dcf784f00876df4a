// Package migrate applies the schema and seed SQL shipped with the binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"schooladmin.org/internal/obs"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

//go:embed seeds/*.sql
var embeddedSeeds embed.FS

// Migrations is the schema bundled into the binary.
func Migrations() fs.FS { return sub(embeddedMigrations, "sql") }

// Seeds is the demo data bundled into the binary.
func Seeds() fs.FS { return sub(embeddedSeeds, "seeds") }

func sub(fsys embed.FS, dir string) fs.FS {
	out, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return out
}

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var ErrNothingApplied = errors.New("migrate: no migrations applied")

// Record is one applied file.
type Record struct {
	Name      string
	AppliedAt time.Time
}

// track is a directory of SQL files and the table remembering which of them ran.
type track struct {
	label  string
	table  string
	files  fs.FS
	suffix string
}

// Manager runs schema migrations and demo seeds against one database.
type Manager struct {
	db         *sql.DB
	migrations track
	seeds      track
	now        func() time.Time
}

type Option func(*Manager)

func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrations.table = name
		}
	}
}

func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seeds.table = name
		}
	}
}

// WithClock overrides the applied_at source.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager reads migrations and seeds from the given trees. A nil seeds
// tree makes Seed a no-op.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:         db,
		migrations: track{label: "migration", table: "schema_migrations", files: migrations, suffix: upSuffix},
		seeds:      track{label: "seed", table: "schema_seeds", files: seeds, suffix: ".sql"},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every pending migration in name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(ctx, m.migrations)
}

// Seed applies seed files that have not run yet.
func (m *Manager) Seed(ctx context.Context) error {
	return m.run(ctx, m.seeds)
}

// Down reverts the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	applied, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return ErrNothingApplied
	}
	last := applied[len(applied)-1].Name
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	body, err := fs.ReadFile(m.migrations.files, down)
	if err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	err = m.inTx(ctx, body, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.migrations.table), last)
		return err
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	obs.LoggerFrom(ctx).Info("migration rolled back", zap.String("name", last))
	return nil
}

// Status lists applied migrations, oldest first.
func (m *Manager) Status(ctx context.Context) ([]Record, error) {
	if err := m.prepare(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name, applied_at from %s order by applied_at asc, name asc`, m.migrations.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// run executes the pending files of t. Each file and its bookkeeping row
// commit together.
func (m *Manager) run(ctx context.Context, t track) error {
	pending, err := m.pending(ctx, t)
	if err != nil {
		return err
	}
	record := fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, t.table)
	for _, name := range pending {
		body, err := fs.ReadFile(t.files, name)
		if err != nil {
			return err
		}
		err = m.inTx(ctx, body, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, record, name, m.now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s %s: %w", t.label, name, err)
		}
		obs.LoggerFrom(ctx).Info(t.label+" applied", zap.String("name", name))
	}
	return nil
}

func (m *Manager) pending(ctx context.Context, t track) ([]string, error) {
	if err := m.prepare(ctx); err != nil {
		return nil, err
	}
	files, err := listSQL(t.files, t.suffix)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, t.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(files, func(name string) bool {
		_, ok := done[name]
		return ok
	}), nil
}

func (m *Manager) prepare(ctx context.Context) error {
	for _, table := range []string{m.migrations.table, m.seeds.table} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("bookkeeping table %s: %w", table, err)
		}
	}
	return nil
}

// inTx runs the statements in body followed by after, atomically.
func (m *Manager) inTx(ctx context.Context, body []byte, after func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := after(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// listSQL returns the top-level files ending in suffix, sorted by name. A
// missing tree yields nothing.
func listSQL(fsys fs.FS, suffix string) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// splitStatements cuts a script at semicolons outside single-quoted strings
// and "--" comments. Comments are dropped and blank statements skipped.
func splitStatements(script string) []string {
	var (
		out     []string
		buf     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(buf.String()); stmt != "" {
			out = append(out, stmt)
		}
		buf.Reset()
	}
	for i := 0; i < len(script); i++ {
		ch := script[i]
		switch {
		case comment:
			if ch == '\n' {
				comment = false
				buf.WriteByte(ch)
			}
		case quoted:
			buf.WriteByte(ch)
			if ch == '\'' {
				quoted = false
			}
		case ch == '\'':
			quoted = true
			buf.WriteByte(ch)
		case ch == '-' && i+1 < len(script) && script[i+1] == '-':
			comment = true
			i++
		case ch == ';':
			buf.WriteByte(ch)
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}
