package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"places_bot/src/types"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

var _ types.DataStore = (*SQLStore)(nil)

type dialect struct {
	driver string
	schema []string
	// contains is a case-sensitive substring predicate on category.
	contains string
	numbered bool
}

var (
	sqliteDialect = dialect{
		driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS places (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				address TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS places_name_idx ON places (name)`,
			`CREATE INDEX IF NOT EXISTS places_address_idx ON places (address)`,
		},
		contains: "instr(category, ?) > 0",
	}
	postgresDialect = dialect{
		driver: "pgx",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS places (
				id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				address TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS places_name_idx ON places (name)`,
			`CREATE INDEX IF NOT EXISTS places_address_idx ON places (address)`,
		},
		contains: "strpos(category, ?) > 0",
		numbered: true,
	}
)

// bind rewrites ? placeholders to $1..$n for drivers that need it.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore keeps places in a single relational table.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (creating if absent) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		path = "places.db"
	}
	s, err := openSQL(ctx, sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	return s, nil
}

// OpenPostgres connects to dsn through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	// One connection at a time; every call is a single statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.driver, err)
	}
	s := &SQLStore{db: db, d: d}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the places table and its lookup indexes if absent.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create places table: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) CreatePlace(ctx context.Context, name, category, address string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.d.bind(`INSERT INTO places (name, category, address) VALUES (?, ?, ?) RETURNING id`),
		name, category, address,
	).Scan(&id)
	if err != nil {
		return 0, types.Storage("create place", err)
	}
	return id, nil
}

// FindAddressByName returns the address of the earliest inserted place
// called name.
func (s *SQLStore) FindAddressByName(ctx context.Context, name string) (string, error) {
	return s.lookup(ctx, "find address by name",
		`SELECT address FROM places WHERE name = ? ORDER BY id LIMIT 1`, name)
}

// FindNameByAddress returns the name of the earliest inserted place at
// address.
func (s *SQLStore) FindNameByAddress(ctx context.Context, address string) (string, error) {
	return s.lookup(ctx, "find name by address",
		`SELECT name FROM places WHERE address = ? ORDER BY id LIMIT 1`, address)
}

func (s *SQLStore) lookup(ctx context.Context, op, query, arg string) (string, error) {
	var out string
	err := s.db.QueryRowContext(ctx, s.d.bind(query), arg).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", types.Storage(op, err)
	}
	return out, nil
}

func (s *SQLStore) ListByCategory(ctx context.Context, substring string) ([]types.Place, error) {
	query := `SELECT id, name, category, address FROM places WHERE ` + s.d.contains + ` ORDER BY id`
	return s.list(ctx, "list by category", query, substring)
}

func (s *SQLStore) ListAll(ctx context.Context) ([]types.Place, error) {
	return s.list(ctx, "list all", `SELECT id, name, category, address FROM places ORDER BY id`)
}

func (s *SQLStore) list(ctx context.Context, op, query string, args ...any) ([]types.Place, error) {
	rows, err := s.db.QueryContext(ctx, s.d.bind(query), args...)
	if err != nil {
		return nil, types.Storage(op, err)
	}
	defer rows.Close()

	places := []types.Place{}
	for rows.Next() {
		var p types.Place
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Address); err != nil {
			return nil, types.Storage(op, err)
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Storage(op, err)
	}
	return places, nil
}

func (s *SQLStore) UpdateAddress(ctx context.Context, name, address string) (int64, error) {
	return s.exec(ctx, "update address", `UPDATE places SET address = ? WHERE name = ?`, address, name)
}

func (s *SQLStore) DeleteByName(ctx context.Context, name string) (int64, error) {
	return s.exec(ctx, "delete by name", `DELETE FROM places WHERE name = ?`, name)
}

// ClearAll removes every place. Ids already handed out are not reused.
func (s *SQLStore) ClearAll(ctx context.Context) error {
	_, err := s.exec(ctx, "clear all", `DELETE FROM places`)
	return err
}

func (s *SQLStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.d.bind(query), args...)
	if err != nil {
		return 0, types.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.Storage(op, err)
	}
	return n, nil
}
