package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_stores (
  store TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS snapshot_listings (
  store         TEXT NOT NULL,
  title         TEXT NOT NULL,
  price         TEXT,
  first_seen_us INTEGER,
  PRIMARY KEY (store, title)
);
`

// SQLite keeps the same key-value snapshot in a single SQLite file. Stores
// are tracked in their own table so a store whose last scrape came back
// empty is still known (and therefore not a first run).
type SQLite struct {
	path string
}

func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) open(ctx context.Context) (*sql.DB, error) {
	dsn := "file:" + s.path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLite) Load(ctx context.Context) (Database, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return Database{}, nil
	}
	db, err := s.open(ctx)
	if err != nil {
		return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer db.Close()

	out := Database{}

	rows, err := db.QueryContext(ctx, "SELECT store FROM snapshot_stores")
	if err != nil {
		return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for rows.Next() {
		var store string
		if err := rows.Scan(&store); err != nil {
			rows.Close()
			return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out[store] = StoreSnapshot{}
	}
	if err := rows.Close(); err != nil {
		return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	rows, err = db.QueryContext(ctx, "SELECT store, title, price, first_seen_us FROM snapshot_listings")
	if err != nil {
		return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			store, title string
			price        sql.NullString
			firstSeen    sql.NullInt64
		)
		if err := rows.Scan(&store, &title, &price, &firstSeen); err != nil {
			return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		snap, ok := out[store]
		if !ok {
			snap = StoreSnapshot{}
			out[store] = snap
		}
		rec := Record{Price: price.String}
		if firstSeen.Valid && firstSeen.Int64 > 0 {
			rec.FirstSeen = time.UnixMicro(firstSeen.Int64)
		}
		snap[title] = rec
	}
	if err := rows.Err(); err != nil {
		return Database{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

// Save replaces the stored snapshot inside one transaction. A file that
// cannot be opened as a database is moved aside to <path>.corrupt first.
func (s *SQLite) Save(ctx context.Context, d Database) (err error) {
	db, err := s.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, statErr := os.Stat(s.path); statErr == nil {
			if rerr := os.Rename(s.path, s.path+".corrupt"); rerr != nil {
				return fmt.Errorf("move aside corrupt snapshot %s: %w", s.path, rerr)
			}
			db, err = s.open(ctx)
		}
		if err != nil {
			return fmt.Errorf("open snapshot db %s: %w", s.path, err)
		}
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM snapshot_listings"); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM snapshot_stores"); err != nil {
		return err
	}

	for _, store := range d.Stores() {
		if _, err = tx.ExecContext(ctx, "INSERT INTO snapshot_stores(store) VALUES(?)", store); err != nil {
			return err
		}
		snap := d[store]
		for _, title := range snap.Titles() {
			rec := snap[title]
			var firstSeen interface{}
			if !rec.FirstSeen.IsZero() {
				firstSeen = rec.FirstSeen.UnixMicro()
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO snapshot_listings(store, title, price, first_seen_us) VALUES(?,?,?,?)",
				store, title, nullIfEmpty(rec.Price), firstSeen)
			if err != nil {
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
