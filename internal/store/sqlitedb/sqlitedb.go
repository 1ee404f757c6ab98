package sqlitedb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"stickytweets/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a row id does not exist.
var ErrNotFound = errors.New("sticky tweet not found")

// DB wraps the SQLite database holding the sticky_tweets table.
type DB struct {
	sql *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies pending migrations.
// ":memory:" is supported; the pool is pinned to one connection so every
// statement sees the same database.
func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d, now: time.Now}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	driver, err := migratesqlite.WithInstance(d.sql, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would close the shared *sql.DB; the source is an embed.FS.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const selectColumns = `id, twitter_name, status_id, tweet, visible, media_url, time, created_on, updated_on, geom_lon, geom_lat`

// Count returns the number of stored tweets.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM sticky_tweets`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// OldestIDs returns up to n row ids ordered by time ascending. Rows without
// a time sort first; ties break on id.
func (d *DB) OldestIDs(ctx context.Context, n int) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id FROM sticky_tweets ORDER BY time ASC, id ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Insert stores t as a new row and fills in its id and audit timestamps.
func (d *DB) Insert(ctx context.Context, t *model.StickyTweet) error {
	now := d.now().UTC()
	res, err := d.sql.ExecContext(ctx, `INSERT INTO sticky_tweets(twitter_name, status_id, tweet, visible, media_url, time, created_on, updated_on, geom_lon, geom_lat)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.TwitterName, t.StatusID, t.Tweet, t.Visible, t.MediaURL, nullUnix(t.Time), now.Unix(), now.Unix(), lon(t.Geom), lat(t.Geom))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedOn = time.Unix(now.Unix(), 0).UTC()
	t.UpdatedOn = t.CreatedOn
	return nil
}

// Overwrite replaces every field of row id with t, keeping the primary key.
// The row is treated as new, so created_on is reset as well.
func (d *DB) Overwrite(ctx context.Context, id int64, t *model.StickyTweet) error {
	now := d.now().UTC()
	res, err := d.sql.ExecContext(ctx, `UPDATE sticky_tweets SET twitter_name=?, status_id=?, tweet=?, visible=?, media_url=?, time=?,
		created_on=?, updated_on=?, geom_lon=?, geom_lat=? WHERE id=?`,
		t.TwitterName, t.StatusID, t.Tweet, t.Visible, t.MediaURL, nullUnix(t.Time), now.Unix(), now.Unix(), lon(t.Geom), lat(t.Geom), id)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("overwrite %d: %w", id, err)
	}
	t.ID = id
	t.CreatedOn = time.Unix(now.Unix(), 0).UTC()
	t.UpdatedOn = t.CreatedOn
	return nil
}

// Delete removes the given rows and reports how many existed.
func (d *DB) Delete(ctx context.Context, ids ...int64) (int, error) {
	total := 0
	for _, id := range ids {
		res, err := d.sql.ExecContext(ctx, `DELETE FROM sticky_tweets WHERE id=?`, id)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// DeleteDuplicates keeps one row per status_id, the one with the highest id,
// and deletes the rest.
func (d *DB) DeleteDuplicates(ctx context.Context) (int, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM sticky_tweets
		WHERE status_id IS NOT NULL
		  AND id NOT IN (SELECT MAX(id) FROM sticky_tweets WHERE status_id IS NOT NULL GROUP BY status_id)`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Get returns a single row.
func (d *DB) Get(ctx context.Context, id int64) (model.StickyTweet, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sticky_tweets WHERE id=?`, id)
	t, err := scanTweet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	return t, err
}

// List returns every row ordered by id.
func (d *DB) List(ctx context.Context) ([]model.StickyTweet, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT `+selectColumns+` FROM sticky_tweets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListVisible returns visible rows with a geometry, newest first. Zero
// bounds are open; otherwise time must fall in [from, to).
func (d *DB) ListVisible(ctx context.Context, from, to time.Time) ([]model.StickyTweet, error) {
	q := `SELECT ` + selectColumns + ` FROM sticky_tweets WHERE visible=1 AND geom_lon IS NOT NULL AND geom_lat IS NOT NULL`
	var args []any
	if !from.IsZero() {
		q += ` AND time>=?`
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		q += ` AND time<?`
		args = append(args, to.Unix())
	}
	q += ` ORDER BY time DESC, id DESC`
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// SetVisible toggles the site-wide visibility flag of a row.
func (d *DB) SetVisible(ctx context.Context, id int64, visible bool) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE sticky_tweets SET visible=?, updated_on=? WHERE id=?`, visible, d.now().UTC().Unix(), id)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("set visible %d: %w", id, err)
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanTweet(s scanner) (model.StickyTweet, error) {
	var (
		t                    model.StickyTweet
		name, text           sql.NullString
		statusID, ts         sql.NullInt64
		createdOn, updatedOn int64
		glon, glat           sql.NullFloat64
	)
	if err := s.Scan(&t.ID, &name, &statusID, &text, &t.Visible, &t.MediaURL, &ts, &createdOn, &updatedOn, &glon, &glat); err != nil {
		return t, err
	}
	t.TwitterName = name.String
	t.StatusID = statusID.Int64
	t.Tweet = text.String
	if ts.Valid {
		t.Time = time.Unix(ts.Int64, 0).UTC()
	}
	t.CreatedOn = time.Unix(createdOn, 0).UTC()
	t.UpdatedOn = time.Unix(updatedOn, 0).UTC()
	if glon.Valid && glat.Valid {
		t.Geom = &model.Point{Lon: glon.Float64, Lat: glat.Float64}
	}
	return t, nil
}

func scanAll(rows *sql.Rows) ([]model.StickyTweet, error) {
	var out []model.StickyTweet
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func lon(p *model.Point) any {
	if p == nil {
		return nil
	}
	return p.Lon
}

func lat(p *model.Point) any {
	if p == nil {
		return nil
	}
	return p.Lat
}
