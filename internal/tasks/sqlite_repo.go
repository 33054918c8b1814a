package tasks

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteRepo is the durable backend. One table, with a uniqueness
// constraint on the position column; every multi-statement mutation
// runs in a single transaction so readers observe either the prior
// state or the fully renumbered one, never an intermediate.
type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(dsn string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Reasonable pragmas for an app server
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

// ApplyMigrations ensures the schema exists and upgrades stores
// created before the position column did: the column is added,
// backfilled from id (ids are unique, so the backfill cannot collide),
// compacted to a contiguous range, and only then put under the unique
// index. Idempotent, runs once per open.
func (r *SQLiteRepo) ApplyMigrations(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	done INTEGER NOT NULL DEFAULT 0 CHECK(done IN (0, 1)),
	position INTEGER NOT NULL
);
	`); err != nil {
		return err
	}

	hasPosition, err := tableHasColumn(tx, "tasks", "position")
	if err != nil {
		return err
	}
	if !hasPosition {
		if _, err := tx.ExecContext(ctx,
			`ALTER TABLE tasks ADD COLUMN position INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET position = id`); err != nil {
			return err
		}
	}

	// Repair any gaps or duplicates the backfill (or an older store)
	// may carry before the unique index goes in.
	order, err := currentOrder(tx)
	if err != nil {
		return err
	}
	if err := renumber(tx, order); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_position ON tasks(position)`); err != nil {
		return err
	}
	return tx.Commit()
}

func tableHasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// currentOrder returns all task ids in display order. Ties on position
// cannot survive a renumbering pass, but an unmigrated store may still
// hold them; id breaks the tie deterministically.
func currentOrder(tx *sql.Tx) ([]int64, error) {
	rows, err := tx.Query(`SELECT id FROM tasks ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// renumber assigns positions 0..N-1 following ids. Direct assignment
// could transiently collide with the unique index, so it is two-phase:
// park every row above the current maximum first, then write the final
// positions. Must run inside the caller's transaction.
func renumber(tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var max int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) FROM tasks`).Scan(&max); err != nil {
		return err
	}
	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE tasks SET position = ? WHERE id = ?`, max+1+int64(i), id); err != nil {
			return err
		}
	}
	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE tasks SET position = ? WHERE id = ?`, i, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepo) List() ([]Task, error) {
	rows, err := r.db.Query(`
		SELECT id, title, done, position
		FROM tasks
		ORDER BY position, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Done, &t.Position); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) Add(title string) (*Task, error) {
	title = normalizeTitle(title)
	if title == "" {
		return nil, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var pos int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM tasks`).Scan(&pos); err != nil {
		return nil, err
	}
	res, err := tx.Exec(`INSERT INTO tasks (title, done, position) VALUES (?, 0, ?)`, title, pos)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Task{ID: id, Title: title, Done: false, Position: pos}, nil
}

func (r *SQLiteRepo) Toggle(id int64) (Task, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var t Task
	err = tx.QueryRow(`SELECT id, title, done, position FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &t.Done, &t.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}

	t.Done = !t.Done
	if _, err := tx.Exec(`UPDATE tasks SET done = ? WHERE id = ?`, t.Done, id); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (r *SQLiteRepo) Remove(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// unknown id: nothing to renumber
		return tx.Commit()
	}

	order, err := currentOrder(tx)
	if err != nil {
		return err
	}
	if err := renumber(tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepo) Stats() (done, total int, err error) {
	err = r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(done), 0) FROM tasks`).Scan(&total, &done)
	return done, total, err
}

func (r *SQLiteRepo) Reorder(ids []int64) ([]Task, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := currentOrder(tx)
	if err != nil {
		return nil, err
	}
	if !sameIDSet(existing, ids) {
		return nil, ErrOrderMismatch
	}

	if err := renumber(tx, ids); err != nil {
		return nil, err
	}

	out, err := listTx(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func listTx(tx *sql.Tx) ([]Task, error) {
	rows, err := tx.Query(`SELECT id, title, done, position FROM tasks ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Done, &t.Position); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SQLiteFileDSN builds a DSN like file:/absolute/path?_pragma=busy_timeout(5000)
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
