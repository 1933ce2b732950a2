package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/wstore/internal/models"
)

// Record appends c to the journal and updates the snapshot in one transaction.
func (db *DB) Record(ctx context.Context, c models.Change) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (id, path, op, size, checksum, source, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), c.Path, string(c.Op), c.Size, c.Checksum, c.Source, now)
	if err != nil {
		return fmt.Errorf("journal: insert entry: %w", err)
	}

	if c.Op == models.OpDeleted {
		_, err = tx.ExecContext(ctx, `DELETE FROM snapshot WHERE path = ?`, c.Path)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot (path, checksum, size, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				checksum   = excluded.checksum,
				size       = excluded.size,
				updated_at = excluded.updated_at
		`, c.Path, c.Checksum, c.Size, now)
	}
	if err != nil {
		return fmt.Errorf("journal: update snapshot: %w", err)
	}

	return tx.Commit()
}

// Recent returns up to limit entries, newest first. A non-empty path
// restricts the result to that file.
func (db *DB) Recent(ctx context.Context, path string, limit int) ([]models.JournalEntry, error) {
	q := `SELECT id, path, op, size, checksum, source, at FROM entries`
	var args []any
	if path != "" {
		q += ` WHERE path = ?`
		args = append(args, path)
	}
	q += ` ORDER BY at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var op string
		if err := rows.Scan(&e.ID, &e.Path, &op, &e.Size, &e.Checksum, &e.Source, &e.At); err != nil {
			return nil, fmt.Errorf("journal: scan entry: %w", err)
		}
		e.Op = models.Op(op)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Checksum returns the snapshot checksum for path, or "" if the path is not tracked.
func (db *DB) Checksum(ctx context.Context, path string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM snapshot WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal: checksum: %w", err)
	}
	return cs, nil
}

// Snapshot returns path -> checksum for every tracked file at or below rel.
// An empty rel selects the whole tree.
func (db *DB) Snapshot(ctx context.Context, rel string) (map[string]string, error) {
	q := `SELECT path, checksum FROM snapshot`
	var args []any
	if rel != "" {
		q += ` WHERE path = ? OR path LIKE ? ESCAPE '\'`
		args = append(args, rel, escapeLike(rel)+"/%")
	}

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, fmt.Errorf("journal: scan snapshot: %w", err)
		}
		out[p] = cs
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
