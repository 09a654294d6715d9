package journal

import (
	"fmt"
	"time"

	"github.com/starford/mocsync/internal/models"
)

// Recorder is the journal surface used by the rest of the application.
type Recorder interface {
	Record(ev models.LinkEvent) error
	Recent(limit int) ([]models.LinkEvent, error)
	ForNote(note string) ([]models.LinkEvent, error)
	Close() error
}

// Verify *DB satisfies Recorder at compile time.
var _ Recorder = (*DB)(nil)

// Record appends one event.
func (db *DB) Record(ev models.LinkEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO link_events (kind, note, prefix, index_path, checksum, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Kind, ev.Note, ev.Prefix, ev.IndexPath, ev.Checksum, ev.Error, at)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns the newest events first.
func (db *DB) Recent(limit int) ([]models.LinkEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	return db.query(`
		SELECT id, kind, note, prefix, index_path, checksum, error, created_at
		FROM link_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

// ForNote returns every event for the given note base name, oldest first.
func (db *DB) ForNote(note string) ([]models.LinkEvent, error) {
	return db.query(`
		SELECT id, kind, note, prefix, index_path, checksum, error, created_at
		FROM link_events
		WHERE note = ?
		ORDER BY id ASC
	`, note)
}

func (db *DB) query(q string, args ...any) ([]models.LinkEvent, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []models.LinkEvent
	for rows.Next() {
		var ev models.LinkEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Note, &ev.Prefix, &ev.IndexPath, &ev.Checksum, &ev.Error, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
