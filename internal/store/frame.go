package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ayusman/myomod/internal/telemetry"
)

// Frame is one recorded notification payload.
type Frame struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Kind       telemetry.Kind `json:"kind"`
	Counter    uint8          `json:"counter"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    []byte         `json:"payload"`
}

// FrameRepository stores raw notification payloads.
type FrameRepository struct {
	db *sql.DB
}

// Frames returns the frame repository for this store.
func (s *Store) Frames() *FrameRepository {
	return &FrameRepository{db: s.db}
}

// Insert appends frames in a single transaction, assigning their IDs.
func (r *FrameRepository) Insert(frames []*Frame) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO frames (session_id, kind, counter, received_at_ns, payload) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		res, err := stmt.Exec(f.SessionID, f.Kind.String(), int(f.Counter), f.ReceivedAt.UnixNano(), f.Payload)
		if err != nil {
			return err
		}
		if f.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List returns up to limit frames of a session with an ID greater than
// afterID, in arrival order. A limit <= 0 returns every remaining frame.
func (r *FrameRepository) List(sessionID string, afterID int64, limit int) ([]*Frame, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, session_id, kind, counter, received_at_ns, payload
		 FROM frames
		 WHERE session_id = ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		sessionID, afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []*Frame
	for rows.Next() {
		f := &Frame{}
		var kind string
		var counter int
		var ns int64
		if err := rows.Scan(&f.ID, &f.SessionID, &kind, &counter, &ns, &f.Payload); err != nil {
			return nil, err
		}
		if f.Kind, err = telemetry.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.ID, err)
		}
		f.Counter = uint8(counter)
		f.ReceivedAt = time.Unix(0, ns)
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}

// Count returns the number of frames recorded for a session.
func (r *FrameRepository) Count(sessionID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM frames WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
