package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ayusman/myomod/internal/telemetry"
)

// Gap is a counter discontinuity observed while recording.
type Gap struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Kind      telemetry.Kind `json:"kind"`
	Expected  uint8          `json:"expected"`
	Got       uint8          `json:"got"`
	At        time.Time      `json:"at"`
}

// GapRepository stores counter gaps.
type GapRepository struct {
	db *sql.DB
}

// Gaps returns the gap repository for this store.
func (s *Store) Gaps() *GapRepository {
	return &GapRepository{db: s.db}
}

// Create inserts a gap.
func (r *GapRepository) Create(g *Gap) error {
	res, err := r.db.Exec(
		`INSERT INTO gaps (session_id, kind, expected, got, at) VALUES (?, ?, ?, ?, ?)`,
		g.SessionID, g.Kind.String(), int(g.Expected), int(g.Got), g.At,
	)
	if err != nil {
		return err
	}
	g.ID, err = res.LastInsertId()
	return err
}

// List returns the gaps of a session in the order they were seen.
func (r *GapRepository) List(sessionID string) ([]*Gap, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, expected, got, at FROM gaps WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []*Gap
	for rows.Next() {
		g := &Gap{}
		var kind string
		var expected, got int
		if err := rows.Scan(&g.ID, &g.SessionID, &kind, &expected, &got, &g.At); err != nil {
			return nil, err
		}
		if g.Kind, err = telemetry.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("gap %d: %w", g.ID, err)
		}
		g.Expected, g.Got = uint8(expected), uint8(got)
		gaps = append(gaps, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return gaps, nil
}
