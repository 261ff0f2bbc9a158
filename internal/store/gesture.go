package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/myomod/internal/gesture"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Gesture kinds.
const (
	KindStatic  = "static"
	KindDynamic = "dynamic"
)

// Gesture is a named flex-shape template: the eight hand-pose scalars in
// wire order, and how far a live pose may stray from them. A dynamic
// gesture holds a sequence of such vectors instead.
type Gesture struct {
	ID        string
	Name      string
	Kind      string
	Tolerance float64
	Samples   int
	Template  []float64
	Sequence  [][]float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchTemplate converts g to a matcher template.
func (g *Gesture) MatchTemplate() *gesture.Template {
	t := &gesture.Template{
		ID:        g.ID,
		Name:      g.Name,
		Type:      gesture.TypeStatic,
		Vector:    g.Template,
		Tolerance: g.Tolerance,
	}
	if g.Kind == KindDynamic {
		t.Type = gesture.TypeDynamic
		t.Vector = nil
		t.Sequence = g.Sequence
	}
	return t
}

// GestureRepository provides CRUD operations for gestures.
type GestureRepository struct {
	db *sql.DB
}

// Gestures returns the gesture repository for this store.
func (s *Store) Gestures() *GestureRepository {
	return &GestureRepository{db: s.db}
}

const gestureColumns = `id, name, kind, tolerance, samples, template, sequence, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGesture(row rowScanner) (*Gesture, error) {
	g := &Gesture{}
	var template, sequence string
	if err := row.Scan(&g.ID, &g.Name, &g.Kind, &g.Tolerance, &g.Samples, &template, &sequence, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(template), &g.Template); err != nil {
		return nil, fmt.Errorf("gesture %s: bad template: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(sequence), &g.Sequence); err != nil {
		return nil, fmt.Errorf("gesture %s: bad sequence: %w", g.ID, err)
	}
	return g, nil
}

// encodeTemplates serializes the static vector and the dynamic sequence.
func encodeTemplates(g *Gesture) (template, sequence string, err error) {
	t := g.Template
	if t == nil {
		t = []float64{}
	}
	seq := g.Sequence
	if seq == nil {
		seq = [][]float64{}
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return "", "", err
	}
	sb, err := json.Marshal(seq)
	if err != nil {
		return "", "", err
	}
	return string(tb), string(sb), nil
}

// Create inserts a new gesture into the database.
func (r *GestureRepository) Create(g *Gesture) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Kind == "" {
		g.Kind = KindStatic
	}

	template, sequence, err := encodeTemplates(g)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO gestures (id, name, kind, tolerance, samples, template, sequence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Kind, g.Tolerance, g.Samples, template, sequence, g.CreatedAt, g.UpdatedAt,
	)
	return err
}

// GetByID retrieves a gesture by its ID.
func (r *GestureRepository) GetByID(id string) (*Gesture, error) {
	g, err := scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// GetByName retrieves a gesture by its name.
func (r *GestureRepository) GetByName(name string) (*Gesture, error) {
	g, err := scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// List retrieves all gestures, newest first.
func (r *GestureRepository) List() ([]*Gesture, error) {
	rows, err := r.db.Query(`SELECT ` + gestureColumns + ` FROM gestures ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestures []*Gesture
	for rows.Next() {
		g, err := scanGesture(rows)
		if err != nil {
			return nil, err
		}
		gestures = append(gestures, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return gestures, nil
}

// Update updates an existing gesture in the database.
func (r *GestureRepository) Update(g *Gesture) error {
	g.UpdatedAt = time.Now()
	if g.Kind == "" {
		g.Kind = KindStatic
	}

	template, sequence, err := encodeTemplates(g)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		`UPDATE gestures SET name = ?, kind = ?, tolerance = ?, samples = ?, template = ?, sequence = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name, g.Kind, g.Tolerance, g.Samples, template, sequence, g.UpdatedAt, g.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a gesture and its samples.
func (r *GestureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM gestures WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
