// Package trackdb persists reconstruction results to SQLite. One run
// groups the tracks and vertices produced from a single input; the
// schema is embedded and applied on open.
package trackdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alig146/tracker/internal/tracker"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the reconstruction results database.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) a results database at path and
// applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply results schema: %w", err)
	}
	return &DB{db}, nil
}

// CreateRun records a new reconstruction run and returns its ID.
func (db *DB) CreateRun(source, paramsJSON string) (string, error) {
	if paramsJSON == "" {
		paramsJSON = "{}"
	}
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO runs (id, created_unix_nanos, source, params_json) VALUES (?, ?, ?, ?)`,
		id, time.Now().UnixNano(), source, paramsJSON,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// InsertTrack stores a fitted track and its hit points, returning the
// track's row ID.
func (db *DB) InsertTrack(runID string, t *tracker.Track) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO tracks (
			run_id,
			t0, t0_error, x0, x0_error, y0, y0_error, z0, z0_error,
			vx, vx_error, vy, vy_error, vz, vz_error,
			chi_squared, degrees_of_freedom, beta, point_count, converged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		t.T0().Value, t.T0().Error,
		t.X0().Value, t.X0().Error,
		t.Y0().Value, t.Y0().Error,
		t.Z0().Value, t.Z0().Error,
		t.VX().Value, t.VX().Error,
		t.VY().Value, t.VY().Error,
		t.VZ().Value, t.VZ().Error,
		t.ChiSquared(), t.DegreesOfFreedom(), t.Beta(), len(t.Event()), t.Converged(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert track: %w", err)
	}
	trackID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get track insert ID: %w", err)
	}

	volumes := t.Volumes()
	for i, p := range t.Event() {
		_, err := db.Exec(
			`INSERT INTO track_points (track_id, point_index, t, x, y, z, volume)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			trackID, i, p.T, p.X, p.Y, p.Z, volumes[i],
		)
		if err != nil {
			return 0, fmt.Errorf("insert track point %d: %w", i, err)
		}
	}
	return trackID, nil
}

// InsertVertex stores a fitted vertex, returning its row ID.
func (db *DB) InsertVertex(runID string, v *tracker.Vertex) (int64, error) {
	point := v.Point()
	pointError := v.PointError()
	result, err := db.Exec(`
		INSERT INTO vertices (
			run_id, t, t_error, x, x_error, y, y_error, z, z_error,
			chi_squared, track_count, diverged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		point.T, pointError.T,
		point.X, pointError.X,
		point.Y, pointError.Y,
		point.Z, pointError.Z,
		v.ChiSquared(), v.Size(), v.FitDiverged(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert vertex: %w", err)
	}
	vertexID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get vertex insert ID: %w", err)
	}
	return vertexID, nil
}

// TrackRecord is a stored track summary.
type TrackRecord struct {
	ID          int64
	RunID       string
	T0, X0      float64
	Y0, Z0      float64
	VX, VY, VZ  float64
	ChiSquared  float64
	Beta        float64
	PointCount  int
	Converged   bool
	DOF         int
}

// ListTracks returns the stored tracks of a run in insertion order.
func (db *DB) ListTracks(runID string) ([]TrackRecord, error) {
	rows, err := db.Query(`
		SELECT id, run_id, t0, x0, y0, z0, vx, vy, vz,
		       chi_squared, beta, point_count, converged, degrees_of_freedom
		FROM tracks WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var r TrackRecord
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.T0, &r.X0, &r.Y0, &r.Z0, &r.VX, &r.VY, &r.VZ,
			&r.ChiSquared, &r.Beta, &r.PointCount, &r.Converged, &r.DOF,
		); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
