// Package trackstore persists track pools of shake-the-box runs in SQLite.
package trackstore

import (
	"database/sql"
	"fmt"

	"github.com/LdDl/lpt-go/lpt"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS lpt_tracks (
		run_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		object_kind TEXT NOT NULL,
		track_state TEXT NOT NULL,
		first_frame INTEGER NOT NULL,
		last_frame INTEGER NOT NULL,
		observation_count INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, track_id)
	);
	CREATE TABLE IF NOT EXISTS lpt_track_obs (
		run_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		frame_id INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		radius REAL,
		error REAL NOT NULL,
		n_cam INTEGER NOT NULL,
		PRIMARY KEY (run_id, track_id, frame_id)
	);
	CREATE TABLE IF NOT EXISTS lpt_track_views (
		run_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		frame_id INTEGER NOT NULL,
		cam_id INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		r REAL NOT NULL,
		PRIMARY KEY (run_id, track_id, frame_id, cam_id)
	);
	CREATE INDEX IF NOT EXISTS idx_lpt_tracks_state ON lpt_tracks (run_id, track_state);
`

// TrackStore keeps tracks of many runs; run id separates independent sequences
type TrackStore struct {
	db *sql.DB
}

// Open opens (or creates) database at path and ensures the schema. Use ":memory:" for a private in-memory store.
func Open(path string) (*TrackStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open track store: %w", err)
	}
	// in-memory databases live as long as their single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create track schema: %w", err)
	}
	return &TrackStore{db: db}, nil
}

// Close closes the database
func (store *TrackStore) Close() error {
	return store.db.Close()
}

// SaveTracks upserts tracks of the run. Snapshots of every given track are replaced as a whole.
func (store *TrackStore) SaveTracks(runID string, tracks []*lpt.Track) error {
	tx, err := store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, track := range tracks {
		if err := saveTrack(tx, runID, track); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tracks: %w", err)
	}
	return nil
}

func saveTrack(tx *sql.Tx, runID string, track *lpt.Track) error {
	last := track.Last()
	if last == nil {
		return fmt.Errorf("track %s is empty", track.GetID())
	}
	frames := track.GetFrames()
	trackID := track.GetID().String()

	// ON CONFLICT DO UPDATE keeps the row identity stable across saves
	_, err := tx.Exec(`
		INSERT INTO lpt_tracks (
			run_id, track_id, object_kind, track_state,
			first_frame, last_frame, observation_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, track_id) DO UPDATE SET
			object_kind = excluded.object_kind,
			track_state = excluded.track_state,
			first_frame = excluded.first_frame,
			last_frame = excluded.last_frame,
			observation_count = excluded.observation_count,
			updated_at = CURRENT_TIMESTAMP
	`,
		runID,
		trackID,
		last.GetKind().String(),
		track.GetState().String(),
		frames[0],
		frames[len(frames)-1],
		track.Len(),
	)
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", trackID, err)
	}

	if _, err := tx.Exec(`DELETE FROM lpt_track_obs WHERE run_id = ? AND track_id = ?`, runID, trackID); err != nil {
		return fmt.Errorf("clear observations of track %s: %w", trackID, err)
	}
	if _, err := tx.Exec(`DELETE FROM lpt_track_views WHERE run_id = ? AND track_id = ?`, runID, trackID); err != nil {
		return fmt.Errorf("clear views of track %s: %w", trackID, err)
	}

	obsStmt, err := tx.Prepare(`
		INSERT INTO lpt_track_obs (run_id, track_id, frame_id, x, y, z, radius, error, n_cam)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare observation insert: %w", err)
	}
	defer obsStmt.Close()
	viewStmt, err := tx.Prepare(`
		INSERT INTO lpt_track_views (run_id, track_id, frame_id, cam_id, x, y, r)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare view insert: %w", err)
	}
	defer viewStmt.Close()

	for i, obj := range track.GetObjects() {
		center := obj.GetCenter()
		var radius sql.NullFloat64
		if bubble, ok := obj.(*lpt.Bubble3D); ok {
			radius = sql.NullFloat64{Float64: bubble.Radius, Valid: true}
		}
		if _, err := obsStmt.Exec(runID, trackID, frames[i], center.X, center.Y, center.Z, radius, obj.GetError(), obj.NumViews()); err != nil {
			return fmt.Errorf("insert observation of track %s frame %d: %w", trackID, frames[i], err)
		}
		for _, view := range obj.GetViews() {
			if _, err := viewStmt.Exec(runID, trackID, frames[i], view.CamID, view.Obj.Center.X, view.Obj.Center.Y, view.Obj.RadiusPx); err != nil {
				return fmt.Errorf("insert view of track %s frame %d: %w", trackID, frames[i], err)
			}
		}
	}
	return nil
}

type storedObs struct {
	frame  int
	center lpt.Point3D
	radius sql.NullFloat64
	err    float64
	nCam   int
}

// LoadTracks returns tracks of the run being in given state, ordered by first frame.
// Tracer views get radius stored with them, tracerRadiusPx is used for the 3D tracer itself.
func (store *TrackStore) LoadTracks(runID string, state lpt.TrackState, tracerRadiusPx float64) ([]*lpt.Track, error) {
	rows, err := store.db.Query(`
		SELECT track_id, object_kind
		FROM lpt_tracks
		WHERE run_id = ? AND track_state = ?
		ORDER BY first_frame, track_id
	`, runID, state.String())
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	type header struct {
		id   string
		kind string
	}
	headers := make([]header, 0)
	for rows.Next() {
		var h header
		if err := rows.Scan(&h.id, &h.kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan track: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	rows.Close()

	tracks := make([]*lpt.Track, 0, len(headers))
	for _, h := range headers {
		id, err := uuid.Parse(h.id)
		if err != nil {
			return nil, fmt.Errorf("track id %q: %w", h.id, err)
		}
		kind, err := lpt.ParseObjectKind(h.kind)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", h.id, err)
		}
		track, err := store.loadTrack(runID, id, kind, state, tracerRadiusPx)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (store *TrackStore) loadTrack(runID string, id uuid.UUID, kind lpt.ObjectKind, state lpt.TrackState, tracerRadiusPx float64) (*lpt.Track, error) {
	trackID := id.String()
	rows, err := store.db.Query(`
		SELECT frame_id, x, y, z, radius, error, n_cam
		FROM lpt_track_obs
		WHERE run_id = ? AND track_id = ?
		ORDER BY frame_id
	`, runID, trackID)
	if err != nil {
		return nil, fmt.Errorf("query observations of track %s: %w", trackID, err)
	}
	observations := make([]storedObs, 0)
	for rows.Next() {
		var obs storedObs
		if err := rows.Scan(&obs.frame, &obs.center.X, &obs.center.Y, &obs.center.Z, &obs.radius, &obs.err, &obs.nCam); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan observation of track %s: %w", trackID, err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate observations of track %s: %w", trackID, err)
	}
	rows.Close()

	views, err := store.loadViews(runID, trackID)
	if err != nil {
		return nil, err
	}

	objs := make([]lpt.Object3D, len(observations))
	frames := make([]int, len(observations))
	for i, obs := range observations {
		var obj lpt.Object3D
		if kind == lpt.KindBubble {
			obj = lpt.NewBubble3D(obs.center, obs.radius.Float64)
		} else {
			obj = lpt.NewTracer3D(obs.center, tracerRadiusPx)
		}
		obj.SetError(obs.err)
		for _, view := range views[obs.frame] {
			if err := obj.AddView(view.CamID, view.Obj); err != nil {
				return nil, fmt.Errorf("track %s frame %d: %w", trackID, obs.frame, err)
			}
		}
		if obj.NumViews() != obs.nCam {
			return nil, fmt.Errorf("track %s frame %d: %w: %d views stored, %d expected", trackID, obs.frame, lpt.ErrSizeMismatch, obj.NumViews(), obs.nCam)
		}
		objs[i] = obj
		frames[i] = obs.frame
	}
	track, err := lpt.RestoreTrack(id, state, objs, frames)
	if err != nil {
		return nil, fmt.Errorf("restore track %s: %w", trackID, err)
	}
	return track, nil
}

func (store *TrackStore) loadViews(runID, trackID string) (map[int][]lpt.View, error) {
	rows, err := store.db.Query(`
		SELECT frame_id, cam_id, x, y, r
		FROM lpt_track_views
		WHERE run_id = ? AND track_id = ?
		ORDER BY frame_id, cam_id
	`, runID, trackID)
	if err != nil {
		return nil, fmt.Errorf("query views of track %s: %w", trackID, err)
	}
	defer rows.Close()

	views := make(map[int][]lpt.View)
	for rows.Next() {
		var frame int
		var view lpt.View
		if err := rows.Scan(&frame, &view.CamID, &view.Obj.Center.X, &view.Obj.Center.Y, &view.Obj.RadiusPx); err != nil {
			return nil, fmt.Errorf("scan view of track %s: %w", trackID, err)
		}
		views[frame] = append(views[frame], view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate views of track %s: %w", trackID, err)
	}
	return views, nil
}

// CountTracks returns number of tracks per state for the run
func (store *TrackStore) CountTracks(runID string) (map[lpt.TrackState]int, error) {
	rows, err := store.db.Query(`
		SELECT track_state, COUNT(*)
		FROM lpt_tracks
		WHERE run_id = ?
		GROUP BY track_state
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count tracks: %w", err)
	}
	defer rows.Close()

	counts := make(map[lpt.TrackState]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan track count: %w", err)
		}
		state, err := lpt.ParseTrackState(name)
		if err != nil {
			return nil, err
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

// DeleteRun removes every track of the run
func (store *TrackStore) DeleteRun(runID string) error {
	tx, err := store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"lpt_track_views", "lpt_track_obs", "lpt_tracks"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run deletion: %w", err)
	}
	return nil
}
