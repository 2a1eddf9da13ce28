package trackstore

import (
	"path/filepath"
	"testing"

	"github.com/LdDl/lpt-go/lpt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *TrackStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tracks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func tracerTrack(t *testing.T, state lpt.TrackState, firstFrame, n int) *lpt.Track {
	t.Helper()
	objs := make([]lpt.Object3D, n)
	frames := make([]int, n)
	for i := 0; i < n; i++ {
		obj := lpt.NewTracer3D(lpt.NewPoint3D(float64(i), 2*float64(i), -1), 2)
		obj.SetError(0.01 * float64(i))
		require.NoError(t, obj.AddView(0, lpt.Object2D{Center: lpt.NewPoint2D(10+float64(i), 20), RadiusPx: 2}))
		require.NoError(t, obj.AddView(2, lpt.Object2D{Center: lpt.NewPoint2D(30, 40+float64(i)), RadiusPx: 2}))
		objs[i] = obj
		frames[i] = firstFrame + i
	}
	track, err := lpt.RestoreTrack(uuid.New(), state, objs, frames)
	require.NoError(t, err)
	return track
}

func TestSaveLoadTracks(t *testing.T) {
	store := setupTestStore(t)
	long := tracerTrack(t, lpt.TrackLongActive, 3, 5)
	inactive := tracerTrack(t, lpt.TrackInactive, 0, 4)
	require.NoError(t, store.SaveTracks("run-a", []*lpt.Track{long, inactive}))

	loaded, err := store.LoadTracks("run-a", lpt.TrackLongActive, 2)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, long.GetID(), got.GetID())
	assert.Equal(t, lpt.TrackLongActive, got.GetState())
	assert.Equal(t, long.GetFrames(), got.GetFrames())
	for i, obj := range got.GetObjects() {
		want := long.GetObjects()[i]
		assert.Equal(t, lpt.KindTracer, obj.GetKind())
		assert.InDelta(t, want.GetCenter().X, obj.GetCenter().X, 1e-12)
		assert.InDelta(t, want.GetCenter().Y, obj.GetCenter().Y, 1e-12)
		assert.InDelta(t, want.GetError(), obj.GetError(), 1e-12)
		assert.Equal(t, want.GetViews(), obj.GetViews())
	}

	other, err := store.LoadTracks("run-b", lpt.TrackLongActive, 2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaveTracksUpsert(t *testing.T) {
	store := setupTestStore(t)
	track := tracerTrack(t, lpt.TrackLongActive, 0, 3)
	require.NoError(t, store.SaveTracks("run", []*lpt.Track{track}))

	// same id saved later as exited with a longer history
	grown := tracerTrack(t, lpt.TrackExited, 0, 6)
	grown.SetID(track.GetID())
	require.NoError(t, store.SaveTracks("run", []*lpt.Track{grown}))

	counts, err := store.CountTracks("run")
	require.NoError(t, err)
	assert.Equal(t, map[lpt.TrackState]int{lpt.TrackExited: 1}, counts)

	loaded, err := store.LoadTracks("run", lpt.TrackExited, 2)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 6, loaded[0].Len())
}

func TestSaveLoadBubbles(t *testing.T) {
	store := setupTestStore(t)
	objs := make([]lpt.Object3D, 0, 2)
	for i := 0; i < 2; i++ {
		bubble := lpt.NewBubble3D(lpt.NewPoint3D(0, 0, float64(i)), 1.5+0.1*float64(i))
		require.NoError(t, bubble.AddView(1, lpt.Object2D{Center: lpt.NewPoint2D(5, 6), RadiusPx: 7.5}))
		objs = append(objs, bubble)
	}
	track, err := lpt.RestoreTrack(uuid.New(), lpt.TrackShortActive, objs, []int{10, 11})
	require.NoError(t, err)
	require.NoError(t, store.SaveTracks("bubbles", []*lpt.Track{track}))

	loaded, err := store.LoadTracks("bubbles", lpt.TrackShortActive, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	last, ok := loaded[0].Last().(*lpt.Bubble3D)
	require.True(t, ok)
	assert.InDelta(t, 1.6, last.Radius, 1e-12)
	view, ok := last.GetView(1)
	require.True(t, ok)
	assert.InDelta(t, 7.5, view.RadiusPx, 1e-12)
}

func TestDeleteRun(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.SaveTracks("keep", []*lpt.Track{tracerTrack(t, lpt.TrackLongActive, 0, 4)}))
	require.NoError(t, store.SaveTracks("drop", []*lpt.Track{tracerTrack(t, lpt.TrackLongActive, 0, 4)}))
	require.NoError(t, store.DeleteRun("drop"))

	counts, err := store.CountTracks("drop")
	require.NoError(t, err)
	assert.Empty(t, counts)
	counts, err = store.CountTracks("keep")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[lpt.TrackLongActive])
}

func TestSaveEmptyTrack(t *testing.T) {
	store := setupTestStore(t)
	track, err := lpt.RestoreTrack(uuid.New(), lpt.TrackShortActive, nil, nil)
	require.NoError(t, err)
	assert.Error(t, store.SaveTracks("run", []*lpt.Track{track}))
}
