package lpt

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Frame  int
	Center Point3D
	Error  float64
	Radius float64
	Views  []View
}

func snapshots(track *Track) []snapshot {
	frames := track.GetFrames()
	result := make([]snapshot, track.Len())
	for i, obj := range track.GetObjects() {
		result[i] = snapshot{
			Frame:  frames[i],
			Center: obj.GetCenter(),
			Error:  obj.GetError(),
			Views:  obj.GetViews(),
		}
		if bubble, ok := obj.(*Bubble3D); ok {
			result[i].Radius = bubble.Radius
		}
	}
	return result
}

func projectedTrack(t *testing.T, rig *CameraRig, newObj func(Point3D) Object3D, frames []int) *Track {
	var track *Track
	for i, f := range frames {
		obj := newObj(NewPoint3D(0.1*float64(f)+0.123456789, -1.5, 2.25))
		require.NoError(t, obj.Project(rig, []int{0, 1}))
		obj.SetError(0.01 * float64(i))
		if track == nil {
			track = NewTrack(obj, f)
			continue
		}
		require.NoError(t, track.AddNext(obj, f))
	}
	return track
}

func TestTrackCSVRoundTripTracer(t *testing.T) {
	rig := twoCameraRig()
	newTracer := func(p Point3D) Object3D { return NewTracer3D(p, 2) }
	tracks := []*Track{
		projectedTrack(t, rig, newTracer, []int{0, 1, 2}),
		projectedTrack(t, rig, newTracer, []int{1, 3}),
	}
	// a snapshot seen by camera 1 only
	partial := NewTracer3D(NewPoint3D(1, 1, 1), 2)
	require.NoError(t, partial.Project(rig, []int{1}))
	require.NoError(t, tracks[1].AddNext(partial, 4))

	codec := TrackCSV{NumCameras: 2, Kind: KindTracer, TracerRadiusPx: 2}
	var buf bytes.Buffer
	require.NoError(t, codec.Write(&buf, tracks))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "TrackID,FrameID,X,Y,Z,Error,NCam,cam0_x,cam0_y,cam1_x,cam1_y", lines[0])
	assert.Contains(t, lines[6], ",1,-10,-10,")

	loaded, err := codec.Read(&buf, TrackLongActive)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for i := range tracks {
		assert.Equal(t, tracks[i].GetID(), loaded[i].GetID())
		assert.Equal(t, TrackLongActive, loaded[i].GetState())
		if diff := cmp.Diff(snapshots(tracks[i]), snapshots(loaded[i]), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("track %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestTrackCSVRoundTripBubble(t *testing.T) {
	rig := twoCameraRig()
	newBubble := func(p Point3D) Object3D { return NewBubble3D(p, 0.75) }
	tracks := []*Track{projectedTrack(t, rig, newBubble, []int{5, 6, 8})}

	codec := TrackCSV{NumCameras: 2, Kind: KindBubble}
	var buf bytes.Buffer
	require.NoError(t, codec.Write(&buf, tracks))
	assert.True(t, strings.HasPrefix(buf.String(), "TrackID,FrameID,X,Y,Z,R,Error,NCam,cam0_x,cam0_y,cam0_r,cam1_x,cam1_y,cam1_r\n"))

	loaded, err := codec.Read(&buf, TrackExited)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, TrackExited, loaded[0].GetState())
	assert.False(t, loaded[0].IsActive())
	if diff := cmp.Diff(snapshots(tracks[0]), snapshots(loaded[0]), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("bubble track mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackCSVRejectsKindMismatch(t *testing.T) {
	track := NewTrack(NewBubble3D(NewPoint3D(0, 0, 0), 1), 0)
	codec := TrackCSV{NumCameras: 2, Kind: KindTracer}
	assert.Error(t, codec.Write(&bytes.Buffer{}, []*Track{track}))
}

func TestTrackCSVReadErrors(t *testing.T) {
	codec := TrackCSV{NumCameras: 2, Kind: KindTracer, TracerRadiusPx: 2}
	header := "TrackID,FrameID,X,Y,Z,Error,NCam,cam0_x,cam0_y,cam1_x,cam1_y\n"
	id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

	_, err := codec.Read(strings.NewReader(header+id+",0,1,2,3,0,2,10,10,-10,-10\n"), TrackShortActive)
	assert.True(t, errors.Is(err, ErrSizeMismatch))

	_, err = codec.Read(strings.NewReader(header+id+",3,1,2,3,0,1,10,10,-10,-10\n"+id+",2,1,2,3,0,1,10,10,-10,-10\n"), TrackShortActive)
	assert.True(t, errors.Is(err, ErrFrameOrder))

	_, err = codec.Read(strings.NewReader(header+"not-an-id,0,1,2,3,0,1,10,10,-10,-10\n"), TrackShortActive)
	assert.Error(t, err)

	_, err = codec.Read(strings.NewReader(header+id+",0,1,2\n"), TrackShortActive)
	assert.Error(t, err)

	loaded, err := codec.Read(strings.NewReader(""), TrackShortActive)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSaveLoadTracks(t *testing.T) {
	rig := twoCameraRig()
	dir := t.TempDir()
	stb := newTestSTB(DefaultSTBConfig())

	short := linearTrack(NewPoint3D(0, 0, 0), NewPoint3D(0.1, 0, 0), 2)
	short.frames = []int{8, 9}
	long := linearTrack(NewPoint3D(1, 0, 0), NewPoint3D(0.1, 0, 0), 5)
	long.frames = []int{3, 4, 5, 6, 7}
	long.setState(TrackLongActive)
	inactive := linearTrack(NewPoint3D(2, 0, 0), NewPoint3D(0.1, 0, 0), 4)
	inactive.setState(TrackInactive)
	for _, track := range []*Track{short, long, inactive} {
		for _, obj := range track.objects {
			require.NoError(t, obj.Project(rig, []int{0, 1}))
		}
	}
	stb.SetPools([]*Track{short}, []*Track{long}, []*Track{inactive}, nil, 9)
	require.NoError(t, stb.SaveTracks(dir, 9))

	for _, pool := range []string{PoolShortActive, PoolLongActive, PoolLongInactive, PoolExited} {
		_, err := os.Stat(filepath.Join(dir, pool+"_9.csv"))
		assert.NoError(t, err, pool)
	}

	restored := newTestSTB(DefaultSTBConfig())
	require.NoError(t, restored.LoadTracks(dir, 9))
	require.Len(t, restored.GetShortActive(), 1)
	require.Len(t, restored.GetLongActive(), 1)
	require.Len(t, restored.GetLongInactive(), 1)
	assert.Empty(t, restored.GetExited())

	gotLong := restored.GetLongActive()[0]
	assert.Equal(t, long.GetID(), gotLong.GetID())
	assert.Equal(t, []int{3, 4, 5, 6, 7}, gotLong.GetFrames())
	assert.Equal(t, 2, gotLong.GetNoMatchTimes())
	assert.Equal(t, 6, restored.GetLongInactive()[0].GetNoMatchTimes())

	// resumed manager continues after the saved frame
	_, err := restored.Link(9, nil)
	assert.True(t, errors.Is(err, ErrFrameOrder))
	_, err = restored.Link(10, nil)
	assert.NoError(t, err)

	// frames without saved files load as empty pools
	empty := newTestSTB(DefaultSTBConfig())
	require.NoError(t, empty.LoadTracks(dir, 42))
	assert.Empty(t, empty.GetLongActive())
}
