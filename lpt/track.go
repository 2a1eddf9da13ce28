package lpt

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TrackState is lifecycle stage of a track
type TrackState uint8

const (
	TrackShortActive TrackState = iota
	TrackLongActive
	TrackInactive
	TrackExited
)

func (state TrackState) String() string {
	switch state {
	case TrackShortActive:
		return "short_active"
	case TrackLongActive:
		return "long_active"
	case TrackInactive:
		return "inactive"
	case TrackExited:
		return "exited"
	default:
		return fmt.Sprintf("TrackState(%d)", state)
	}
}

// ParseTrackState is inverse of TrackState.String
func ParseTrackState(s string) (TrackState, error) {
	for _, state := range []TrackState{TrackShortActive, TrackLongActive, TrackInactive, TrackExited} {
		if state.String() == s {
			return state, nil
		}
	}
	return 0, errors.Errorf("unknown track state '%s'", s)
}

// Track is append-only, time ordered log of 3D objects.
// Appended objects are owned by the track and must not be modified by the caller afterwards.
type Track struct {
	id           uuid.UUID
	objects      []Object3D
	frames       []int
	state        TrackState
	active       bool
	noMatchTimes int
}

// NewTrack starts short-active track with its first object
func NewTrack(obj Object3D, frame int) *Track {
	track := Track{
		id:      uuid.New(),
		objects: make([]Object3D, 0, 8),
		frames:  make([]int, 0, 8),
		state:   TrackShortActive,
		active:  true,
	}
	track.objects = append(track.objects, obj)
	track.frames = append(track.frames, frame)
	return &track
}

// newEmptyTrack is used when loading tracks
func newEmptyTrack(id uuid.UUID, state TrackState) *Track {
	return &Track{
		id:     id,
		state:  state,
		active: state == TrackShortActive || state == TrackLongActive,
	}
}

// RestoreTrack rebuilds saved track. Frames must be strictly increasing.
func RestoreTrack(id uuid.UUID, state TrackState, objs []Object3D, frames []int) (*Track, error) {
	if len(objs) != len(frames) {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d objects vs %d frames", len(objs), len(frames))
	}
	track := newEmptyTrack(id, TrackShortActive)
	for i := range objs {
		if err := track.AddNext(objs[i], frames[i]); err != nil {
			return nil, err
		}
	}
	track.setState(state)
	return track, nil
}

// GetID returns track's identifier
func (track *Track) GetID() uuid.UUID {
	return track.id
}

// SetID sets track's identifier
func (track *Track) SetID(newID uuid.UUID) {
	track.id = newID
}

// AddNext appends object observed on frame. Frame must be greater than the last one.
func (track *Track) AddNext(obj Object3D, frame int) error {
	if track.state == TrackExited {
		return errors.Errorf("track %s is exited", track.id)
	}
	if n := len(track.frames); n > 0 && frame <= track.frames[n-1] {
		return errors.Wrapf(ErrFrameOrder, "track %s: frame %d after %d", track.id, frame, track.frames[n-1])
	}
	track.objects = append(track.objects, obj)
	track.frames = append(track.frames, frame)
	return nil
}

// Len returns number of snapshots
func (track *Track) Len() int {
	return len(track.objects)
}

// GetObjects returns copy of snapshot list; objects themselves are shared
func (track *Track) GetObjects() []Object3D {
	objects := make([]Object3D, len(track.objects))
	copy(objects, track.objects)
	return objects
}

// GetFrames returns copy of frame indices
func (track *Track) GetFrames() []int {
	frames := make([]int, len(track.frames))
	copy(frames, track.frames)
	return frames
}

// Last returns the most recent object or nil for empty track
func (track *Track) Last() Object3D {
	if len(track.objects) == 0 {
		return nil
	}
	return track.objects[len(track.objects)-1]
}

// LastFrame returns frame of the most recent object or -1
func (track *Track) LastFrame() int {
	if len(track.frames) == 0 {
		return -1
	}
	return track.frames[len(track.frames)-1]
}

// tail returns frames and centers of the last n snapshots
func (track *Track) tail(n int) ([]int, []Point3D) {
	start := 0
	if n > 0 && len(track.objects) > n {
		start = len(track.objects) - n
	}
	frames := make([]int, 0, len(track.objects)-start)
	centers := make([]Point3D, 0, len(track.objects)-start)
	for i := start; i < len(track.objects); i++ {
		frames = append(frames, track.frames[i])
		centers = append(centers, track.objects[i].GetCenter())
	}
	return frames, centers
}

// GetState returns lifecycle stage
func (track *Track) GetState() TrackState {
	return track.state
}

func (track *Track) setState(state TrackState) {
	track.state = state
	track.active = state == TrackShortActive || state == TrackLongActive
}

// IsActive reports whether track was linked recently
func (track *Track) IsActive() bool {
	return track.active
}

// GetNoMatchTimes returns number of consecutive frames without link
func (track *Track) GetNoMatchTimes() int {
	return track.noMatchTimes
}

// IncNoMatch increases track's no match times
func (track *Track) IncNoMatch() {
	track.noMatchTimes++
}

// ResetNoMatch resets track's no match times
func (track *Track) ResetNoMatch() {
	track.noMatchTimes = 0
}
