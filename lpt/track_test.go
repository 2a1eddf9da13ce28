package lpt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func TestTrackAddNext(t *testing.T) {
	track := NewTrack(NewTracer3D(NewPoint3D(0, 0, 0), 2), 3)
	if track.GetState() != TrackShortActive || !track.IsActive() {
		t.Errorf("New track must be short-active, got %s", track.GetState())
	}
	if err := track.AddNext(NewTracer3D(NewPoint3D(1, 0, 0), 2), 5); err != nil {
		t.Error(err)
		return
	}
	err := track.AddNext(NewTracer3D(NewPoint3D(2, 0, 0), 2), 5)
	if !errors.Is(err, ErrFrameOrder) {
		t.Errorf("Expected frame order error, got %v", err)
	}
	if track.Len() != 2 {
		t.Errorf("Wrong track length: %d, expected 2", track.Len())
	}
	if track.LastFrame() != 5 {
		t.Errorf("Wrong last frame: %d, expected 5", track.LastFrame())
	}
	frames := track.GetFrames()
	frames[0] = 100
	if track.GetFrames()[0] != 3 {
		t.Errorf("GetFrames must return a copy")
	}
}

func TestTrackExitedIsFrozen(t *testing.T) {
	track := NewTrack(NewTracer3D(NewPoint3D(0, 0, 0), 2), 0)
	track.setState(TrackExited)
	if track.IsActive() {
		t.Errorf("Exited track must not be active")
	}
	if err := track.AddNext(NewTracer3D(NewPoint3D(1, 0, 0), 2), 1); err == nil {
		t.Errorf("Exited track must not accept objects")
	}
}

func TestTrackNoMatchTimes(t *testing.T) {
	track := NewTrack(NewTracer3D(NewPoint3D(0, 0, 0), 2), 0)
	for i := 0; i < 3; i++ {
		track.IncNoMatch()
	}
	if track.GetNoMatchTimes() != 3 {
		t.Errorf("Wrong no match times: %d, expected 3", track.GetNoMatchTimes())
	}
	track.ResetNoMatch()
	if track.GetNoMatchTimes() != 0 {
		t.Errorf("Wrong no match times: %d, expected 0", track.GetNoMatchTimes())
	}
}

func TestTrackSetID(t *testing.T) {
	track := NewTrack(NewTracer3D(NewPoint3D(0, 0, 0), 2), 0)
	newID := uuid.New()
	track.SetID(newID)
	if track.GetID() != newID {
		t.Errorf("Wrong ID: %s, expected %s", track.GetID(), newID)
	}
	empty := newEmptyTrack(newID, TrackInactive)
	if empty.Last() != nil || empty.LastFrame() != -1 {
		t.Errorf("Empty track must have no last object")
	}
}

func TestTrackStateString(t *testing.T) {
	states := map[TrackState]string{
		TrackShortActive: "short_active",
		TrackLongActive:  "long_active",
		TrackInactive:    "inactive",
		TrackExited:      "exited",
	}
	for state, name := range states {
		if state.String() != name {
			t.Errorf("Wrong name: %s, expected %s", state.String(), name)
		}
	}
}
