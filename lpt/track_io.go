package lpt

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ImgPtInit marks cameras that did not observe an object in saved rows
const ImgPtInit = -10.0

// Track pool file prefixes
const (
	PoolShortActive  = "ShortTrackActive"
	PoolLongActive   = "LongTrackActive"
	PoolLongInactive = "LongTrackInactive"
	PoolExited       = "ExitTrack"
)

// TrackCSV encodes tracks as one row per object:
// TrackID, FrameID, X, Y, Z, [R for bubbles], Error, NCam, then x, y (and r for bubbles) of every camera
// with ImgPtInit for cameras without a view.
type TrackCSV struct {
	NumCameras int
	Kind       ObjectKind
	// Nominal radius assigned to loaded tracer views
	TracerRadiusPx float64
}

func (codec TrackCSV) perCamera() int {
	if codec.Kind == KindBubble {
		return 3
	}
	return 2
}

func (codec TrackCSV) header() []string {
	header := []string{"TrackID", "FrameID", "X", "Y", "Z"}
	if codec.Kind == KindBubble {
		header = append(header, "R")
	}
	header = append(header, "Error", "NCam")
	for camID := 0; camID < codec.NumCameras; camID++ {
		header = append(header, fmt.Sprintf("cam%d_x", camID), fmt.Sprintf("cam%d_y", camID))
		if codec.Kind == KindBubble {
			header = append(header, fmt.Sprintf("cam%d_r", camID))
		}
	}
	return header
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write writes header and every snapshot of every track
func (codec TrackCSV) Write(w io.Writer, tracks []*Track) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(codec.header()); err != nil {
		return errors.Wrap(err, "can't write header")
	}
	for _, track := range tracks {
		frames := track.GetFrames()
		for i, obj := range track.GetObjects() {
			if obj.GetKind() != codec.Kind {
				return errors.Errorf("track %s holds %s, expected %s", track.GetID(), obj.GetKind(), codec.Kind)
			}
			center := obj.GetCenter()
			row := []string{track.GetID().String(), strconv.Itoa(frames[i]), formatFloat(center.X), formatFloat(center.Y), formatFloat(center.Z)}
			if bubble, ok := obj.(*Bubble3D); ok {
				row = append(row, formatFloat(bubble.Radius))
			}
			row = append(row, formatFloat(obj.GetError()), strconv.Itoa(obj.NumViews()))
			for camID := 0; camID < codec.NumCameras; camID++ {
				view, ok := obj.GetView(camID)
				if !ok {
					for k := 0; k < codec.perCamera(); k++ {
						row = append(row, formatFloat(ImgPtInit))
					}
					continue
				}
				row = append(row, formatFloat(view.Center.X), formatFloat(view.Center.Y))
				if codec.Kind == KindBubble {
					row = append(row, formatFloat(view.RadiusPx))
				}
			}
			if err := writer.Write(row); err != nil {
				return errors.Wrapf(err, "can't write track %s", track.GetID())
			}
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "can't flush tracks")
}

// Read parses rows written by Write. Rows of one track must be contiguous and ordered by frame.
func (codec TrackCSV) Read(r io.Reader, state TrackState) ([]*Track, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(codec.header())
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "can't read tracks")
	}
	if len(records) == 0 {
		return []*Track{}, nil
	}
	tracks := make([]*Track, 0)
	byID := make(map[uuid.UUID]*Track)
	for line, record := range records[1:] {
		id, frame, obj, err := codec.parseRow(record)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", line+2)
		}
		track, ok := byID[id]
		if !ok {
			track = newEmptyTrack(id, state)
			byID[id] = track
			tracks = append(tracks, track)
		}
		track.objects = append(track.objects, obj)
		if n := len(track.frames); n > 0 && frame <= track.frames[n-1] {
			return nil, errors.Wrapf(ErrFrameOrder, "row %d: track %s frame %d after %d", line+2, id, frame, track.frames[n-1])
		}
		track.frames = append(track.frames, frame)
	}
	return tracks, nil
}

func (codec TrackCSV) parseRow(record []string) (uuid.UUID, int, Object3D, error) {
	id, err := uuid.Parse(record[0])
	if err != nil {
		return uuid.UUID{}, 0, nil, errors.Wrap(err, "track id")
	}
	frame, err := strconv.Atoi(record[1])
	if err != nil {
		return uuid.UUID{}, 0, nil, errors.Wrap(err, "frame id")
	}
	values := make([]float64, len(record)-2)
	for i, s := range record[2:] {
		values[i], err = strconv.ParseFloat(s, 64)
		if err != nil {
			return uuid.UUID{}, 0, nil, errors.Wrapf(err, "column %d", i+3)
		}
	}
	center := Point3D{X: values[0], Y: values[1], Z: values[2]}
	pos := 3
	var obj Object3D
	if codec.Kind == KindBubble {
		obj = NewBubble3D(center, values[pos])
		pos++
	} else {
		obj = NewTracer3D(center, codec.TracerRadiusPx)
	}
	obj.SetError(values[pos])
	nCam := int(values[pos+1])
	pos += 2
	for camID := 0; camID < codec.NumCameras; camID++ {
		x, y := values[pos], values[pos+1]
		radius := codec.TracerRadiusPx
		if codec.Kind == KindBubble {
			radius = values[pos+2]
		}
		pos += codec.perCamera()
		if x == ImgPtInit && y == ImgPtInit {
			continue
		}
		if err := obj.AddView(camID, Object2D{Center: Point2D{X: x, Y: y}, RadiusPx: radius}); err != nil {
			return uuid.UUID{}, 0, nil, err
		}
	}
	if nCam != obj.NumViews() {
		return uuid.UUID{}, 0, nil, errors.Wrapf(ErrSizeMismatch, "camera count %d vs %d views", nCam, obj.NumViews())
	}
	return id, frame, obj, nil
}

// trackCodec returns codec matching manager's geometry and object type
func (stb *STB) trackCodec() TrackCSV {
	return TrackCSV{
		NumCameras:     stb.geom.NumCameras(),
		Kind:           stb.kind,
		TracerRadiusPx: stb.tracerCfg.RadiusPx,
	}
}

func poolPath(dir, pool string, t int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.csv", pool, t))
}

// SaveTracks writes every pool into dir as <Pool>_<t>.csv
func (stb *STB) SaveTracks(dir string, t int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "can't create directory %s", dir)
	}
	codec := stb.trackCodec()
	pools := []struct {
		name   string
		tracks []*Track
	}{
		{PoolShortActive, stb.shortActive},
		{PoolLongActive, stb.longActive},
		{PoolLongInactive, stb.longInactive},
		{PoolExited, stb.exited},
	}
	for _, pool := range pools {
		path := poolPath(dir, pool.name, t)
		file, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "can't create %s", path)
		}
		if err := codec.Write(file, pool.tracks); err != nil {
			file.Close()
			return errors.Wrapf(err, "can't save %s", path)
		}
		if err := file.Close(); err != nil {
			return errors.Wrapf(err, "can't close %s", path)
		}
	}
	return nil
}

// LoadTracks replaces pools with files saved for frame t. Missing files mean empty pools.
func (stb *STB) LoadTracks(dir string, t int) error {
	codec := stb.trackCodec()
	load := func(pool string, state TrackState) ([]*Track, error) {
		path := poolPath(dir, pool, t)
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return []*Track{}, nil
			}
			return nil, errors.Wrapf(err, "can't open %s", path)
		}
		defer file.Close()
		tracks, err := codec.Read(file, state)
		if err != nil {
			return nil, errors.Wrapf(err, "can't load %s", path)
		}
		return tracks, nil
	}
	shortActive, err := load(PoolShortActive, TrackShortActive)
	if err != nil {
		return err
	}
	longActive, err := load(PoolLongActive, TrackLongActive)
	if err != nil {
		return err
	}
	longInactive, err := load(PoolLongInactive, TrackInactive)
	if err != nil {
		return err
	}
	exited, err := load(PoolExited, TrackExited)
	if err != nil {
		return err
	}
	stb.ResumePools(shortActive, longActive, longInactive, exited, t)
	return nil
}

// ResumePools installs tracks saved after frame t. Long tracks count frames since their last link as misses.
func (stb *STB) ResumePools(shortActive, longActive, longInactive, exited []*Track, t int) {
	for _, track := range longActive {
		track.noMatchTimes = maxInt(t-track.LastFrame(), 0)
	}
	for _, track := range longInactive {
		track.noMatchTimes = maxInt(t-track.LastFrame(), 0)
	}
	stb.SetPools(shortActive, longActive, longInactive, exited, t)
}
