package lpt

// PredField maps tracks to their predicted positions on one frame
type PredField struct {
	Frame  int
	Tracks []*Track
	Points []Point3D
}

// NewPredField predicts every track on frame
func NewPredField(frame int, tracks []*Track, predictor Predictor) *PredField {
	pf := PredField{
		Frame:  frame,
		Tracks: tracks,
		Points: make([]Point3D, len(tracks)),
	}
	for i, track := range tracks {
		pf.Points[i] = predictor.Predict(track, frame)
	}
	return &pf
}

func (pf *PredField) Len() int {
	return len(pf.Tracks)
}
