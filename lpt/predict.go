package lpt

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Predictor estimates where a track will be on a given frame
type Predictor interface {
	Predict(track *Track, frame int) Point3D
}

// polyFit fits polynomial of given order to (t, v) in least squares sense.
// Coefficients are in increasing power order.
func polyFit(ts, vs []float64, order int) ([]float64, error) {
	n := len(ts)
	if n != len(vs) {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d abscissas vs %d values", n, len(vs))
	}
	if n < order+1 {
		return nil, errors.Errorf("%d points are not enough for order %d", n, order)
	}
	a := mat.NewDense(n, order+1, nil)
	for i, t := range ts {
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= t
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), vs...))
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, errors.Wrap(err, "least squares")
	}
	coeffs := make([]float64, order+1)
	for j := range coeffs {
		coeffs[j] = x.AtVec(j)
	}
	return coeffs, nil
}

func polyEval(coeffs []float64, t float64) float64 {
	v := 0.0
	for j := len(coeffs) - 1; j >= 0; j-- {
		v = v*t + coeffs[j]
	}
	return v
}

// fitTrack fits every coordinate against frame offset from the last frame
func fitTrack(frames []int, centers []Point3D, order int) ([3][]float64, error) {
	var coeffs [3][]float64
	last := frames[len(frames)-1]
	ts := make([]float64, len(frames))
	for i, f := range frames {
		ts[i] = float64(f - last)
	}
	coords := [3][]float64{make([]float64, len(centers)), make([]float64, len(centers)), make([]float64, len(centers))}
	for i, c := range centers {
		coords[0][i], coords[1][i], coords[2][i] = c.X, c.Y, c.Z
	}
	for k := range coords {
		fit, err := polyFit(ts, coords[k], order)
		if err != nil {
			return coeffs, err
		}
		coeffs[k] = fit
	}
	return coeffs, nil
}

// LinearFitPredictor extrapolates least squares polynomial over the last Window snapshots
type LinearFitPredictor struct {
	Window int
	// Order 1 is constant velocity, 2 is constant acceleration
	Order int
	// Tracks shorter than MinHistory are predicted at their last position
	MinHistory int
}

func NewLinearFitPredictor(window, order int) *LinearFitPredictor {
	return &LinearFitPredictor{
		Window:     window,
		Order:      order,
		MinHistory: 2,
	}
}

func (predictor *LinearFitPredictor) Predict(track *Track, frame int) Point3D {
	frames, centers := track.tail(predictor.Window)
	if len(centers) == 0 {
		return Point3D{}
	}
	last := centers[len(centers)-1]
	if len(centers) < maxInt(predictor.MinHistory, 2) {
		return last
	}
	order := minInt(maxInt(predictor.Order, 1), len(centers)-1)
	coeffs, err := fitTrack(frames, centers, order)
	if err != nil {
		return last
	}
	t := float64(frame - frames[len(frames)-1])
	return Point3D{X: polyEval(coeffs[0], t), Y: polyEval(coeffs[1], t), Z: polyEval(coeffs[2], t)}
}

// KalmanPredictor replays recent history through constant velocity Kalman filters:
// one for (x, y) and one for (z, 0). One predict step is made per frame.
type KalmanPredictor struct {
	Window  int
	StdDevA float64
	StdDevM float64
}

func NewKalmanPredictor(window int, stdDevA, stdDevM float64) *KalmanPredictor {
	return &KalmanPredictor{
		Window:  window,
		StdDevA: stdDevA,
		StdDevM: stdDevM,
	}
}

func (predictor *KalmanPredictor) Predict(track *Track, frame int) Point3D {
	frames, centers := track.tail(predictor.Window)
	if len(centers) == 0 {
		return Point3D{}
	}
	last := centers[len(centers)-1]
	if len(centers) < 2 {
		return last
	}
	dt := 1.0
	first := centers[0]
	kfXY := kalman_filter.NewKalman2D(dt, 0, 0, predictor.StdDevA, predictor.StdDevM, predictor.StdDevM, kalman_filter.WithState2D(first.X, first.Y))
	kfZ := kalman_filter.NewKalman2D(dt, 0, 0, predictor.StdDevA, predictor.StdDevM, predictor.StdDevM, kalman_filter.WithState2D(first.Z, 0))
	for i := 1; i < len(centers); i++ {
		for step := frames[i-1]; step < frames[i]; step++ {
			kfXY.Predict()
			kfZ.Predict()
		}
		if err := kfXY.Update(centers[i].X, centers[i].Y); err != nil {
			return last
		}
		if err := kfZ.Update(centers[i].Z, 0); err != nil {
			return last
		}
	}
	for step := frames[len(frames)-1]; step < frame; step++ {
		kfXY.Predict()
		kfZ.Predict()
	}
	x, y := kfXY.GetState()
	z, _ := kfZ.GetState()
	if !isFinite(x) || !isFinite(y) || !isFinite(z) {
		return last
	}
	return Point3D{X: x, Y: y, Z: z}
}

// CheckLinearFit fits straight line in time to the track and compares RMS 3D residual with tol
func CheckLinearFit(track *Track, tol float64) bool {
	frames, centers := track.tail(0)
	if len(centers) < 3 {
		return true
	}
	coeffs, err := fitTrack(frames, centers, 1)
	if err != nil {
		return false
	}
	last := frames[len(frames)-1]
	residuals := make([]float64, len(centers))
	for i, c := range centers {
		t := float64(frames[i] - last)
		fit := Point3D{X: polyEval(coeffs[0], t), Y: polyEval(coeffs[1], t), Z: polyEval(coeffs[2], t)}
		d := distance3D(c, fit)
		residuals[i] = d * d
	}
	return math.Sqrt(stat.Mean(residuals, nil)) <= tol
}
