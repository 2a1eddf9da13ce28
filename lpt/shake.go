package lpt

import (
	"log/slog"
	"math"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ShakeConfig holds parameters of iterative position refinement
type ShakeConfig struct {
	// Initial perturbation step in world units
	ShakeWidth float64 `yaml:"width"`
	// Step halving stops when step drops below Tol3D
	Tol3D float64 `yaml:"tol3D"`
	// Objects scoring below ScoreMin are ghosts
	ScoreMin float64 `yaml:"scoreMin"`
	// Number of shake loops, residual images are refreshed between loops
	NLoop int `yaml:"nLoop"`
	// Iteration cap per step size
	MaxIter int `yaml:"maxIter"`
	// Extra pixels around footprint in augmented crops
	MarginPx int `yaml:"marginPx"`
	// View is occluded when mean residual in footprint exceeds OcclusionRatio * model peak. Zero disables the check
	OcclusionRatio float64 `yaml:"occlusionRatio"`
	// Objects closer than RepeatTol are duplicates
	RepeatTol float64 `yaml:"repeatTol"`
	// Worker pool size, non-positive means number of CPUs
	NThread int `yaml:"nThread"`
}

// DefaultShakeConfig returns commonly used values for millimetre scale setups
func DefaultShakeConfig() ShakeConfig {
	return ShakeConfig{
		ShakeWidth:     0.25,
		Tol3D:          1e-3,
		ScoreMin:       0.1,
		NLoop:          4,
		MaxIter:        50,
		MarginPx:       2,
		OcclusionRatio: 0,
		RepeatTol:      0.1,
		NThread:        0,
	}
}

func workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// ShakeResult describes single object refinement
type ShakeResult struct {
	InitialScore float64
	Score        float64
	// Trace holds accepted scores, it never decreases
	Trace      []float64
	Iterations int
	Converged  bool
	ValidViews int
}

// ShakeStats is diagnostics of the last RunShake call. Slices follow input order.
type ShakeStats struct {
	Scores          []float64
	IsGhost         []bool
	IsRepeated      []bool
	IsUnrecoverable []bool
	// Object reached iteration cap while still improving; it is kept at the best position found
	IsNonConvergent []bool
	NGhost          int
	NRepeated       int
	NUnrecoverable  int
	NNonConvergent  int
}

// Shaker refines 3D objects against camera images
type Shaker struct {
	geom         Geometry
	camIDs       []int
	model        ScoreModel
	cfg          ShakeConfig
	maxIntensity float64
	aggregate    Aggregator
	logger       *slog.Logger

	residual *ResidualImages
	stats    ShakeStats
}

// ShakerOption customizes Shaker
type ShakerOption func(*Shaker)

// WithAggregator replaces mean aggregation of per-camera scores
func WithAggregator(aggregate Aggregator) ShakerOption {
	return func(shaker *Shaker) {
		shaker.aggregate = aggregate
	}
}

// WithShakerLogger sets logger
func WithShakerLogger(logger *slog.Logger) ShakerOption {
	return func(shaker *Shaker) {
		shaker.logger = logger
	}
}

// NewShaker creates shaker working on given cameras
func NewShaker(geom Geometry, camIDs []int, model ScoreModel, cfg ShakeConfig, maxIntensity float64, options ...ShakerOption) *Shaker {
	shaker := Shaker{
		geom:         geom,
		camIDs:       append([]int(nil), camIDs...),
		model:        model,
		cfg:          cfg,
		maxIntensity: maxIntensity,
		aggregate:    MeanAggregator,
		logger:       slog.Default(),
	}
	for _, option := range options {
		option(&shaker)
	}
	return &shaker
}

// Stats returns diagnostics of the last RunShake
func (shaker *Shaker) Stats() ShakeStats {
	return shaker.stats
}

// Residual returns residual images left by the last RunShake: originals minus surviving objects
func (shaker *Shaker) Residual() *ResidualImages {
	return shaker.residual
}

// Model returns score model
func (shaker *Shaker) Model() ScoreModel {
	return shaker.model
}

// reproject updates views on every camera, dropping cameras where projection fails or leaves the sensor
func (shaker *Shaker) reproject(obj Object3D) int {
	for _, camID := range shaker.camIDs {
		if err := obj.Project(shaker.geom, []int{camID}); err != nil {
			shaker.logger.Debug("camera dropped",
				slog.Int("camera", camID),
				slog.Any("error", err),
			)
			obj.RemoveView(camID)
			continue
		}
		if view, ok := obj.GetView(camID); ok && !InImage(shaker.geom, camID, view.Center) {
			obj.RemoveView(camID)
		}
	}
	return obj.NumViews()
}

// RunShake refines objects on images (indexed by camera id) and filters ghosts and duplicates.
// Returned survivors are clones in input order. Residual() afterwards holds images minus survivors.
func (shaker *Shaker) RunShake(objs []Object3D, images []*Image) ([]Object3D, error) {
	residual, err := NewResidualImages(shaker.camIDs, images, shaker.maxIntensity)
	if err != nil {
		return nil, errors.Wrap(err, "can't initialize residual images")
	}
	n := len(objs)
	stats := ShakeStats{
		Scores:          make([]float64, n),
		IsGhost:         make([]bool, n),
		IsRepeated:      make([]bool, n),
		IsUnrecoverable: make([]bool, n),
		IsNonConvergent: make([]bool, n),
	}
	work := make([]Object3D, n)
	alive := make([]bool, n)
	for i, obj := range objs {
		if obj.GetKind() != shaker.model.Kind() {
			return nil, errors.Errorf("object %d is %s, shaker works with %s", i, obj.GetKind(), shaker.model.Kind())
		}
		work[i] = obj.Clone()
		if shaker.reproject(work[i]) < shaker.model.MinViews() {
			stats.IsUnrecoverable[i] = true
			continue
		}
		alive[i] = true
		residual.Subtract(work[i], shaker.model)
	}

	results := make([]ShakeResult, n)
	nThread := workers(shaker.cfg.NThread)
	for loop := 0; loop < maxInt(shaker.cfg.NLoop, 1); loop++ {
		step := shaker.cfg.ShakeWidth / math.Pow(2, float64(loop))
		augs := make([]ImgAugList, n)
		previous := make([]Object3D, n)
		for i := range work {
			if !alive[i] {
				continue
			}
			augs[i] = residual.Augment(work[i], shaker.model, shaker.cfg.MarginPx)
			previous[i] = work[i].Clone()
		}

		var eg errgroup.Group
		eg.SetLimit(nThread)
		for i := range work {
			if !alive[i] {
				continue
			}
			i := i
			eg.Go(func() error {
				results[i] = shaker.ShakeOne(work[i], augs[i], step)
				return nil
			})
		}
		_ = eg.Wait()

		for i := range work {
			if !alive[i] {
				continue
			}
			residual.Restore(previous[i], shaker.model)
			if results[i].ValidViews < shaker.model.MinViews() {
				alive[i] = false
				stats.IsUnrecoverable[i] = true
				continue
			}
			residual.Subtract(work[i], shaker.model)
		}
	}

	candidates := make([]Object3D, 0, n)
	candidateIdx := make([]int, 0, n)
	candidateScores := make([]float64, 0, n)
	for i := range work {
		if stats.IsUnrecoverable[i] {
			stats.NUnrecoverable++
			continue
		}
		stats.Scores[i] = results[i].Score
		if !results[i].Converged {
			stats.IsNonConvergent[i] = true
			stats.NNonConvergent++
			shaker.logger.Debug("low confidence object",
				slog.Int("object", i),
				slog.Any("error", errors.Wrapf(ErrNonConvergent, "%d iterations", results[i].Iterations)),
			)
		}
	}
	ghosts := FindGhost(stats.Scores, shaker.cfg.ScoreMin)
	for i := range work {
		if !alive[i] {
			continue
		}
		if ghosts[i] {
			stats.IsGhost[i] = true
			stats.NGhost++
			continue
		}
		candidates = append(candidates, work[i])
		candidateIdx = append(candidateIdx, i)
		candidateScores = append(candidateScores, stats.Scores[i])
	}
	repeated, err := CheckRepeatedObj(candidates, candidateScores, shaker.cfg.RepeatTol)
	if err != nil {
		return nil, errors.Wrap(err, "can't check repeated objects")
	}
	for k, i := range candidateIdx {
		if repeated[k] {
			stats.IsRepeated[i] = true
			stats.NRepeated++
		}
	}

	survivors := make([]Object3D, 0, len(candidates))
	for i := range work {
		if !alive[i] {
			continue
		}
		if stats.IsGhost[i] || stats.IsRepeated[i] {
			residual.Restore(work[i], shaker.model)
			continue
		}
		survivors = append(survivors, work[i])
	}
	shaker.residual = residual
	shaker.stats = stats
	shaker.logger.Debug("shake finished",
		slog.Int("objects", n),
		slog.Int("survivors", len(survivors)),
		slog.Int("ghosts", stats.NGhost),
		slog.Int("repeated", stats.NRepeated),
		slog.Int("unrecoverable", stats.NUnrecoverable),
		slog.Int("non_convergent", stats.NNonConvergent),
	)
	return survivors, nil
}

// validViews returns crops usable for scoring the object at its current projection
func (shaker *Shaker) validViews(obj Object3D, aug ImgAugList) ImgAugList {
	checker, hasAnchor := shaker.model.(anchorChecker)
	valid := make(ImgAugList, 0, len(aug))
	for k := range aug {
		view := &aug[k]
		if view.Region.Empty() {
			continue
		}
		obj2d, ok := obj.GetView(view.CamID)
		if !ok {
			continue
		}
		if !InImage(shaker.geom, view.CamID, obj2d.Center) {
			continue
		}
		if shaker.occluded(view, obj2d) {
			continue
		}
		if hasAnchor && !checker.AnchorOK(view, view.CamID, obj2d) {
			continue
		}
		valid = append(valid, *view)
	}
	return valid
}

func (shaker *Shaker) occluded(view *AugView, obj2d Object2D) bool {
	if shaker.cfg.OcclusionRatio <= 0 {
		return false
	}
	fp := shaker.model.Footprint(view.CamID, obj2d).Intersect(view.Region)
	peak, sum, count := 0.0, 0.0, 0
	for row := fp.RowMin; row < fp.RowMax; row++ {
		for col := fp.ColMin; col < fp.ColMax; col++ {
			peak = maxFloat64(peak, clampFloat64(shaker.model.Intensity(view.CamID, obj2d, row, col), 0, shaker.maxIntensity))
			sum += view.Residual.At(row-view.Region.RowMin, col-view.Region.ColMin)
			count++
		}
	}
	if count == 0 || peak == 0 {
		return false
	}
	return sum/float64(count) > shaker.cfg.OcclusionRatio*peak
}

// scoreAt projects probe placed at center and aggregates scores over valid views.
// ok is false when some valid view can not be projected.
func (shaker *Shaker) scoreAt(probe Object3D, center Point3D, valid ImgAugList, camIDs []int) (float64, bool) {
	probe.SetCenter(center)
	if err := probe.Project(shaker.geom, camIDs); err != nil {
		return 0, false
	}
	scores := make([]float64, len(valid))
	for k := range valid {
		obj2d, _ := probe.GetView(valid[k].CamID)
		scores[k] = shaker.model.ScoreView(&valid[k], valid[k].CamID, obj2d)
	}
	return shaker.aggregate(scores), true
}

// ShakeOne moves object along coordinate axes by +-step while the aggregated score grows,
// halving step until it is below Tol3D. Valid views are chosen once at the starting position.
// Object keeps the best position found; score trace is non-decreasing.
func (shaker *Shaker) ShakeOne(obj Object3D, aug ImgAugList, step float64) ShakeResult {
	valid := shaker.validViews(obj, aug)
	result := ShakeResult{
		Converged:  true,
		ValidViews: len(valid),
	}
	if len(valid) < shaker.model.MinViews() {
		return result
	}
	camIDs := make([]int, len(valid))
	for k := range valid {
		camIDs[k] = valid[k].CamID
	}
	probe := obj.Clone()
	center := obj.GetCenter()
	score, ok := shaker.scoreAt(probe, center, valid, camIDs)
	if !ok {
		result.ValidViews = 0
		return result
	}
	result.InitialScore = score
	result.Trace = append(result.Trace, score)

	axes := [3]Point3D{{X: 1}, {Y: 1}, {Z: 1}}
	maxIter := maxInt(shaker.cfg.MaxIter, 1)
	for delta := step; delta >= shaker.cfg.Tol3D && delta > 0; delta /= 2 {
		for iter := 0; ; iter++ {
			if iter >= maxIter {
				result.Converged = false
				break
			}
			result.Iterations++
			improved := false
			best := center
			for _, axis := range axes {
				for _, sign := range [2]float64{1, -1} {
					candidate := center.Add(axis.Mul(sign * delta))
					candidateScore, ok := shaker.scoreAt(probe, candidate, valid, camIDs)
					if ok && candidateScore > score {
						score = candidateScore
						best = candidate
						improved = true
					}
				}
			}
			if !improved {
				break
			}
			center = best
			result.Trace = append(result.Trace, score)
		}
	}
	obj.SetCenter(center)
	shaker.reproject(obj)
	result.Score = score
	return result
}
