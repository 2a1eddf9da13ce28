package lpt

import (
	"log/slog"

	"github.com/pkg/errors"
)

// STBConfig holds linking and lifecycle thresholds
type STBConfig struct {
	// Search radius around predictions of long-active and inactive tracks (world units)
	SearchRadius float64 `yaml:"searchRadius"`
	// Search radius around predictions of short-active tracks
	ShortSearchRadius float64 `yaml:"shortSearchRadius"`
	// Leftover candidates closer than RepeatTol to a position linked on the same frame do not start new tracks
	RepeatTol float64 `yaml:"repeatTol"`
	// Short track of this length passing the linear fit check becomes long-active
	MinLongLength int `yaml:"minLongLength"`
	// Long-active track missing more than MaxMiss consecutive frames becomes inactive
	MaxMiss int `yaml:"maxMiss"`
	// Inactive track missing more than MaxMiss+InactiveRetention frames is exited
	InactiveRetention int `yaml:"inactiveRetention"`
	// Max RMS deviation from straight line in time for promotion
	LinearFitTol float64 `yaml:"linearFitTol"`
	// "linear" or "kalman"
	Predictor string  `yaml:"predictor"`
	FitWindow int     `yaml:"fitWindow"`
	FitOrder  int     `yaml:"fitOrder"`
	StdDevA   float64 `yaml:"stdDevA"`
	StdDevM   float64 `yaml:"stdDevM"`
}

// DefaultSTBConfig returns thresholds for millimetre scale setups
func DefaultSTBConfig() STBConfig {
	return STBConfig{
		SearchRadius:      1.0,
		ShortSearchRadius: 2.0,
		RepeatTol:         0.1,
		MinLongLength:     4,
		MaxMiss:           2,
		InactiveRetention: 5,
		LinearFitTol:      0.5,
		Predictor:         "linear",
		FitWindow:         6,
		FitOrder:          2,
		StdDevA:           1.0,
		StdDevM:           0.05,
	}
}

// LinkStats counts linker decisions of one frame
type LinkStats struct {
	Candidates    int
	LinkedLong    int
	LinkedShort   int
	Reactivated   int
	Promoted      int
	DroppedShort  int
	Deactivated   int
	Exited        int
	NewTracks     int
	SkippedRepeat int
}

// FrameStats is per-frame diagnostics of ProcessFrame
type FrameStats struct {
	Frame             int
	Predicted         int
	Detections        int
	Ghosts            int
	Repeated          int
	InsufficientViews int
	Unrecoverable     int
	NonConvergent     int
	Degenerate        int
	LinkStats
}

// STB is shake-the-box lifecycle manager: it owns track pools and advances them frame by frame
type STB struct {
	cfg       STBConfig
	geom      Geometry
	camIDs    []int
	kind      ObjectKind
	shaker    *Shaker
	finder    *ObjectFinder2D
	tracerCfg TracerFinderConfig
	bubbleCfg BubbleFinderConfig
	iprCfg    IPRConfig
	predictor Predictor
	logger    *slog.Logger

	shortActive  []*Track
	longActive   []*Track
	longInactive []*Track
	exited       []*Track

	// Bubble templates are rebuilt once from large bubbles of the first frame having enough of them
	refRThres float64
	refNThres int
	refBuilt  bool

	stats     FrameStats
	lastFrame int
	started   bool
}

// Option customizes STB
type Option func(*STB)

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(stb *STB) {
		stb.logger = logger
	}
}

// WithPredictor overrides predictor chosen by config
func WithPredictor(predictor Predictor) Option {
	return func(stb *STB) {
		stb.predictor = predictor
	}
}

// WithTracerFinder sets tracer detection parameters
func WithTracerFinder(cfg TracerFinderConfig) Option {
	return func(stb *STB) {
		stb.tracerCfg = cfg
	}
}

// WithBubbleFinder sets bubble detection parameters
func WithBubbleFinder(cfg BubbleFinderConfig) Option {
	return func(stb *STB) {
		stb.bubbleCfg = cfg
	}
}

// WithIPR sets multi-view reconstruction parameters
func WithIPR(cfg IPRConfig) Option {
	return func(stb *STB) {
		stb.iprCfg = cfg
	}
}

// WithBubbleRef enables building bubble templates from bubbles with pixel radius of at least rThres,
// nThres bubbles per camera are required
func WithBubbleRef(rThres float64, nThres int) Option {
	return func(stb *STB) {
		stb.refRThres = rThres
		stb.refNThres = nThres
	}
}

// WithThreads sets worker pool size of detection
func WithThreads(n int) Option {
	return func(stb *STB) {
		stb.finder = NewObjectFinder2D(n)
	}
}

// NewSTB creates manager; object kind follows the shaker's score model
func NewSTB(geom Geometry, camIDs []int, shaker *Shaker, cfg STBConfig, options ...Option) *STB {
	stb := STB{
		cfg:       cfg,
		geom:      geom,
		camIDs:    append([]int(nil), camIDs...),
		kind:      KindTracer,
		shaker:    shaker,
		finder:    NewObjectFinder2D(0),
		iprCfg:    DefaultIPRConfig(),
		predictor: newPredictor(cfg),
		logger:    slog.Default(),
		lastFrame: -1,
	}
	if shaker != nil {
		stb.kind = shaker.Model().Kind()
	}
	for _, option := range options {
		option(&stb)
	}
	return &stb
}

func newPredictor(cfg STBConfig) Predictor {
	if cfg.Predictor == "kalman" {
		return NewKalmanPredictor(cfg.FitWindow, cfg.StdDevA, cfg.StdDevM)
	}
	return NewLinearFitPredictor(cfg.FitWindow, cfg.FitOrder)
}

// Kind returns type of tracked objects
func (stb *STB) Kind() ObjectKind {
	return stb.kind
}

// NumCameras returns number of cameras in the geometry
func (stb *STB) NumCameras() int {
	return stb.geom.NumCameras()
}

// Stats returns diagnostics of the last processed frame
func (stb *STB) Stats() FrameStats {
	return stb.stats
}

func copyTracks(tracks []*Track) []*Track {
	result := make([]*Track, len(tracks))
	copy(result, tracks)
	return result
}

func (stb *STB) GetShortActive() []*Track {
	return copyTracks(stb.shortActive)
}

func (stb *STB) GetLongActive() []*Track {
	return copyTracks(stb.longActive)
}

func (stb *STB) GetLongInactive() []*Track {
	return copyTracks(stb.longInactive)
}

func (stb *STB) GetExited() []*Track {
	return copyTracks(stb.exited)
}

func (stb *STB) checkFrame(frame int) error {
	if stb.started && frame <= stb.lastFrame {
		return errors.Wrapf(ErrFrameOrder, "frame %d after %d", frame, stb.lastFrame)
	}
	return nil
}

// ProcessFrame runs one tracking step on images indexed by camera id and returns residual images.
// Predictions of long tracks are shaken first, new objects are found on what is left,
// then all survivors are linked.
func (stb *STB) ProcessFrame(frame int, images []*Image) ([]*Image, error) {
	if len(images) != stb.geom.NumCameras() {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d images for %d cameras", len(images), stb.geom.NumCameras())
	}
	if err := stb.checkFrame(frame); err != nil {
		return nil, err
	}
	if stb.shaker == nil {
		return nil, errors.New("shaker is not set")
	}
	fs := FrameStats{Frame: frame}

	linkable := append(stb.GetLongActive(), stb.longInactive...)
	hypotheses := make([]Object3D, 0, len(linkable))
	for _, track := range linkable {
		obj := track.Last().Clone()
		obj.SetCenter(stb.predictor.Predict(track, frame))
		obj.ClearViews()
		hypotheses = append(hypotheses, obj)
	}
	fs.Predicted = len(hypotheses)
	predicted, err := stb.shaker.RunShake(hypotheses, images)
	if err != nil {
		return nil, errors.Wrap(err, "can't shake predicted objects")
	}
	fs.addShake(stb.shaker.Stats())
	afterPrediction := stb.shaker.Residual().Images()

	cands := make([][]Object2D, len(stb.camIDs))
	for k, camID := range stb.camIDs {
		switch stb.kind {
		case KindBubble:
			cands[k] = stb.finder.FindBubble2D(afterPrediction[camID], stb.bubbleCfg)
		default:
			cands[k] = stb.finder.FindTracer2D(afterPrediction[camID], stb.tracerCfg)
		}
	}
	found, iprStats, err := Reconstruct(stb.geom, stb.camIDs, cands, stb.kind, stb.iprCfg)
	if err != nil {
		return nil, errors.Wrap(err, "can't reconstruct candidates")
	}
	fs.Detections = iprStats.Detections
	fs.InsufficientViews += iprStats.InsufficientViews
	fs.Degenerate += iprStats.Degenerate

	stb.refreshBubbleRef(found, afterPrediction)

	fresh, err := stb.shaker.RunShake(found, afterPrediction)
	if err != nil {
		return nil, errors.Wrap(err, "can't shake new objects")
	}
	fs.addShake(stb.shaker.Stats())
	residual := stb.shaker.Residual().Images()

	candidates := make([]Object3D, 0, len(predicted)+len(fresh))
	candidates = append(candidates, predicted...)
	kept := NewPointIndex(nil)
	for i, obj := range predicted {
		kept.Insert(i, obj.GetCenter())
	}
	for _, obj := range fresh {
		if hit, ok := kept.FindNN(obj.GetCenter(), stb.cfg.RepeatTol); ok && hit.Dist < stb.cfg.RepeatTol {
			fs.Repeated++
			continue
		}
		candidates = append(candidates, obj)
	}

	linkStats, err := stb.Link(frame, candidates)
	if err != nil {
		return nil, err
	}
	fs.LinkStats = linkStats
	stb.stats = fs
	stb.logger.Info("frame processed",
		slog.Int("frame", frame),
		slog.Int("detections", fs.Detections),
		slog.Int("candidates", fs.Candidates),
		slog.Int("ghosts", fs.Ghosts),
		slog.Int("insufficient_views", fs.InsufficientViews),
		slog.Int("non_convergent", fs.NonConvergent),
		slog.Int("degenerate", fs.Degenerate),
		slog.Int("short_active", len(stb.shortActive)),
		slog.Int("long_active", len(stb.longActive)),
		slog.Int("long_inactive", len(stb.longInactive)),
		slog.Int("exited", len(stb.exited)),
	)
	return residual, nil
}

func (stb *STB) refreshBubbleRef(found []Object3D, images []*Image) {
	if stb.kind != KindBubble || stb.refBuilt || stb.refNThres <= 0 {
		return
	}
	model, ok := stb.shaker.Model().(*BubbleModel)
	if !ok {
		return
	}
	bubbles := make([]*Bubble3D, 0, len(found))
	for _, obj := range found {
		if bubble, ok := obj.(*Bubble3D); ok {
			bubbles = append(bubbles, bubble)
		}
	}
	size := 21
	if tmpl, ok := model.Templates[stb.camIDs[0]]; ok && tmpl.Rows > 0 {
		size = tmpl.Rows
	}
	ref, ok := BuildBubbleRefImg(bubbles, images, stb.camIDs, stb.refRThres, stb.refNThres, size)
	if !ok {
		return
	}
	model.Templates = ref.Templates
	stb.refBuilt = true
	stb.logger.Info("bubble templates built", slog.Int("bubbles", len(bubbles)))
}

func (fs *FrameStats) addShake(stats ShakeStats) {
	fs.Ghosts += stats.NGhost
	fs.Repeated += stats.NRepeated
	fs.Unrecoverable += stats.NUnrecoverable
	fs.NonConvergent += stats.NNonConvergent
}

// Link appends candidates observed on frame to tracks and advances lifecycle.
// Linked candidates become owned by tracks.
func (stb *STB) Link(frame int, objs []Object3D) (LinkStats, error) {
	stats := LinkStats{Candidates: len(objs)}
	if err := stb.checkFrame(frame); err != nil {
		return stats, err
	}
	centers := make([]Point3D, len(objs))
	for i, obj := range objs {
		centers[i] = obj.GetCenter()
	}
	index := NewPointIndex(centers)
	taken := make([]bool, len(objs))
	// positions appended to tracks on this frame
	linked := NewPointIndex(nil)

	// Long-active and inactive tracks
	linkable := append(stb.GetLongActive(), stb.longInactive...)
	pf := NewPredField(frame, linkable, stb.predictor)
	matchedLong := stb.assign(pf, index, taken, stb.cfg.SearchRadius)
	longActive := make([]*Track, 0, len(linkable))
	longInactive := make([]*Track, 0, len(stb.longInactive))
	for k, track := range pf.Tracks {
		candidate, ok := matchedLong[k]
		if ok {
			if err := track.AddNext(objs[candidate], frame); err != nil {
				return stats, errors.Wrapf(err, "can't link track %s", track.GetID())
			}
			track.ResetNoMatch()
			linked.Insert(candidate, centers[candidate])
			if track.GetState() == TrackInactive {
				stats.Reactivated++
			}
			track.setState(TrackLongActive)
			longActive = append(longActive, track)
			stats.LinkedLong++
			continue
		}
		track.IncNoMatch()
		switch {
		case track.GetState() == TrackLongActive && track.GetNoMatchTimes() <= stb.cfg.MaxMiss:
			longActive = append(longActive, track)
		case track.GetState() == TrackLongActive:
			track.setState(TrackInactive)
			longInactive = append(longInactive, track)
			stats.Deactivated++
		case track.GetNoMatchTimes() > stb.cfg.MaxMiss+stb.cfg.InactiveRetention:
			track.setState(TrackExited)
			stb.exited = append(stb.exited, track)
			stats.Exited++
		default:
			longInactive = append(longInactive, track)
		}
	}

	// Short-active tracks
	shortPF := NewPredField(frame, stb.GetShortActive(), stb.predictor)
	matchedShort := stb.assign(shortPF, index, taken, stb.cfg.ShortSearchRadius)
	shortActive := make([]*Track, 0, len(shortPF.Tracks)+len(objs))
	for k, track := range shortPF.Tracks {
		candidate, ok := matchedShort[k]
		if !ok {
			stats.DroppedShort++
			continue
		}
		if err := track.AddNext(objs[candidate], frame); err != nil {
			return stats, errors.Wrapf(err, "can't link track %s", track.GetID())
		}
		stats.LinkedShort++
		linked.Insert(candidate, centers[candidate])
		if track.Len() < stb.cfg.MinLongLength {
			shortActive = append(shortActive, track)
			continue
		}
		if !CheckLinearFit(track, stb.cfg.LinearFitTol) {
			stats.DroppedShort++
			continue
		}
		track.setState(TrackLongActive)
		longActive = append(longActive, track)
		stats.Promoted++
	}

	// Leftovers start new tracks unless they duplicate a freshly linked position
	for i, obj := range objs {
		if taken[i] {
			continue
		}
		if _, ok := linked.FindNN(centers[i], stb.cfg.RepeatTol); ok {
			stats.SkippedRepeat++
			continue
		}
		shortActive = append(shortActive, NewTrack(obj, frame))
		stats.NewTracks++
	}

	stb.shortActive = shortActive
	stb.longActive = longActive
	stb.longInactive = longInactive
	stb.lastFrame = frame
	stb.started = true
	stb.stats.LinkStats = stats
	return stats, nil
}

// assign lets every track propose its nearest free candidate and grants proposals by ascending distance.
// A track whose candidate was granted to a closer track stays unmatched.
func (stb *STB) assign(pf *PredField, index *PointIndex, taken []bool, radius float64) map[int]int {
	queue := make(proposalHeap, 0, pf.Len())
	for k := range pf.Tracks {
		for _, hit := range index.Within(pf.Points[k], radius) {
			if taken[hit.ID] {
				continue
			}
			queue.Push(&linkProposal{
				track:      pf.Tracks[k],
				trackOrder: k,
				candidate:  hit.ID,
				distance:   hit.Dist,
			})
			break
		}
	}
	matched := make(map[int]int, queue.Len())
	for queue.Len() > 0 {
		proposal := queue.Pop()
		if taken[proposal.candidate] {
			continue
		}
		taken[proposal.candidate] = true
		matched[proposal.trackOrder] = proposal.candidate
	}
	return matched
}

// SetPools replaces track pools, used when resuming from saved tracks
func (stb *STB) SetPools(shortActive, longActive, longInactive, exited []*Track, lastFrame int) {
	stb.shortActive = copyTracks(shortActive)
	stb.longActive = copyTracks(longActive)
	stb.longInactive = copyTracks(longInactive)
	stb.exited = copyTracks(exited)
	stb.lastFrame = lastFrame
	stb.started = true
}
