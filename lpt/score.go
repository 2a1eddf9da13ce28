package lpt

import "math"

// ScoreModel tells the shaker how an object kind is rendered and compared with images
type ScoreModel interface {
	Renderer
	Kind() ObjectKind
	// MinViews is minimal number of valid cameras for an object to be kept
	MinViews() int
	// ScoreView returns agreement in [0, 1] between augmented crop and object rendered at obj
	ScoreView(aug *AugView, camID int, obj Object2D) float64
}

// anchorChecker is implemented by models that confirm the 2D anchor before shaking
type anchorChecker interface {
	AnchorOK(aug *AugView, camID int, obj Object2D) bool
}

// Aggregator merges per-camera scores of valid views into one object score
type Aggregator func(scores []float64) float64

// MeanAggregator is arithmetic mean; empty input scores zero
func MeanAggregator(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// renderedAt returns clamped model value of obj at (row, col), zero outside its footprint
func renderedAt(renderer Renderer, camID int, obj Object2D, fp PixelRange, row, col int, maxIntensity float64) float64 {
	if !fp.Contains(row, col) {
		return 0
	}
	return clampFloat64(renderer.Intensity(camID, obj, row, col), 0, maxIntensity)
}

// TracerModel scores tracers with intensity weighted similarity against Gaussian OTF
type TracerModel struct {
	*OTF
	maxIntensity float64
}

func NewTracerModel(otf *OTF, maxIntensity float64) *TracerModel {
	return &TracerModel{OTF: otf, maxIntensity: maxIntensity}
}

func (model *TracerModel) Kind() ObjectKind {
	return KindTracer
}

func (model *TracerModel) MinViews() int {
	return 2
}

// ScoreView is 2*sum(a*m) / (sum(a^2) + sum(m^2)) over the crop: one for exact match, zero if either side is dark
func (model *TracerModel) ScoreView(aug *AugView, camID int, obj Object2D) float64 {
	fp := model.Footprint(camID, obj)
	cross, sumA, sumM := 0.0, 0.0, 0.0
	for row := aug.Region.RowMin; row < aug.Region.RowMax; row++ {
		for col := aug.Region.ColMin; col < aug.Region.ColMax; col++ {
			a := aug.At(row, col)
			m := renderedAt(model, camID, obj, fp, row, col, model.maxIntensity)
			cross += a * m
			sumA += a * a
			sumM += m * m
		}
	}
	if sumA+sumM <= 0 {
		return 0
	}
	return 2 * cross / (sumA + sumM)
}

// BubbleModel scores bubbles by normalized cross-correlation against reference templates
type BubbleModel struct {
	*BubbleRefImg
	maxIntensity float64
}

func NewBubbleModel(ref *BubbleRefImg, maxIntensity float64) *BubbleModel {
	return &BubbleModel{BubbleRefImg: ref, maxIntensity: maxIntensity}
}

func (model *BubbleModel) Kind() ObjectKind {
	return KindBubble
}

func (model *BubbleModel) MinViews() int {
	return 2
}

func (model *BubbleModel) ncc(aug *AugView, camID int, obj Object2D) float64 {
	fp := model.Footprint(camID, obj)
	n := float64(aug.Region.Area())
	if n == 0 {
		return 0
	}
	sumA, sumM, sumAA, sumMM, sumAM := 0.0, 0.0, 0.0, 0.0, 0.0
	for row := aug.Region.RowMin; row < aug.Region.RowMax; row++ {
		for col := aug.Region.ColMin; col < aug.Region.ColMax; col++ {
			a := aug.At(row, col)
			m := renderedAt(model, camID, obj, fp, row, col, model.maxIntensity)
			sumA += a
			sumM += m
			sumAA += a * a
			sumMM += m * m
			sumAM += a * m
		}
	}
	cov := sumAM - sumA*sumM/n
	varA := sumAA - sumA*sumA/n
	varM := sumMM - sumM*sumM/n
	if varA <= 1e-12 || varM <= 1e-12 {
		return 0
	}
	return cov / math.Sqrt(varA*varM)
}

// ScoreView is zero-normalized cross-correlation clipped at zero
func (model *BubbleModel) ScoreView(aug *AugView, camID int, obj Object2D) float64 {
	return maxFloat64(model.ncc(aug, camID, obj), 0)
}

// AnchorOK searches integer shifts up to ceil(r) and checks that the correlation peak lies within half radius of the projection
func (model *BubbleModel) AnchorOK(aug *AugView, camID int, obj Object2D) bool {
	w := maxInt(1, int(math.Ceil(obj.RadiusPx)))
	best := math.Inf(-1)
	bestDx, bestDy := 0, 0
	for dy := -w; dy <= w; dy++ {
		for dx := -w; dx <= w; dx++ {
			shifted := obj
			shifted.Center = Point2D{X: obj.Center.X + float64(dx), Y: obj.Center.Y + float64(dy)}
			v := model.ncc(aug, camID, shifted)
			if v > best {
				best = v
				bestDx, bestDy = dx, dy
			}
		}
	}
	if best <= 0 {
		return false
	}
	return math.Hypot(float64(bestDx), float64(bestDy)) <= maxFloat64(obj.RadiusPx/2, 1)
}
