package lpt

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// TracerFinderConfig controls tracer detection
type TracerFinderConfig struct {
	// Nominal tracer radius in pixels
	RadiusPx float64 `yaml:"radiusPx"`
	// Local maxima below MinIntensity are ignored
	MinIntensity float64 `yaml:"minIntensity"`
}

// BubbleFinderConfig controls bubble detection
type BubbleFinderConfig struct {
	RadiusMin float64 `yaml:"radiusMin"`
	RadiusMax float64 `yaml:"radiusMax"`
	// Pixels brighter than mean + Sense*std belong to bubbles
	Sense float64 `yaml:"sense"`
}

// Images smaller than this are searched as a single tile
const minTiledArea = 65536

// maxTileCore limits core side of a tile
const maxTileCore = 768

type detection struct {
	obj    Object2D
	metric float64
}

// ObjectFinder2D detects 2D objects on camera images. Large images are split into tiles
// processed by a fixed pool of NThread workers.
type ObjectFinder2D struct {
	NThread int
}

func NewObjectFinder2D(nThread int) *ObjectFinder2D {
	return &ObjectFinder2D{NThread: nThread}
}

// tiles splits image into core windows; each core is later widened by halo for reading
func (finder *ObjectFinder2D) tiles(img *Image, halo int) []PixelRange {
	nThread := workers(finder.NThread)
	area := img.Rows * img.Cols
	if area <= minTiledArea || nThread <= 1 {
		return []PixelRange{img.Bounds()}
	}
	side := int(math.Ceil(math.Sqrt(float64(area) / float64(nThread))))
	side = maxInt(side, 2*halo+8)
	side = minInt(side, maxTileCore)
	cores := make([]PixelRange, 0, (img.Rows/side+1)*(img.Cols/side+1))
	for row := 0; row < img.Rows; row += side {
		for col := 0; col < img.Cols; col += side {
			cores = append(cores, PixelRange{
				RowMin: row,
				RowMax: minInt(row+side, img.Rows),
				ColMin: col,
				ColMax: minInt(col+side, img.Cols),
			})
		}
	}
	return cores
}

// findTiled runs detect on every tile and merges private buckets after all workers are done.
// detect reads pixels inside window only and reports objects centered inside core.
func (finder *ObjectFinder2D) findTiled(img *Image, halo int, detect func(window, core PixelRange) []detection) []detection {
	cores := finder.tiles(img, halo)
	buckets := make([][]detection, len(cores))
	var eg errgroup.Group
	eg.SetLimit(workers(finder.NThread))
	for i, core := range cores {
		i, core := i, core
		eg.Go(func() error {
			window := PixelRange{
				RowMin: core.RowMin - halo,
				RowMax: core.RowMax + halo,
				ColMin: core.ColMin - halo,
				ColMax: core.ColMax + halo,
			}.Clip(img.Rows, img.Cols)
			found := detect(window, core)
			kept := found[:0]
			for _, d := range found {
				if core.Contains(int(math.Round(d.obj.Center.Y)), int(math.Round(d.obj.Center.X))) {
					kept = append(kept, d)
				}
			}
			buckets[i] = kept
			return nil
		})
	}
	_ = eg.Wait()
	total := 0
	for _, bucket := range buckets {
		total += len(bucket)
	}
	merged := make([]detection, 0, total)
	for _, bucket := range buckets {
		merged = append(merged, bucket...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].metric > merged[j].metric
	})
	return merged
}

// FindTracer2D finds local intensity maxima and refines them with 3-point log-parabola fit per axis
func (finder *ObjectFinder2D) FindTracer2D(img *Image, cfg TracerFinderConfig) []Object2D {
	halo := int(math.Ceil(cfg.RadiusPx)) + 2
	found := finder.findTiled(img, halo, func(window, core PixelRange) []detection {
		return findTracersIn(img, window, core, cfg)
	})
	result := make([]Object2D, len(found))
	for i := range found {
		result[i] = found[i].obj
	}
	return result
}

func findTracersIn(img *Image, window, core PixelRange, cfg TracerFinderConfig) []detection {
	result := make([]detection, 0)
	rowMin := maxInt(core.RowMin, maxInt(window.RowMin, 0)+1)
	rowMax := minInt(core.RowMax, minInt(window.RowMax, img.Rows)-1)
	colMin := maxInt(core.ColMin, maxInt(window.ColMin, 0)+1)
	colMax := minInt(core.ColMax, minInt(window.ColMax, img.Cols)-1)
	for row := rowMin; row < rowMax; row++ {
		for col := colMin; col < colMax; col++ {
			v := img.At(row, col)
			if v < cfg.MinIntensity || !isLocalMax(img, row, col) {
				continue
			}
			dx, okX := logParabolaShift(img.At(row, col-1), v, img.At(row, col+1))
			dy, okY := logParabolaShift(img.At(row-1, col), v, img.At(row+1, col))
			if !okX || !okY {
				continue
			}
			result = append(result, detection{
				obj: Object2D{
					Center:   Point2D{X: float64(col) + dx, Y: float64(row) + dy},
					RadiusPx: cfg.RadiusPx,
				},
				metric: v,
			})
		}
	}
	return result
}

// isLocalMax requires strict maximum against neighbours preceding in scan order, so plateaus yield one peak
func isLocalMax(img *Image, row, col int) bool {
	v := img.At(row, col)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			n := img.At(row+dr, col+dc)
			before := dr < 0 || (dr == 0 && dc < 0)
			if n > v || (before && n == v) {
				return false
			}
		}
	}
	return true
}

// logParabolaShift returns sub-pixel offset of Gaussian peak from three samples
func logParabolaShift(left, center, right float64) (float64, bool) {
	lnL, lnC, lnR := safeLn(left), safeLn(center), safeLn(right)
	denom := lnL - 2*lnC + lnR
	if denom == 0 {
		return 0, false
	}
	shift := 0.5 * (lnL - lnR) / denom
	if !isFinite(shift) || math.Abs(shift) > 1 {
		return 0, false
	}
	return shift, true
}

// FindBubble2D finds bright connected blobs with equivalent radius in [RadiusMin, RadiusMax]
func (finder *ObjectFinder2D) FindBubble2D(img *Image, cfg BubbleFinderConfig) []Object2D {
	if cfg.RadiusMax <= 0 || cfg.RadiusMin > cfg.RadiusMax {
		return []Object2D{}
	}
	mean, std := img.MeanStd()
	threshold := mean + cfg.Sense*std
	halo := int(math.Ceil(cfg.RadiusMax)) + 3
	found := finder.findTiled(img, halo, func(window, core PixelRange) []detection {
		return findBubblesIn(img, window, threshold, cfg)
	})

	dTh := math.Min(2, 0.35*cfg.RadiusMax)
	rTh := math.Min(2, 0.25*cfg.RadiusMax)
	result := make([]Object2D, 0, len(found))
	for _, d := range found {
		repeated := false
		for _, kept := range result {
			if euclideanDistance(kept.Center, d.obj.Center) < dTh && math.Abs(kept.RadiusPx-d.obj.RadiusPx) < rTh {
				repeated = true
				break
			}
		}
		if !repeated {
			result = append(result, d.obj)
		}
	}
	return result
}

func findBubblesIn(img *Image, window PixelRange, threshold float64, cfg BubbleFinderConfig) []detection {
	rows := window.RowMax - window.RowMin
	cols := window.ColMax - window.ColMin
	visited := make([]bool, rows*cols)
	result := make([]detection, 0)
	queue := make([][2]int, 0, 64)
	for r0 := 0; r0 < rows; r0++ {
		for c0 := 0; c0 < cols; c0++ {
			if visited[r0*cols+c0] || img.At(window.RowMin+r0, window.ColMin+c0) <= threshold {
				continue
			}
			visited[r0*cols+c0] = true
			queue = append(queue[:0], [2]int{r0, c0})
			area := 0
			sumI, sumR, sumC := 0.0, 0.0, 0.0
			minR, maxR, minC, maxC := r0, r0, c0, c0
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				v := img.At(window.RowMin+p[0], window.ColMin+p[1])
				area++
				sumI += v
				sumR += v * float64(p[0])
				sumC += v * float64(p[1])
				minR, maxR = minInt(minR, p[0]), maxInt(maxR, p[0])
				minC, maxC = minInt(minC, p[1]), maxInt(maxC, p[1])
				for _, n := range [4][2]int{{p[0] - 1, p[1]}, {p[0] + 1, p[1]}, {p[0], p[1] - 1}, {p[0], p[1] + 1}} {
					if n[0] < 0 || n[0] >= rows || n[1] < 0 || n[1] >= cols || visited[n[0]*cols+n[1]] {
						continue
					}
					if img.At(window.RowMin+n[0], window.ColMin+n[1]) <= threshold {
						continue
					}
					visited[n[0]*cols+n[1]] = true
					queue = append(queue, n)
				}
			}
			radius := math.Sqrt(float64(area) / math.Pi)
			if radius < cfg.RadiusMin || radius > cfg.RadiusMax || sumI <= 0 {
				continue
			}
			boxRadius := 0.5 * float64(maxInt(maxR-minR, maxC-minC)+1)
			fill := math.Min(float64(area)/(math.Pi*boxRadius*boxRadius), 1)
			result = append(result, detection{
				obj: Object2D{
					Center:   Point2D{X: float64(window.ColMin) + sumC/sumI, Y: float64(window.RowMin) + sumR/sumI},
					RadiusPx: radius,
				},
				metric: sumI / float64(area) * fill,
			})
		}
	}
	return result
}
