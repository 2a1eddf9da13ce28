package lpt

import (
	"github.com/pkg/errors"
)

// IPRConfig controls fusion of 2D detections into 3D candidates
type IPRConfig struct {
	// Max distance between projected candidate and a detection to accept it as the same object
	Tol2DPx float64 `yaml:"tol2DPx"`
	// Max mean reprojection error of a triangulated candidate
	MaxErrPx float64 `yaml:"maxErrPx"`
	MinViews int     `yaml:"minViews"`
}

// DefaultIPRConfig returns usual tolerances
func DefaultIPRConfig() IPRConfig {
	return IPRConfig{
		Tol2DPx:  1.0,
		MaxErrPx: 1.0,
		MinViews: 2,
	}
}

// IPRStats counts what happened with detections of one frame
type IPRStats struct {
	Detections int
	Candidates int
	// Detections that found no partner view
	InsufficientViews int
	Degenerate        int
}

type iprHypothesis struct {
	center Point3D
	err    float64
	camPos []int // positions in camIDs
	detIdx []int
}

func (h *iprHypothesis) better(other *iprHypothesis) bool {
	if other == nil {
		return true
	}
	if len(h.camPos) != len(other.camPos) {
		return len(h.camPos) > len(other.camPos)
	}
	return h.err < other.err
}

// Reconstruct matches detections across cameras and triangulates 3D candidates.
// cands[k] holds detections of camera camIDs[k]. Every detection is used at most once;
// detections without a partner view are counted as InsufficientViews and dropped.
func Reconstruct(geom Geometry, camIDs []int, cands [][]Object2D, kind ObjectKind, cfg IPRConfig) ([]Object3D, IPRStats, error) {
	stats := IPRStats{}
	if len(cands) != len(camIDs) {
		return nil, stats, errors.Wrapf(ErrSizeMismatch, "%d detection lists vs %d cameras", len(cands), len(camIDs))
	}
	used := make([][]bool, len(cands))
	indexes := make([]*PointIndex, len(cands))
	for k := range cands {
		stats.Detections += len(cands[k])
		used[k] = make([]bool, len(cands[k]))
		centers := make([]Point2D, len(cands[k]))
		for j := range cands[k] {
			centers[j] = cands[k][j].Center
		}
		indexes[k] = NewPointIndex2D(centers)
	}
	minViews := maxInt(cfg.MinViews, 2)
	objs := make([]Object3D, 0)

	for ref := 0; ref < len(camIDs)-1; ref++ {
		for i0 := range cands[ref] {
			if used[ref][i0] {
				continue
			}
			var best *iprHypothesis
			for partner := ref + 1; partner < len(camIDs); partner++ {
				for i1 := range cands[partner] {
					if used[partner][i1] {
						continue
					}
					h, err := buildHypothesis(geom, camIDs, cands, used, indexes, cfg, ref, i0, partner, i1)
					if err != nil {
						if errors.Is(err, ErrDegenerateGeometry) {
							stats.Degenerate++
						}
						continue
					}
					if h != nil && h.better(best) {
						best = h
					}
				}
			}
			if best == nil || len(best.camPos) < minViews {
				continue
			}
			obj, err := newCandidate(geom, camIDs, cands, kind, best)
			if err != nil {
				if errors.Is(err, ErrDegenerateGeometry) {
					stats.Degenerate++
				}
				continue
			}
			for n, k := range best.camPos {
				used[k][best.detIdx[n]] = true
			}
			objs = append(objs, obj)
		}
	}
	for k := range used {
		for j := range used[k] {
			if !used[k][j] {
				stats.InsufficientViews++
			}
		}
	}
	stats.Candidates = len(objs)
	return objs, stats, nil
}

func buildHypothesis(geom Geometry, camIDs []int, cands [][]Object2D, used [][]bool, indexes []*PointIndex, cfg IPRConfig, ref, i0, partner, i1 int) (*iprHypothesis, error) {
	views := []View{
		{CamID: camIDs[ref], Obj: cands[ref][i0]},
		{CamID: camIDs[partner], Obj: cands[partner][i1]},
	}
	center, reprojErr, err := geom.Triangulate(views)
	if err != nil {
		return nil, err
	}
	if reprojErr > cfg.MaxErrPx {
		return nil, nil
	}
	h := iprHypothesis{
		center: center,
		err:    reprojErr,
		camPos: []int{ref, partner},
		detIdx: []int{i0, i1},
	}
	for k := range camIDs {
		if k == ref || k == partner {
			continue
		}
		proj, err := geom.Project(camIDs[k], center)
		if err != nil {
			continue
		}
		for _, hit := range indexes[k].Within2D(proj, cfg.Tol2DPx) {
			if used[k][hit.ID] {
				continue
			}
			views = append(views, View{CamID: camIDs[k], Obj: cands[k][hit.ID]})
			h.camPos = append(h.camPos, k)
			h.detIdx = append(h.detIdx, hit.ID)
			break
		}
	}
	if len(views) > 2 {
		refined, refinedErr, err := geom.Triangulate(views)
		if err == nil && refinedErr <= cfg.MaxErrPx {
			h.center = refined
			h.err = refinedErr
		} else {
			h.camPos = h.camPos[:2]
			h.detIdx = h.detIdx[:2]
		}
	}
	return &h, nil
}

func newCandidate(geom Geometry, camIDs []int, cands [][]Object2D, kind ObjectKind, h *iprHypothesis) (Object3D, error) {
	objs2d := make([]Object2D, len(h.camPos))
	ids := make([]int, len(h.camPos))
	for n, k := range h.camPos {
		objs2d[n] = cands[k][h.detIdx[n]]
		ids[n] = camIDs[k]
	}
	var obj Object3D
	switch kind {
	case KindBubble:
		bubble := NewBubble3D(h.center, 0)
		if err := bubble.AddViews(objs2d, ids); err != nil {
			return nil, err
		}
		if err := bubble.EstimateRadius(geom); err != nil {
			return nil, err
		}
		obj = bubble
	default:
		tracer := NewTracer3D(h.center, objs2d[0].RadiusPx)
		if err := tracer.AddViews(objs2d, ids); err != nil {
			return nil, err
		}
		obj = tracer
	}
	obj.SetError(h.err)
	return obj, nil
}
