package lpt

import (
	"sort"

	"github.com/pkg/errors"
)

// FindGhost flags objects whose shake score is below scoreMin
func FindGhost(scores []float64, scoreMin float64) []bool {
	isGhost := make([]bool, len(scores))
	for i, score := range scores {
		if score < scoreMin {
			isGhost[i] = true
		}
	}
	return isGhost
}

// CheckRepeatedObj flags objects closer than tol to an object with a higher score.
// Objects are visited by descending score, equal scores keep input order, so the survivors
// do not depend on how the caller ordered near-duplicates of different quality.
func CheckRepeatedObj(objs []Object3D, scores []float64, tol float64) ([]bool, error) {
	if len(objs) != len(scores) {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d objects vs %d scores", len(objs), len(scores))
	}
	isRepeated := make([]bool, len(objs))
	if tol <= 0 {
		return isRepeated, nil
	}
	order := make([]int, len(objs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	kept := NewPointIndex(nil)
	for _, i := range order {
		center := objs[i].GetCenter()
		for _, hit := range kept.Within(center, tol) {
			if hit.Dist < tol {
				isRepeated[i] = true
				break
			}
		}
		if !isRepeated[i] {
			kept.Insert(i, center)
		}
	}
	return isRepeated, nil
}
