package lpt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// indexedPoint is a kd-tree entry remembering caller's id
type indexedPoint struct {
	coords kdtree.Point
	id     int
}

func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return p.coords[d] - q.coords[d]
}

func (p indexedPoint) Dims() int {
	return len(p.coords)
}

// Distance is squared euclidean distance as required by kdtree
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	return p.coords.Distance(q.coords)
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p indexedPoints) Len() int                      { return len(p) }
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return pointPlane{indexedPoints: p, Dim: d}.Pivot()
}
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type pointPlane struct {
	kdtree.Dim
	indexedPoints
}

func (p pointPlane) Less(i, j int) bool {
	return p.indexedPoints[i].coords[p.Dim] < p.indexedPoints[j].coords[p.Dim]
}
func (p pointPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedPoints = p.indexedPoints[start:end]
	return p
}
func (p pointPlane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// Neighbor is search hit: id given at construction and euclidean distance to the query
type Neighbor struct {
	ID   int
	Dist float64
}

// PointIndex is kd-tree over 2D or 3D points. It is read-only after construction unless Insert is called,
// concurrent queries are safe as long as nobody inserts.
type PointIndex struct {
	tree  *kdtree.Tree
	count int
}

func newPointIndex(coords []kdtree.Point) *PointIndex {
	if len(coords) == 0 {
		return &PointIndex{tree: &kdtree.Tree{}}
	}
	pts := make(indexedPoints, len(coords))
	for i := range coords {
		pts[i] = indexedPoint{coords: coords[i], id: i}
	}
	return &PointIndex{
		tree:  kdtree.New(pts, false),
		count: len(coords),
	}
}

// NewPointIndex builds 3D index; ids are positions in the slice
func NewPointIndex(points []Point3D) *PointIndex {
	coords := make([]kdtree.Point, len(points))
	for i, p := range points {
		coords[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	return newPointIndex(coords)
}

// NewPointIndex2D builds 2D index; ids are positions in the slice
func NewPointIndex2D(points []Point2D) *PointIndex {
	coords := make([]kdtree.Point, len(points))
	for i, p := range points {
		coords[i] = kdtree.Point{p.X, p.Y}
	}
	return newPointIndex(coords)
}

func (idx *PointIndex) Len() int {
	return idx.count
}

// Insert adds 3D point with given id
func (idx *PointIndex) Insert(id int, p Point3D) {
	idx.tree.Insert(indexedPoint{coords: kdtree.Point{p.X, p.Y, p.Z}, id: id}, false)
	idx.count++
}

func (idx *PointIndex) within(q kdtree.Point, radius float64) []Neighbor {
	if idx.count == 0 || radius < 0 || math.IsNaN(radius) {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	idx.tree.NearestSet(keeper, indexedPoint{coords: q, id: -1})
	result := make([]Neighbor, 0, keeper.Len())
	for _, item := range keeper.Heap {
		if item.Comparable == nil {
			continue
		}
		if item.Dist > radius*radius {
			continue
		}
		result = append(result, Neighbor{
			ID:   item.Comparable.(indexedPoint).id,
			Dist: math.Sqrt(item.Dist),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Dist != result[j].Dist {
			return result[i].Dist < result[j].Dist
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Within returns every point not farther than radius, sorted by distance then id
func (idx *PointIndex) Within(q Point3D, radius float64) []Neighbor {
	return idx.within(kdtree.Point{q.X, q.Y, q.Z}, radius)
}

// Within2D is Within for 2D indexes
func (idx *PointIndex) Within2D(q Point2D, radius float64) []Neighbor {
	return idx.within(kdtree.Point{q.X, q.Y}, radius)
}

// FindNN returns nearest point within radius. Ties are resolved by the lowest id
func (idx *PointIndex) FindNN(q Point3D, radius float64) (Neighbor, bool) {
	hits := idx.Within(q, radius)
	if len(hits) == 0 {
		return Neighbor{}, false
	}
	return hits[0], true
}

// FindNN2D is FindNN for 2D indexes
func (idx *PointIndex) FindNN2D(q Point2D, radius float64) (Neighbor, bool) {
	hits := idx.Within2D(q, radius)
	if len(hits) == 0 {
		return Neighbor{}, false
	}
	return hits[0], true
}
