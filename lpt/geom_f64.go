package lpt

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
)

// Point3D is a position in world coordinates (usually millimetres)
type Point3D = r3.Vector

// NewPoint3D creates new 3D point
func NewPoint3D(x, y, z float64) Point3D {
	return Point3D{X: x, Y: y, Z: z}
}

// Point2D is a sub-pixel position on a camera image. X is the column, Y is the row.
type Point2D struct {
	X float64
	Y float64
}

func NewPoint2D(x, y float64) Point2D {
	return Point2D{
		X: x,
		Y: y,
	}
}

func NewPoint2DFrom(point image.Point) Point2D {
	return Point2D{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

// PixelRange is a half-open window [RowMin, RowMax) x [ColMin, ColMax) on an image
type PixelRange struct {
	RowMin int
	RowMax int
	ColMin int
	ColMax int
}

// Empty returns true when range contains no pixels
func (pr PixelRange) Empty() bool {
	return pr.RowMax <= pr.RowMin || pr.ColMax <= pr.ColMin
}

// Area returns number of pixels in range
func (pr PixelRange) Area() int {
	if pr.Empty() {
		return 0
	}
	return (pr.RowMax - pr.RowMin) * (pr.ColMax - pr.ColMin)
}

// Clip restricts range to image of size rows x cols
func (pr PixelRange) Clip(rows, cols int) PixelRange {
	return PixelRange{
		RowMin: maxInt(pr.RowMin, 0),
		RowMax: minInt(pr.RowMax, rows),
		ColMin: maxInt(pr.ColMin, 0),
		ColMax: minInt(pr.ColMax, cols),
	}
}

// Intersect returns common part of two ranges
func (pr PixelRange) Intersect(other PixelRange) PixelRange {
	return PixelRange{
		RowMin: maxInt(pr.RowMin, other.RowMin),
		RowMax: minInt(pr.RowMax, other.RowMax),
		ColMin: maxInt(pr.ColMin, other.ColMin),
		ColMax: minInt(pr.ColMax, other.ColMax),
	}
}

// Union returns smallest range covering both ranges
func (pr PixelRange) Union(other PixelRange) PixelRange {
	if pr.Empty() {
		return other
	}
	if other.Empty() {
		return pr
	}
	return PixelRange{
		RowMin: minInt(pr.RowMin, other.RowMin),
		RowMax: maxInt(pr.RowMax, other.RowMax),
		ColMin: minInt(pr.ColMin, other.ColMin),
		ColMax: maxInt(pr.ColMax, other.ColMax),
	}
}

// Contains checks whether pixel (row, col) lies in range
func (pr PixelRange) Contains(row, col int) bool {
	return row >= pr.RowMin && row < pr.RowMax && col >= pr.ColMin && col < pr.ColMax
}

// rangeAround builds square window of given half width around rounded center
func rangeAround(center Point2D, halfWidth int) PixelRange {
	row := int(math.Round(center.Y))
	col := int(math.Round(center.X))
	return PixelRange{
		RowMin: row - halfWidth,
		RowMax: row + halfWidth + 1,
		ColMin: col - halfWidth,
		ColMax: col + halfWidth + 1,
	}
}

func euclideanDistance(p1, p2 Point2D) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

func distance3D(p1, p2 Point3D) float64 {
	return p1.Sub(p2).Norm()
}
