package lpt

import (
	"image"
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	p1 := Point2D{X: 341, Y: 264}
	p2 := Point2D{X: 421, Y: 427}
	correnctAnswer := 181.57367
	answer := euclideanDistance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestDistance3D(t *testing.T) {
	p1 := NewPoint3D(1, 2, 3)
	p2 := NewPoint3D(4, 6, 15)
	correnctAnswer := 13.0
	answer := distance3D(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestNewPoint2DFrom(t *testing.T) {
	p := NewPoint2DFrom(image.Point{X: 7, Y: 3})
	if p.X != 7 || p.Y != 3 {
		t.Errorf("Wrong point: %v", p)
	}
}

func TestPixelRangeClip(t *testing.T) {
	pr := PixelRange{RowMin: -3, RowMax: 6, ColMin: 250, ColMax: 259}
	clipped := pr.Clip(256, 256)
	correctAnswer := PixelRange{RowMin: 0, RowMax: 6, ColMin: 250, ColMax: 256}
	if clipped != correctAnswer {
		t.Errorf("Wrong clip: %v, correct answer: %v", clipped, correctAnswer)
	}
	if clipped.Area() != 36 {
		t.Errorf("Wrong area: %d, correct answer: %d", clipped.Area(), 36)
	}
	outside := PixelRange{RowMin: 300, RowMax: 310, ColMin: 0, ColMax: 5}.Clip(256, 256)
	if !outside.Empty() || outside.Area() != 0 {
		t.Errorf("Range outside of image must be empty: %v", outside)
	}
}

func TestPixelRangeIntersectUnion(t *testing.T) {
	a := PixelRange{RowMin: 0, RowMax: 10, ColMin: 0, ColMax: 10}
	b := PixelRange{RowMin: 5, RowMax: 15, ColMin: 8, ColMax: 20}
	intersection := a.Intersect(b)
	if intersection != (PixelRange{RowMin: 5, RowMax: 10, ColMin: 8, ColMax: 10}) {
		t.Errorf("Wrong intersection: %v", intersection)
	}
	union := a.Union(b)
	if union != (PixelRange{RowMin: 0, RowMax: 15, ColMin: 0, ColMax: 20}) {
		t.Errorf("Wrong union: %v", union)
	}
	if a.Union(PixelRange{}) != a {
		t.Errorf("Union with empty range must keep range")
	}
	if !a.Contains(9, 0) || a.Contains(10, 0) {
		t.Errorf("Range must be half-open")
	}
}

func TestRangeAround(t *testing.T) {
	pr := rangeAround(Point2D{X: 10.6, Y: 4.2}, 2)
	correctAnswer := PixelRange{RowMin: 2, RowMax: 7, ColMin: 9, ColMax: 14}
	if pr != correctAnswer {
		t.Errorf("Wrong range: %v, correct answer: %v", pr, correctAnswer)
	}
}
