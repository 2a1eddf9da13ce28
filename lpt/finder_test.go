package lpt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drawSpot(img *Image, x, y float64) {
	otf := NewOTF([]OTFParam{{A: 200, B: 0.5, C: 0.5}})
	obj := Object2D{Center: NewPoint2D(x, y), RadiusPx: 3}
	pr := otf.Footprint(0, obj).Clip(img.Rows, img.Cols)
	for row := pr.RowMin; row < pr.RowMax; row++ {
		for col := pr.ColMin; col < pr.ColMax; col++ {
			img.Add(row, col, otf.Intensity(0, obj, row, col))
		}
	}
}

func drawDisk(img *Image, x, y, radius, intensity float64) {
	for row := 0; row < img.Rows; row++ {
		for col := 0; col < img.Cols; col++ {
			if math.Hypot(float64(col)-x, float64(row)-y) <= radius {
				img.Set(row, col, intensity)
			}
		}
	}
}

func TestFindTracer2DSubPixel(t *testing.T) {
	img := NewImage(100, 100)
	drawSpot(img, 40.3, 50.6)
	drawSpot(img, 70.0, 20.45)

	found := NewObjectFinder2D(1).FindTracer2D(img, TracerFinderConfig{RadiusPx: 2, MinIntensity: 30})
	require.Len(t, found, 2)
	// brighter peak first
	assert.InDelta(t, 70.0, found[0].Center.X, 1e-6)
	assert.InDelta(t, 20.45, found[0].Center.Y, 1e-6)
	assert.InDelta(t, 40.3, found[1].Center.X, 1e-6)
	assert.InDelta(t, 50.6, found[1].Center.Y, 1e-6)
	assert.InDelta(t, 2, found[1].RadiusPx, eps)

	dim := NewObjectFinder2D(1).FindTracer2D(img, TracerFinderConfig{RadiusPx: 2, MinIntensity: 250})
	assert.Empty(t, dim)
}

func TestFindTracer2DTiled(t *testing.T) {
	img := NewImage(512, 512)
	spots := [][2]float64{{100.2, 100.3}, {255.4, 100.1}, {256.3, 300.2}, {400.1, 255.4}, {10.2, 500.3}}
	for _, s := range spots {
		drawSpot(img, s[0], s[1])
	}
	single := NewObjectFinder2D(1).FindTracer2D(img, TracerFinderConfig{RadiusPx: 2, MinIntensity: 30})
	tiled := NewObjectFinder2D(4).FindTracer2D(img, TracerFinderConfig{RadiusPx: 2, MinIntensity: 30})
	require.Len(t, single, len(spots))
	require.Len(t, tiled, len(spots))
	for _, s := range spots {
		idx := NewPointIndex2D(centers2D(tiled))
		_, ok := idx.FindNN2D(NewPoint2D(s[0], s[1]), 1e-6)
		assert.True(t, ok, "spot %v", s)
	}
}

func centers2D(objs []Object2D) []Point2D {
	result := make([]Point2D, len(objs))
	for i := range objs {
		result[i] = objs[i].Center
	}
	return result
}

func TestFindBubble2D(t *testing.T) {
	img := NewImage(120, 120)
	for i := range img.Data {
		img.Data[i] = 10
	}
	drawDisk(img, 60, 40, 6, 200)
	// too small to be a bubble
	drawDisk(img, 20, 90, 1, 200)

	cfg := BubbleFinderConfig{RadiusMin: 2, RadiusMax: 20, Sense: 2}
	found := NewObjectFinder2D(1).FindBubble2D(img, cfg)
	require.Len(t, found, 1)
	assert.InDelta(t, 60, found[0].Center.X, 1e-9)
	assert.InDelta(t, 40, found[0].Center.Y, 1e-9)
	assert.InDelta(t, 6, found[0].RadiusPx, 0.3)

	assert.Empty(t, NewObjectFinder2D(1).FindBubble2D(img, BubbleFinderConfig{RadiusMin: 5, RadiusMax: 3}))
}

func TestLogParabolaShift(t *testing.T) {
	gauss := func(x float64) float64 { return 100 * math.Exp(-0.5*(x-0.3)*(x-0.3)) }
	shift, ok := logParabolaShift(gauss(-1), gauss(0), gauss(1))
	require.True(t, ok)
	assert.InDelta(t, 0.3, shift, 1e-9)

	_, ok = logParabolaShift(5, 5, 5)
	assert.False(t, ok)
}
