package lpt

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResidualSubtractRestore(t *testing.T) {
	rig := twoCameraRig()
	model := NewTracerModel(testOTF(), 255)
	a := NewTracer3D(NewPoint3D(10, 10, 10), 3)
	b := NewTracer3D(NewPoint3D(10.3, 10, 10), 3)
	images := renderScene(rig, model, []Object3D{a, b}, 255)

	residual, err := NewResidualImages([]int{0, 1}, images, 255)
	require.NoError(t, err)
	require.NoError(t, a.Project(rig, []int{0, 1}))
	require.NoError(t, b.Project(rig, []int{0, 1}))

	residual.Subtract(a, model)
	residual.Subtract(b, model)
	residual.Restore(a, model)
	residual.Restore(b, model)
	for _, camID := range []int{0, 1} {
		got := residual.Image(camID)
		for i := range got.Data {
			if got.Data[i]-images[camID].Data[i] > eps || images[camID].Data[i]-got.Data[i] > eps {
				t.Errorf("camera %d pixel %d: %f, expected %f", camID, i, got.Data[i], images[camID].Data[i])
				return
			}
		}
	}
	// originals are not modified
	assert.Same(t, images[0], residual.Original(0))
}

func TestResidualAugmentReproducesOriginal(t *testing.T) {
	rig := twoCameraRig()
	model := NewTracerModel(testOTF(), 255)
	obj := NewTracer3D(NewPoint3D(10, 10, 10), 3)
	images := renderScene(rig, model, []Object3D{obj}, 255)
	require.NoError(t, obj.Project(rig, []int{0, 1}))

	residual, err := NewResidualImages([]int{0, 1}, images, 255)
	require.NoError(t, err)
	residual.Subtract(obj, model)

	aug := residual.Augment(obj, model, 2)
	require.Len(t, aug, 2)
	for _, view := range aug {
		want := images[view.CamID].Crop(view.Region)
		require.Equal(t, want.Rows, view.Img.Rows)
		require.Equal(t, want.Cols, view.Img.Cols)
		for i := range want.Data {
			assert.InDelta(t, want.Data[i], view.Img.Data[i], eps)
			assert.InDelta(t, 0, view.Residual.Data[i], eps)
		}
		obj2d, _ := obj.GetView(view.CamID)
		row, col := int(obj2d.Center.Y+0.5), int(obj2d.Center.X+0.5)
		assert.InDelta(t, images[view.CamID].At(row, col), view.At(row, col), eps)
	}

	images0 := residual.Images()
	require.Len(t, images0, 2)
	assert.InDelta(t, 0, images0[0].Max(images0[0].Bounds()), eps)
}

func TestResidualAugmentClipsAtBorder(t *testing.T) {
	model := NewTracerModel(testOTF(), 255)
	images := []*Image{NewImage(256, 256), NewImage(256, 256)}
	residual, err := NewResidualImages([]int{0, 1}, images, 255)
	require.NoError(t, err)

	obj := NewTracer3D(NewPoint3D(0, 0, 0), 3)
	obj.UpdateView(0, Object2D{Center: NewPoint2D(0.2, 1.1), RadiusPx: 3})
	obj.UpdateView(1, Object2D{Center: NewPoint2D(-50, -50), RadiusPx: 3})
	aug := residual.Augment(obj, model, 2)
	require.Len(t, aug, 2)

	view0, ok := aug.Get(0)
	require.True(t, ok)
	assert.Equal(t, PixelRange{RowMin: 0, RowMax: 8, ColMin: 0, ColMax: 7}, view0.Region)
	view1, ok := aug.Get(1)
	require.True(t, ok)
	assert.True(t, view1.Region.Empty())
}

func TestResidualMissingImage(t *testing.T) {
	_, err := NewResidualImages([]int{0, 1}, []*Image{NewImage(4, 4)}, 255)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
}
