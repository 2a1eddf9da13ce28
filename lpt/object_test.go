package lpt

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectAddViews(t *testing.T) {
	obj := NewTracer3D(NewPoint3D(0, 0, 0), 2)
	objs := []Object2D{{Center: NewPoint2D(1, 2)}, {Center: NewPoint2D(3, 4)}}

	err := obj.AddViews(objs, []int{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
	assert.Equal(t, 0, obj.NumViews())

	err = obj.AddViews(objs, []int{1, 1})
	assert.True(t, errors.Is(err, ErrDuplicateView))
	assert.Equal(t, 0, obj.NumViews())

	require.NoError(t, obj.AddViews(objs, []int{2, 0}))
	assert.Equal(t, []int{2, 0}, obj.GetCamIDs())
	view, ok := obj.GetView(0)
	require.True(t, ok)
	assert.Equal(t, NewPoint2D(3, 4), view.Center)

	err = obj.AddView(2, Object2D{})
	assert.True(t, errors.Is(err, ErrDuplicateView))
}

func TestObjectUpdateRemoveViews(t *testing.T) {
	obj := NewTracer3D(NewPoint3D(0, 0, 0), 2)
	obj.UpdateView(1, Object2D{Center: NewPoint2D(1, 1)})
	obj.UpdateView(1, Object2D{Center: NewPoint2D(2, 2)})
	obj.UpdateView(3, Object2D{Center: NewPoint2D(3, 3)})
	assert.Equal(t, 2, obj.NumViews())
	view, _ := obj.GetView(1)
	assert.Equal(t, NewPoint2D(2, 2), view.Center)

	obj.RemoveView(1)
	obj.RemoveView(42)
	assert.Equal(t, []int{3}, obj.GetCamIDs())

	require.NoError(t, obj.UpdateViews([]Object2D{{}, {}, {}}, []int{0, 1, 2}))
	assert.Equal(t, []int{0, 1, 2}, obj.GetCamIDs())
	obj.RemoveViews([]int{0, 2})
	assert.Equal(t, []int{1}, obj.GetCamIDs())
	assert.True(t, errors.Is(obj.UpdateViews([]Object2D{{}}, []int{0, 1}), ErrSizeMismatch))

	obj.ClearViews()
	assert.Equal(t, 0, obj.NumViews())
	_, ok := obj.GetView(1)
	assert.False(t, ok)
}

func TestObjectCloneIsIndependent(t *testing.T) {
	obj := NewBubble3D(NewPoint3D(1, 2, 3), 0.5)
	require.NoError(t, obj.AddView(0, Object2D{Center: NewPoint2D(5, 5), RadiusPx: 3}))
	cp := obj.Clone()
	cp.SetCenter(NewPoint3D(0, 0, 0))
	cp.UpdateView(0, Object2D{Center: NewPoint2D(9, 9)})
	cp.UpdateView(1, Object2D{})

	assert.Equal(t, NewPoint3D(1, 2, 3), obj.GetCenter())
	view, _ := obj.GetView(0)
	assert.Equal(t, NewPoint2D(5, 5), view.Center)
	assert.Equal(t, 1, obj.NumViews())
	assert.Equal(t, KindBubble, cp.GetKind())
	assert.InDelta(t, 0.5, cp.(*Bubble3D).Radius, eps)
}

func TestObjectProjectKeepsStateOnFailure(t *testing.T) {
	rig := twoCameraRig()
	obj := NewTracer3D(NewPoint3D(10, 10, 10), 2)
	require.NoError(t, obj.Project(rig, []int{0, 1}))
	before := obj.GetViews()

	obj.SetCenter(NewPoint3D(0, 0, -150))
	err := obj.Project(rig, []int{0, 1})
	require.Error(t, err)
	assert.Equal(t, before, obj.GetViews())
}

func TestBubbleProjectAndEstimateRadius(t *testing.T) {
	rig := twoCameraRig()
	bubble := NewBubble3D(NewPoint3D(0, 0, 10), 1.1)
	require.NoError(t, bubble.Project(rig, []int{0, 1}))
	view, ok := bubble.GetView(0)
	require.True(t, ok)
	assert.InDelta(t, 1.1/(110.0/500), view.RadiusPx, eps)

	bubble.Radius = 0
	require.NoError(t, bubble.EstimateRadius(rig))
	assert.InDelta(t, 1.1, bubble.Radius, eps)

	empty := NewBubble3D(NewPoint3D(0, 0, 0), 1)
	assert.True(t, errors.Is(empty.EstimateRadius(rig), ErrInsufficientViews))
}

func TestParseObjectKind(t *testing.T) {
	kind, err := ParseObjectKind("Bubble")
	require.NoError(t, err)
	assert.Equal(t, KindBubble, kind)
	kind, err = ParseObjectKind("")
	require.NoError(t, err)
	assert.Equal(t, KindTracer, kind)
	_, err = ParseObjectKind("droplet")
	assert.True(t, errors.Is(err, ErrBadConfig))
}
