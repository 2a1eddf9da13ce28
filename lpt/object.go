package lpt

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ObjectKind distinguishes point tracers from finite-size bubbles
type ObjectKind uint8

const (
	KindTracer ObjectKind = iota
	KindBubble
)

func (kind ObjectKind) String() string {
	switch kind {
	case KindTracer:
		return "tracer"
	case KindBubble:
		return "bubble"
	default:
		return fmt.Sprintf("ObjectKind(%d)", kind)
	}
}

// ParseObjectKind parses "tracer" or "bubble" (case insensitive)
func ParseObjectKind(s string) (ObjectKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tracer", "":
		return KindTracer, nil
	case "bubble":
		return KindBubble, nil
	default:
		return 0, errors.Wrapf(ErrBadConfig, "unknown object type '%s'", s)
	}
}

// Object2D is projection of an object on a single camera
type Object2D struct {
	Center Point2D
	// Bubble radius in pixels. Tracers carry nominal radius used for rendering windows
	RadiusPx float64
}

// View pairs camera id with the object's projection on that camera
type View struct {
	CamID int
	Obj   Object2D
}

// Object3D is the capability set shared by tracers and bubbles.
// Camera ids are unique per object and views keep insertion order.
type Object3D interface {
	GetKind() ObjectKind

	GetCenter() Point3D
	SetCenter(center Point3D)
	// Reconstruction (triangulation) error in pixels
	GetError() float64
	SetError(err float64)

	GetViews() []View
	NumViews() int
	GetCamIDs() []int
	GetView(camID int) (Object2D, bool)
	AddView(camID int, obj Object2D) error
	AddViews(objs []Object2D, camIDs []int) error
	UpdateView(camID int, obj Object2D)
	UpdateViews(objs []Object2D, camIDs []int) error
	RemoveView(camID int)
	RemoveViews(camIDs []int)
	ClearViews()

	// Project re-computes 2D views on given cameras from the 3D state
	Project(geom Geometry, camIDs []int) error
	Clone() Object3D
}

type object3DBase struct {
	center Point3D
	err    float64
	views  []View
}

func (obj *object3DBase) GetCenter() Point3D {
	return obj.center
}

func (obj *object3DBase) SetCenter(center Point3D) {
	obj.center = center
}

func (obj *object3DBase) GetError() float64 {
	return obj.err
}

func (obj *object3DBase) SetError(err float64) {
	obj.err = err
}

// GetViews returns copy of views
func (obj *object3DBase) GetViews() []View {
	views := make([]View, len(obj.views))
	copy(views, obj.views)
	return views
}

func (obj *object3DBase) NumViews() int {
	return len(obj.views)
}

func (obj *object3DBase) GetCamIDs() []int {
	ids := make([]int, len(obj.views))
	for i := range obj.views {
		ids[i] = obj.views[i].CamID
	}
	return ids
}

func (obj *object3DBase) indexOf(camID int) int {
	for i := range obj.views {
		if obj.views[i].CamID == camID {
			return i
		}
	}
	return -1
}

func (obj *object3DBase) GetView(camID int) (Object2D, bool) {
	idx := obj.indexOf(camID)
	if idx < 0 {
		return Object2D{}, false
	}
	return obj.views[idx].Obj, true
}

func (obj *object3DBase) AddView(camID int, obj2d Object2D) error {
	if obj.indexOf(camID) >= 0 {
		return errors.Wrapf(ErrDuplicateView, "camera %d", camID)
	}
	obj.views = append(obj.views, View{CamID: camID, Obj: obj2d})
	return nil
}

// AddViews validates the whole batch before appending anything
func (obj *object3DBase) AddViews(objs []Object2D, camIDs []int) error {
	if len(objs) != len(camIDs) {
		return errors.Wrapf(ErrSizeMismatch, "%d 2D objects vs %d camera ids", len(objs), len(camIDs))
	}
	seen := make(map[int]struct{}, len(camIDs))
	for _, camID := range camIDs {
		if _, ok := seen[camID]; ok || obj.indexOf(camID) >= 0 {
			return errors.Wrapf(ErrDuplicateView, "camera %d", camID)
		}
		seen[camID] = struct{}{}
	}
	for i := range objs {
		obj.views = append(obj.views, View{CamID: camIDs[i], Obj: objs[i]})
	}
	return nil
}

// UpdateView replaces view of the camera or appends it
func (obj *object3DBase) UpdateView(camID int, obj2d Object2D) {
	idx := obj.indexOf(camID)
	if idx < 0 {
		obj.views = append(obj.views, View{CamID: camID, Obj: obj2d})
		return
	}
	obj.views[idx].Obj = obj2d
}

// UpdateViews replaces the whole view list
func (obj *object3DBase) UpdateViews(objs []Object2D, camIDs []int) error {
	if len(objs) != len(camIDs) {
		return errors.Wrapf(ErrSizeMismatch, "%d 2D objects vs %d camera ids", len(objs), len(camIDs))
	}
	seen := make(map[int]struct{}, len(camIDs))
	for _, camID := range camIDs {
		if _, ok := seen[camID]; ok {
			return errors.Wrapf(ErrDuplicateView, "camera %d", camID)
		}
		seen[camID] = struct{}{}
	}
	views := make([]View, len(objs))
	for i := range objs {
		views[i] = View{CamID: camIDs[i], Obj: objs[i]}
	}
	obj.views = views
	return nil
}

func (obj *object3DBase) RemoveView(camID int) {
	idx := obj.indexOf(camID)
	if idx < 0 {
		return
	}
	obj.views = append(obj.views[:idx], obj.views[idx+1:]...)
}

func (obj *object3DBase) RemoveViews(camIDs []int) {
	for _, camID := range camIDs {
		obj.RemoveView(camID)
	}
}

func (obj *object3DBase) ClearViews() {
	obj.views = obj.views[:0]
}

func (obj *object3DBase) cloneBase() object3DBase {
	return object3DBase{
		center: obj.center,
		err:    obj.err,
		views:  obj.GetViews(),
	}
}

// projectAll computes projections on every camera before touching the object so a failure leaves it unchanged
func projectAll(geom Geometry, center Point3D, camIDs []int) ([]Point2D, error) {
	pts := make([]Point2D, len(camIDs))
	for i, camID := range camIDs {
		pt, err := geom.Project(camID, center)
		if err != nil {
			return nil, errors.Wrapf(err, "can't project on camera %d", camID)
		}
		pts[i] = pt
	}
	return pts, nil
}
