package lpt

import "github.com/pkg/errors"

// Bubble3D is a finite-size spherical object
type Bubble3D struct {
	object3DBase
	// Radius in world units
	Radius float64
}

// NewBubble3D creates bubble without views
func NewBubble3D(center Point3D, radius float64) *Bubble3D {
	return &Bubble3D{
		object3DBase: object3DBase{center: center},
		Radius:       radius,
	}
}

func (obj *Bubble3D) GetKind() ObjectKind {
	return KindBubble
}

// Project updates centers and pixel radii on given cameras
func (obj *Bubble3D) Project(geom Geometry, camIDs []int) error {
	pts, err := projectAll(geom, obj.center, camIDs)
	if err != nil {
		return err
	}
	radii := make([]float64, len(camIDs))
	for i, camID := range camIDs {
		size, err := geom.PixelSize(camID, obj.center)
		if err != nil {
			return errors.Wrapf(err, "can't evaluate pixel size on camera %d", camID)
		}
		if size <= 0 {
			return errors.Wrapf(ErrDegenerateGeometry, "non-positive pixel size on camera %d", camID)
		}
		radii[i] = obj.Radius / size
	}
	for i, camID := range camIDs {
		obj.UpdateView(camID, Object2D{Center: pts[i], RadiusPx: radii[i]})
	}
	return nil
}

// EstimateRadius sets 3D radius from the mean of pixel radii of current views
func (obj *Bubble3D) EstimateRadius(geom Geometry) error {
	if len(obj.views) == 0 {
		return errors.Wrap(ErrInsufficientViews, "no views to estimate radius")
	}
	sum := 0.0
	for _, view := range obj.views {
		size, err := geom.PixelSize(view.CamID, obj.center)
		if err != nil {
			return errors.Wrapf(err, "can't evaluate pixel size on camera %d", view.CamID)
		}
		sum += view.Obj.RadiusPx * size
	}
	obj.Radius = sum / float64(len(obj.views))
	return nil
}

func (obj *Bubble3D) Clone() Object3D {
	return &Bubble3D{
		object3DBase: obj.cloneBase(),
		Radius:       obj.Radius,
	}
}
