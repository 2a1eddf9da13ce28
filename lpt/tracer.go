package lpt

// Tracer3D is a point-like particle
type Tracer3D struct {
	object3DBase
	// RadiusPx is nominal image radius used when projecting
	RadiusPx float64
}

// NewTracer3D creates tracer without views
func NewTracer3D(center Point3D, radiusPx float64) *Tracer3D {
	return &Tracer3D{
		object3DBase: object3DBase{center: center},
		RadiusPx:     radiusPx,
	}
}

func (obj *Tracer3D) GetKind() ObjectKind {
	return KindTracer
}

func (obj *Tracer3D) Project(geom Geometry, camIDs []int) error {
	pts, err := projectAll(geom, obj.center, camIDs)
	if err != nil {
		return err
	}
	for i, camID := range camIDs {
		obj.UpdateView(camID, Object2D{Center: pts[i], RadiusPx: obj.RadiusPx})
	}
	return nil
}

func (obj *Tracer3D) Clone() Object3D {
	return &Tracer3D{
		object3DBase: obj.cloneBase(),
		RadiusPx:     obj.RadiusPx,
	}
}
