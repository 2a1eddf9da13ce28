package lpt

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Geometry is calibrated multi-camera model used by reconstruction and shaking.
// Implementations must be safe for concurrent use.
type Geometry interface {
	NumCameras() int
	// ImageSize returns rows and columns of camera images
	ImageSize(camID int) (int, int)
	// Project maps world point to sub-pixel image position
	Project(camID int, pt Point3D) (Point2D, error)
	// Triangulate estimates world point from at least two views. Second value is mean reprojection error in pixels
	Triangulate(views []View) (Point3D, float64, error)
	// PixelSize returns world length covered by one pixel at given point
	PixelSize(camID int, pt Point3D) (float64, error)
}

// PinholeCamera is ideal pinhole model: x_cam = R*X + T, u = Fx*x/z + Cx, v = Fy*y/z + Cy
type PinholeCamera struct {
	Fx   float64
	Fy   float64
	Cx   float64
	Cy   float64
	R    [9]float64 // row-major rotation
	T    [3]float64
	Rows int
	Cols int
}

// NewPinholeCamera creates camera with identity rotation
func NewPinholeCamera(fx, fy, cx, cy float64, rows, cols int) *PinholeCamera {
	return &PinholeCamera{
		Fx:   fx,
		Fy:   fy,
		Cx:   cx,
		Cy:   cy,
		R:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Rows: rows,
		Cols: cols,
	}
}

// WithPose sets rotation (row-major) and translation
func (cam *PinholeCamera) WithPose(r [9]float64, t [3]float64) *PinholeCamera {
	cam.R = r
	cam.T = t
	return cam
}

func (cam *PinholeCamera) toCamera(pt Point3D) Point3D {
	r := cam.R
	return Point3D{
		X: r[0]*pt.X + r[1]*pt.Y + r[2]*pt.Z + cam.T[0],
		Y: r[3]*pt.X + r[4]*pt.Y + r[5]*pt.Z + cam.T[1],
		Z: r[6]*pt.X + r[7]*pt.Y + r[8]*pt.Z + cam.T[2],
	}
}

// Project maps world point onto image plane
func (cam *PinholeCamera) Project(pt Point3D) (Point2D, error) {
	pc := cam.toCamera(pt)
	if pc.Z <= 1e-9 {
		return Point2D{}, errors.Wrapf(ErrDegenerateGeometry, "point (%.3f, %.3f, %.3f) is behind camera", pt.X, pt.Y, pt.Z)
	}
	return Point2D{
		X: cam.Fx*pc.X/pc.Z + cam.Cx,
		Y: cam.Fy*pc.Y/pc.Z + cam.Cy,
	}, nil
}

// PixelSize returns world size of one pixel at depth of given point
func (cam *PinholeCamera) PixelSize(pt Point3D) (float64, error) {
	pc := cam.toCamera(pt)
	if pc.Z <= 1e-9 {
		return 0, errors.Wrap(ErrDegenerateGeometry, "point is behind camera")
	}
	return pc.Z / (0.5 * (cam.Fx + cam.Fy)), nil
}

// ProjectionMatrix returns 3x4 matrix K*[R|T]
func (cam *PinholeCamera) ProjectionMatrix() *mat.Dense {
	k := mat.NewDense(3, 3, []float64{
		cam.Fx, 0, cam.Cx,
		0, cam.Fy, cam.Cy,
		0, 0, 1,
	})
	rt := mat.NewDense(3, 4, []float64{
		cam.R[0], cam.R[1], cam.R[2], cam.T[0],
		cam.R[3], cam.R[4], cam.R[5], cam.T[1],
		cam.R[6], cam.R[7], cam.R[8], cam.T[2],
	})
	var p mat.Dense
	p.Mul(k, rt)
	return &p
}

// InImage checks whether position lies on the sensor of camera
func InImage(geom Geometry, camID int, pt Point2D) bool {
	rows, cols := geom.ImageSize(camID)
	return pt.X >= 0 && pt.Y >= 0 && pt.X <= float64(cols-1) && pt.Y <= float64(rows-1)
}

// CameraRig is set of pinhole cameras indexed by camera id
type CameraRig struct {
	cams        []*PinholeCamera
	projections []*mat.Dense
}

// NewCameraRig creates rig; camera id is position in the list
func NewCameraRig(cams ...*PinholeCamera) *CameraRig {
	rig := CameraRig{
		cams:        cams,
		projections: make([]*mat.Dense, len(cams)),
	}
	for i, cam := range cams {
		rig.projections[i] = cam.ProjectionMatrix()
	}
	return &rig
}

func (rig *CameraRig) NumCameras() int {
	return len(rig.cams)
}

// Camera returns camera by id or nil
func (rig *CameraRig) Camera(camID int) *PinholeCamera {
	if camID < 0 || camID >= len(rig.cams) {
		return nil
	}
	return rig.cams[camID]
}

func (rig *CameraRig) ImageSize(camID int) (int, int) {
	cam := rig.Camera(camID)
	if cam == nil {
		return 0, 0
	}
	return cam.Rows, cam.Cols
}

func (rig *CameraRig) Project(camID int, pt Point3D) (Point2D, error) {
	cam := rig.Camera(camID)
	if cam == nil {
		return Point2D{}, errors.Wrapf(ErrSizeMismatch, "camera id %d is out of range [0, %d)", camID, len(rig.cams))
	}
	return cam.Project(pt)
}

func (rig *CameraRig) PixelSize(camID int, pt Point3D) (float64, error) {
	cam := rig.Camera(camID)
	if cam == nil {
		return 0, errors.Wrapf(ErrSizeMismatch, "camera id %d is out of range [0, %d)", camID, len(rig.cams))
	}
	return cam.PixelSize(pt)
}

// Triangulate solves linear DLT system by SVD and reports mean reprojection error
func (rig *CameraRig) Triangulate(views []View) (Point3D, float64, error) {
	if len(views) < 2 {
		return Point3D{}, 0, errors.Wrapf(ErrInsufficientViews, "got %d views, need 2", len(views))
	}
	a := mat.NewDense(2*len(views), 4, nil)
	for i, view := range views {
		if view.CamID < 0 || view.CamID >= len(rig.cams) {
			return Point3D{}, 0, errors.Wrapf(ErrSizeMismatch, "camera id %d is out of range [0, %d)", view.CamID, len(rig.cams))
		}
		p := rig.projections[view.CamID]
		x, y := view.Obj.Center.X, view.Obj.Center.Y
		for j := 0; j < 4; j++ {
			a.Set(2*i, j, x*p.At(2, j)-p.At(0, j))
			a.Set(2*i+1, j, y*p.At(2, j)-p.At(1, j))
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Point3D{}, 0, errors.Wrap(ErrDegenerateGeometry, "SVD factorization failed")
	}
	values := svd.Values(nil)
	if len(values) < 3 || values[0] == 0 || values[2]/values[0] < 1e-12 {
		return Point3D{}, 0, errors.Wrap(ErrDegenerateGeometry, "rank deficient system")
	}
	var v mat.Dense
	svd.VTo(&v)
	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return Point3D{}, 0, errors.Wrap(ErrDegenerateGeometry, "point at infinity")
	}
	pt := Point3D{X: v.At(0, 3) / w, Y: v.At(1, 3) / w, Z: v.At(2, 3) / w}

	errSum := 0.0
	for _, view := range views {
		proj, err := rig.cams[view.CamID].Project(pt)
		if err != nil {
			return Point3D{}, 0, errors.Wrapf(err, "can't reproject to camera %d", view.CamID)
		}
		errSum += euclideanDistance(proj, view.Obj.Center)
	}
	return pt, errSum / float64(len(views)), nil
}
