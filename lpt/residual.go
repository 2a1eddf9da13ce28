package lpt

import (
	"math"

	"github.com/pkg/errors"
)

// AugView is cropped augmented image of one camera: residual plus the object's own contribution.
// Region is absolute window on the full image, Img and Residual are crops of that window.
type AugView struct {
	CamID    int
	Region   PixelRange
	Img      *Image
	Residual *Image
}

// At returns augmented value at absolute pixel
func (aug *AugView) At(row, col int) float64 {
	return aug.Img.At(row-aug.Region.RowMin, col-aug.Region.ColMin)
}

// ImgAugList holds augmented crops of a single object, one per camera it is seen on
type ImgAugList []AugView

// Get finds view of camera
func (list ImgAugList) Get(camID int) (*AugView, bool) {
	for i := range list {
		if list[i].CamID == camID {
			return &list[i], true
		}
	}
	return nil, false
}

// ResidualImages is arena of per-camera residual buffers: original minus rendered contributions of known objects.
// Residuals are accumulated unclamped so Subtract and Restore are exact inverses; clamping is applied on export.
// Mutating methods must not be called concurrently; Augment result is a private copy safe to score in parallel.
type ResidualImages struct {
	camIDs       []int
	originals    map[int]*Image
	residuals    map[int]*Image
	numCameras   int
	maxIntensity float64
}

// NewResidualImages copies originals (indexed by camera id) of given cameras
func NewResidualImages(camIDs []int, originals []*Image, maxIntensity float64) (*ResidualImages, error) {
	r := ResidualImages{
		camIDs:       make([]int, len(camIDs)),
		originals:    make(map[int]*Image, len(camIDs)),
		residuals:    make(map[int]*Image, len(camIDs)),
		numCameras:   len(originals),
		maxIntensity: maxIntensity,
	}
	copy(r.camIDs, camIDs)
	for _, camID := range camIDs {
		if camID < 0 || camID >= len(originals) || originals[camID] == nil {
			return nil, errors.Wrapf(ErrSizeMismatch, "no image for camera %d (got %d images)", camID, len(originals))
		}
		r.originals[camID] = originals[camID]
		r.residuals[camID] = originals[camID].Clone()
	}
	return &r, nil
}

func (r *ResidualImages) render(obj Object3D, renderer Renderer, sign float64) {
	for _, view := range obj.GetViews() {
		res, ok := r.residuals[view.CamID]
		if !ok {
			continue
		}
		pr := renderer.Footprint(view.CamID, view.Obj).Clip(res.Rows, res.Cols)
		for row := pr.RowMin; row < pr.RowMax; row++ {
			for col := pr.ColMin; col < pr.ColMax; col++ {
				v := clampFloat64(renderer.Intensity(view.CamID, view.Obj, row, col), 0, r.maxIntensity)
				res.Add(row, col, sign*v)
			}
		}
	}
}

// Subtract removes object's rendered contribution from residuals of cameras it is seen on
func (r *ResidualImages) Subtract(obj Object3D, renderer Renderer) {
	r.render(obj, renderer, -1)
}

// Restore adds back object's contribution. Inverse of Subtract for unchanged views
func (r *ResidualImages) Restore(obj Object3D, renderer Renderer) {
	r.render(obj, renderer, 1)
}

// Image returns clamped copy of camera residual or nil for unknown camera
func (r *ResidualImages) Image(camID int) *Image {
	res, ok := r.residuals[camID]
	if !ok {
		return nil
	}
	img := res.Clone()
	img.Clamp(0, r.maxIntensity)
	return img
}

// Images returns clamped residual copies indexed by camera id; cameras outside the set are nil
func (r *ResidualImages) Images() []*Image {
	images := make([]*Image, r.numCameras)
	for _, camID := range r.camIDs {
		images[camID] = r.Image(camID)
	}
	return images
}

// AbsResidual returns |residual| of camera, useful to inspect under and over subtraction
func (r *ResidualImages) AbsResidual(camID int) *Image {
	res, ok := r.residuals[camID]
	if !ok {
		return nil
	}
	img := res.Clone()
	for i, v := range img.Data {
		img.Data[i] = math.Abs(v)
	}
	return img
}

// Original returns original image of camera
func (r *ResidualImages) Original(camID int) *Image {
	return r.originals[camID]
}

// Augment builds crops of clamp(residual + own contribution) around every view of the object.
// Window is footprint at current projection widened by marginPx.
func (r *ResidualImages) Augment(obj Object3D, renderer Renderer, marginPx int) ImgAugList {
	list := make(ImgAugList, 0, obj.NumViews())
	for _, view := range obj.GetViews() {
		res, ok := r.residuals[view.CamID]
		if !ok {
			continue
		}
		fp := renderer.Footprint(view.CamID, view.Obj)
		region := PixelRange{
			RowMin: fp.RowMin - marginPx,
			RowMax: fp.RowMax + marginPx,
			ColMin: fp.ColMin - marginPx,
			ColMax: fp.ColMax + marginPx,
		}.Clip(res.Rows, res.Cols)
		aug := AugView{CamID: view.CamID, Region: region}
		if region.Empty() {
			aug.Img = NewImage(0, 0)
			aug.Residual = NewImage(0, 0)
			list = append(list, aug)
			continue
		}
		aug.Residual = res.Crop(region)
		aug.Img = aug.Residual.Clone()
		aug.Residual.Clamp(0, r.maxIntensity)
		fpClipped := fp.Clip(res.Rows, res.Cols)
		for row := fpClipped.RowMin; row < fpClipped.RowMax; row++ {
			for col := fpClipped.ColMin; col < fpClipped.ColMax; col++ {
				if !region.Contains(row, col) {
					continue
				}
				v := clampFloat64(renderer.Intensity(view.CamID, view.Obj, row, col), 0, r.maxIntensity)
				aug.Img.Add(row-region.RowMin, col-region.ColMin, v)
			}
		}
		aug.Img.Clamp(0, r.maxIntensity)
		list = append(list, aug)
	}
	return list
}
