package lpt

import (
	"math"
)

const eps = 0.00001

// twoCameraRig is a stereo pair looking at the origin from 45 degrees apart
func twoCameraRig() *CameraRig {
	c, s := math.Sqrt(0.5), math.Sqrt(0.5)
	cam0 := NewPinholeCamera(500, 500, 64, 64, 256, 256).
		WithPose([9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, [3]float64{0, 0, 100})
	cam1 := NewPinholeCamera(500, 500, 64, 64, 256, 256).
		WithPose([9]float64{c, 0, s, 0, 1, 0, -s, 0, c}, [3]float64{0, 0, 100})
	return NewCameraRig(cam0, cam1)
}

func testOTF() *OTF {
	return NewOTF([]OTFParam{
		{A: 200, B: 0.5, C: 0.5},
		{A: 200, B: 0.5, C: 0.5},
	})
}

// renderScene draws objects on blank images of every camera of the rig
func renderScene(rig *CameraRig, renderer Renderer, objs []Object3D, maxIntensity float64) []*Image {
	camIDs := make([]int, rig.NumCameras())
	images := make([]*Image, rig.NumCameras())
	for camID := range images {
		camIDs[camID] = camID
		rows, cols := rig.ImageSize(camID)
		images[camID] = NewImage(rows, cols)
	}
	for _, obj := range objs {
		cp := obj.Clone()
		if err := cp.Project(rig, camIDs); err != nil {
			panic(err)
		}
		for _, view := range cp.GetViews() {
			img := images[view.CamID]
			pr := renderer.Footprint(view.CamID, view.Obj).Clip(img.Rows, img.Cols)
			for row := pr.RowMin; row < pr.RowMax; row++ {
				for col := pr.ColMin; col < pr.ColMax; col++ {
					img.Add(row, col, clampFloat64(renderer.Intensity(view.CamID, view.Obj, row, col), 0, maxIntensity))
				}
			}
		}
	}
	for _, img := range images {
		img.Clamp(0, maxIntensity)
	}
	return images
}

// reprojectionError returns the largest pixel distance between projections of two points
func reprojectionError(rig *CameraRig, a, b Point3D) float64 {
	worst := 0.0
	for camID := 0; camID < rig.NumCameras(); camID++ {
		pa, errA := rig.Project(camID, a)
		pb, errB := rig.Project(camID, b)
		if errA != nil || errB != nil {
			return math.Inf(1)
		}
		worst = math.Max(worst, euclideanDistance(pa, pb))
	}
	return worst
}

// linearTrack builds track moving by velocity per frame starting at origin on frame 0
func linearTrack(origin, velocity Point3D, frames int) *Track {
	track := NewTrack(NewTracer3D(origin, 2), 0)
	for f := 1; f < frames; f++ {
		if err := track.AddNext(NewTracer3D(origin.Add(velocity.Mul(float64(f))), 2), f); err != nil {
			panic(err)
		}
	}
	return track
}
