package lpt

import "math"

// Renderer forward-renders a 2D object on a camera image
type Renderer interface {
	// Footprint returns unclipped pixel window touched by the object
	Footprint(camID int, obj Object2D) PixelRange
	// Intensity returns rendered value at pixel (row, col)
	Intensity(camID int, obj Object2D, row, col int) float64
}

// OTFParam is elliptical Gaussian point spread: a*exp(-b*xx^2 - c*yy^2) in axes rotated by Alpha
type OTFParam struct {
	A     float64 `yaml:"a"`
	B     float64 `yaml:"b"`
	C     float64 `yaml:"c"`
	Alpha float64 `yaml:"alpha"`
}

// OTF renders tracers with per-camera Gaussian parameters
type OTF struct {
	params []OTFParam
}

// NewOTF creates renderer, params are indexed by camera id
func NewOTF(params []OTFParam) *OTF {
	cp := make([]OTFParam, len(params))
	copy(cp, params)
	return &OTF{params: cp}
}

// Param returns parameters of camera
func (otf *OTF) Param(camID int) (OTFParam, bool) {
	if camID < 0 || camID >= len(otf.params) {
		return OTFParam{}, false
	}
	return otf.params[camID], true
}

func (otf *OTF) Footprint(camID int, obj Object2D) PixelRange {
	return rangeAround(obj.Center, int(math.Ceil(obj.RadiusPx))+1)
}

func (otf *OTF) Intensity(camID int, obj Object2D, row, col int) float64 {
	param, ok := otf.Param(camID)
	if !ok {
		return 0
	}
	dx := float64(col) - obj.Center.X
	dy := float64(row) - obj.Center.Y
	sinA, cosA := math.Sincos(param.Alpha)
	xx := dx*cosA + dy*sinA
	yy := -dx*sinA + dy*cosA
	value := param.A * math.Exp(-param.B*xx*xx-param.C*yy*yy)
	return maxFloat64(value, 0)
}
