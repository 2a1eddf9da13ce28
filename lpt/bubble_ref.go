package lpt

import "math"

// BubbleRefImg keeps per-camera bubble appearance templates. Template square spans bubble diameter.
type BubbleRefImg struct {
	Templates map[int]*Image
}

// NewBubbleRefImg wraps templates keyed by camera id
func NewBubbleRefImg(templates map[int]*Image) *BubbleRefImg {
	return &BubbleRefImg{Templates: templates}
}

// UniformBubbleRefImg uses the same disk template for every camera
func UniformBubbleRefImg(camIDs []int, size int, intensity, background float64) *BubbleRefImg {
	templates := make(map[int]*Image, len(camIDs))
	for _, camID := range camIDs {
		templates[camID] = DiskTemplate(size, intensity, background)
	}
	return NewBubbleRefImg(templates)
}

// DiskTemplate draws bright disk with one pixel soft edge on background
func DiskTemplate(size int, intensity, background float64) *Image {
	img := NewImage(size, size)
	c := float64(size-1) / 2.0
	r := c
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			d := math.Hypot(float64(row)-c, float64(col)-c)
			w := clampFloat64(r+0.5-d, 0, 1)
			img.Set(row, col, background+(intensity-background)*w)
		}
	}
	return img
}

func (ref *BubbleRefImg) Footprint(camID int, obj Object2D) PixelRange {
	return rangeAround(obj.Center, int(math.Ceil(obj.RadiusPx))+1)
}

// Intensity samples template scaled to the bubble radius
func (ref *BubbleRefImg) Intensity(camID int, obj Object2D, row, col int) float64 {
	tmpl, ok := ref.Templates[camID]
	if !ok || tmpl.Rows == 0 || obj.RadiusPx <= 0 {
		return 0
	}
	u := (float64(col) - obj.Center.X) / obj.RadiusPx
	v := (float64(row) - obj.Center.Y) / obj.RadiusPx
	if math.Abs(u) > 1 || math.Abs(v) > 1 {
		return 0
	}
	scale := float64(tmpl.Rows-1) / 2.0
	return tmpl.Bilinear((v+1)*scale, (u+1)*scale)
}

// BuildBubbleRefImg averages crops of large bubbles into per-camera templates.
// Bubbles with pixel radius below rThres are ignored; every camera needs at least nThres crops.
func BuildBubbleRefImg(bubbles []*Bubble3D, images []*Image, camIDs []int, rThres float64, nThres, size int) (*BubbleRefImg, bool) {
	if size < 3 {
		size = 3
	}
	templates := make(map[int]*Image, len(camIDs))
	for _, camID := range camIDs {
		if camID < 0 || camID >= len(images) || images[camID] == nil {
			return nil, false
		}
		img := images[camID]
		acc := NewImage(size, size)
		count := 0
		peakSum := 0.0
		for _, bubble := range bubbles {
			view, ok := bubble.GetView(camID)
			if !ok || view.RadiusPx < rThres {
				continue
			}
			half := int(math.Round(view.RadiusPx))
			window := rangeAround(view.Center, half)
			if window.Clip(img.Rows, img.Cols) != window {
				continue
			}
			crop := img.Crop(window).Resize(size, size)
			peak := crop.Max(crop.Bounds())
			if peak <= 0 {
				continue
			}
			for i, v := range crop.Data {
				acc.Data[i] += v / peak
			}
			peakSum += peak
			count++
		}
		if count < nThres {
			return nil, false
		}
		meanPeak := peakSum / float64(count)
		for i := range acc.Data {
			acc.Data[i] = acc.Data[i] / float64(count) * meanPeak
		}
		templates[camID] = acc
	}
	return NewBubbleRefImg(templates), true
}
