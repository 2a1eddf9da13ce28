package lpt

import (
	"image"
	"image/color"

	"gonum.org/v1/gonum/stat"
)

// Image is row-major grid of intensities
type Image struct {
	Rows int
	Cols int
	Data []float64
}

// NewImage creates zero filled image
func NewImage(rows, cols int) *Image {
	return &Image{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// ImageFromGray converts any image.Image to intensities using 16-bit gray luminance scaled to maxIntensity
func ImageFromGray(src image.Image, maxIntensity float64) *Image {
	bounds := src.Bounds()
	img := NewImage(bounds.Dy(), bounds.Dx())
	for row := 0; row < img.Rows; row++ {
		for col := 0; col < img.Cols; col++ {
			g := color.Gray16Model.Convert(src.At(bounds.Min.X+col, bounds.Min.Y+row)).(color.Gray16)
			img.Data[row*img.Cols+col] = float64(g.Y) / 0xffff * maxIntensity
		}
	}
	return img
}

func (img *Image) At(row, col int) float64 {
	return img.Data[row*img.Cols+col]
}

func (img *Image) Set(row, col int, v float64) {
	img.Data[row*img.Cols+col] = v
}

func (img *Image) Add(row, col int, v float64) {
	img.Data[row*img.Cols+col] += v
}

// InBounds checks pixel indices
func (img *Image) InBounds(row, col int) bool {
	return row >= 0 && row < img.Rows && col >= 0 && col < img.Cols
}

// Bounds returns whole image as range
func (img *Image) Bounds() PixelRange {
	return PixelRange{RowMin: 0, RowMax: img.Rows, ColMin: 0, ColMax: img.Cols}
}

// Clone makes deep copy
func (img *Image) Clone() *Image {
	cp := Image{
		Rows: img.Rows,
		Cols: img.Cols,
		Data: make([]float64, len(img.Data)),
	}
	copy(cp.Data, img.Data)
	return &cp
}

// Crop copies pixels of range clipped to image
func (img *Image) Crop(pr PixelRange) *Image {
	pr = pr.Clip(img.Rows, img.Cols)
	if pr.Empty() {
		return NewImage(0, 0)
	}
	out := NewImage(pr.RowMax-pr.RowMin, pr.ColMax-pr.ColMin)
	for row := pr.RowMin; row < pr.RowMax; row++ {
		copy(out.Data[(row-pr.RowMin)*out.Cols:(row-pr.RowMin+1)*out.Cols], img.Data[row*img.Cols+pr.ColMin:row*img.Cols+pr.ColMax])
	}
	return out
}

// Clamp limits every pixel to [lo, hi] in place
func (img *Image) Clamp(lo, hi float64) {
	for i, v := range img.Data {
		img.Data[i] = clampFloat64(v, lo, hi)
	}
}

// Max returns maximum intensity in range
func (img *Image) Max(pr PixelRange) float64 {
	pr = pr.Clip(img.Rows, img.Cols)
	result := 0.0
	first := true
	for row := pr.RowMin; row < pr.RowMax; row++ {
		for col := pr.ColMin; col < pr.ColMax; col++ {
			v := img.At(row, col)
			if first || v > result {
				result = v
				first = false
			}
		}
	}
	return result
}

// MeanStd returns mean and standard deviation of all pixels
func (img *Image) MeanStd() (float64, float64) {
	if len(img.Data) == 0 {
		return 0, 0
	}
	return stat.MeanStdDev(img.Data, nil)
}

// Bilinear samples image at sub-pixel position; outside samples are zero
func (img *Image) Bilinear(row, col float64) float64 {
	if row < 0 || col < 0 || row > float64(img.Rows-1) || col > float64(img.Cols-1) {
		return 0
	}
	r0 := int(row)
	c0 := int(col)
	r1 := minInt(r0+1, img.Rows-1)
	c1 := minInt(c0+1, img.Cols-1)
	dr := row - float64(r0)
	dc := col - float64(c0)
	top := img.At(r0, c0)*(1-dc) + img.At(r0, c1)*dc
	bottom := img.At(r1, c0)*(1-dc) + img.At(r1, c1)*dc
	return top*(1-dr) + bottom*dr
}

// Resize resamples image to rows x cols using bilinear interpolation
func (img *Image) Resize(rows, cols int) *Image {
	out := NewImage(rows, cols)
	if img.Rows == 0 || img.Cols == 0 {
		return out
	}
	sr := 0.0
	if rows > 1 {
		sr = float64(img.Rows-1) / float64(rows-1)
	}
	sc := 0.0
	if cols > 1 {
		sc = float64(img.Cols-1) / float64(cols-1)
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			out.Set(row, col, img.Bilinear(float64(row)*sr, float64(col)*sc))
		}
	}
	return out
}
