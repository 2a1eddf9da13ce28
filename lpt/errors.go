package lpt

import "github.com/pkg/errors"

var (
	// ErrSizeMismatch is returned when paired lists (2D objects and camera ids, images and cameras) differ in length
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrInsufficientViews is returned when an object is seen by fewer cameras than required
	ErrInsufficientViews = errors.New("insufficient views")
	// ErrNonConvergent marks shaking that reached iteration cap while still improving
	ErrNonConvergent = errors.New("optimization non-convergent")
	// ErrDegenerateGeometry is returned for points behind a camera or rank deficient triangulation
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrDuplicateView is returned when camera id is already present in object
	ErrDuplicateView = errors.New("duplicate camera view")
	// ErrFrameOrder is returned when frame index appended to track is not strictly increasing
	ErrFrameOrder = errors.New("frame index is not increasing")
	// ErrBadConfig is returned for invalid configuration values
	ErrBadConfig = errors.New("bad configuration")
)
