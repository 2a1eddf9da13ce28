package lpt

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CameraConfig is pinhole camera calibration
type CameraConfig struct {
	Fx float64 `yaml:"fx"`
	Fy float64 `yaml:"fy"`
	Cx float64 `yaml:"cx"`
	Cy float64 `yaml:"cy"`
	// Row-major 3x3 rotation, identity when omitted
	Rotation    []float64 `yaml:"rotation,omitempty"`
	Translation []float64 `yaml:"translation"`
	Rows        int       `yaml:"rows"`
	Cols        int       `yaml:"cols"`
}

// TracerConfig holds tracer detection and optical model
type TracerConfig struct {
	Finder TracerFinderConfig `yaml:",inline"`
	// Gaussian OTF per camera
	OTF []OTFParam `yaml:"otf"`
}

// BubbleConfig holds bubble detection and template parameters
type BubbleConfig struct {
	Finder       BubbleFinderConfig `yaml:",inline"`
	TemplateSize int                `yaml:"templateSize"`
	Intensity    float64            `yaml:"intensity"`
	Background   float64            `yaml:"background"`
	// Templates are rebuilt from bubbles with radius >= RefRThres px once RefNThres of them are seen per camera
	RefRThres float64 `yaml:"refRThres"`
	RefNThres int     `yaml:"refNThres"`
}

// Config is the whole tracking configuration
type Config struct {
	ObjectType   string         `yaml:"objectType"`
	MaxIntensity float64        `yaml:"maxIntensity"`
	NThread      int            `yaml:"nThread"`
	Cameras      []CameraConfig `yaml:"cameras"`
	Tracer       TracerConfig   `yaml:"tracer"`
	Bubble       BubbleConfig   `yaml:"bubble"`
	Shake        ShakeConfig    `yaml:"shake"`
	IPR          IPRConfig      `yaml:"ipr"`
	STB          STBConfig      `yaml:"stb"`
}

// DefaultConfig returns configuration without cameras
func DefaultConfig() *Config {
	return &Config{
		ObjectType:   "tracer",
		MaxIntensity: 255,
		Tracer: TracerConfig{
			Finder: TracerFinderConfig{RadiusPx: 2, MinIntensity: 30},
		},
		Bubble: BubbleConfig{
			Finder:       BubbleFinderConfig{RadiusMin: 2, RadiusMax: 20, Sense: 2},
			TemplateSize: 21,
			Intensity:    200,
			Background:   0,
			RefRThres:    6,
			RefNThres:    5,
		},
		Shake: DefaultShakeConfig(),
		IPR:   DefaultIPRConfig(),
		STB:   DefaultSTBConfig(),
	}
}

// LoadConfig reads YAML file; absent keys keep DefaultConfig values
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks required fields and ranges
func (config *Config) Validate() error {
	kind, err := ParseObjectKind(config.ObjectType)
	if err != nil {
		return err
	}
	if len(config.Cameras) < 2 {
		return errors.Wrapf(ErrBadConfig, "at least two cameras are required, got %d", len(config.Cameras))
	}
	for i, cam := range config.Cameras {
		if cam.Fx <= 0 || cam.Fy <= 0 {
			return errors.Wrapf(ErrBadConfig, "cameras[%d]: focal lengths must be positive", i)
		}
		if cam.Rows <= 0 || cam.Cols <= 0 {
			return errors.Wrapf(ErrBadConfig, "cameras[%d]: image size must be positive", i)
		}
		if len(cam.Rotation) != 0 && len(cam.Rotation) != 9 {
			return errors.Wrapf(ErrBadConfig, "cameras[%d]: rotation needs 9 values, got %d", i, len(cam.Rotation))
		}
		if len(cam.Translation) != 3 {
			return errors.Wrapf(ErrBadConfig, "cameras[%d]: translation needs 3 values, got %d", i, len(cam.Translation))
		}
	}
	if config.MaxIntensity <= 0 {
		return errors.Wrap(ErrBadConfig, "maxIntensity must be positive")
	}
	switch kind {
	case KindTracer:
		if len(config.Tracer.OTF) != len(config.Cameras) {
			return errors.Wrapf(ErrBadConfig, "tracer.otf needs one entry per camera, got %d for %d cameras", len(config.Tracer.OTF), len(config.Cameras))
		}
	case KindBubble:
		if config.Bubble.Finder.RadiusMin <= 0 || config.Bubble.Finder.RadiusMin > config.Bubble.Finder.RadiusMax {
			return errors.Wrapf(ErrBadConfig, "bubble radius range [%g, %g] is invalid", config.Bubble.Finder.RadiusMin, config.Bubble.Finder.RadiusMax)
		}
	}
	if config.Shake.ShakeWidth <= 0 || config.Shake.Tol3D <= 0 {
		return errors.Wrap(ErrBadConfig, "shake.width and shake.tol3D must be positive")
	}
	if config.STB.SearchRadius <= 0 || config.STB.ShortSearchRadius <= 0 {
		return errors.Wrap(ErrBadConfig, "stb search radii must be positive")
	}
	if config.STB.MinLongLength < 2 {
		return errors.Wrap(ErrBadConfig, "stb.minLongLength must be at least 2")
	}
	if config.STB.Predictor != "linear" && config.STB.Predictor != "kalman" {
		return errors.Wrapf(ErrBadConfig, "unknown stb.predictor '%s'", config.STB.Predictor)
	}
	return nil
}

// CameraRig builds geometry from camera calibrations
func (config *Config) CameraRig() *CameraRig {
	cams := make([]*PinholeCamera, len(config.Cameras))
	for i, cc := range config.Cameras {
		cam := NewPinholeCamera(cc.Fx, cc.Fy, cc.Cx, cc.Cy, cc.Rows, cc.Cols)
		if len(cc.Rotation) == 9 {
			copy(cam.R[:], cc.Rotation)
		}
		copy(cam.T[:], cc.Translation)
		cams[i] = cam
	}
	return NewCameraRig(cams...)
}

// NewSTB wires geometry, score model, shaker and manager described by the configuration
func (config *Config) NewSTB(logger *slog.Logger) (*STB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	kind, _ := ParseObjectKind(config.ObjectType)
	rig := config.CameraRig()
	camIDs := make([]int, rig.NumCameras())
	for i := range camIDs {
		camIDs[i] = i
	}
	var model ScoreModel
	switch kind {
	case KindBubble:
		ref := UniformBubbleRefImg(camIDs, config.Bubble.TemplateSize, config.Bubble.Intensity, config.Bubble.Background)
		model = NewBubbleModel(ref, config.MaxIntensity)
	default:
		model = NewTracerModel(NewOTF(config.Tracer.OTF), config.MaxIntensity)
	}
	shakeCfg := config.Shake
	if shakeCfg.NThread == 0 {
		shakeCfg.NThread = config.NThread
	}
	shaker := NewShaker(rig, camIDs, model, shakeCfg, config.MaxIntensity, WithShakerLogger(logger))
	stb := NewSTB(rig, camIDs, shaker, config.STB,
		WithLogger(logger),
		WithThreads(config.NThread),
		WithTracerFinder(config.Tracer.Finder),
		WithBubbleFinder(config.Bubble.Finder),
		WithIPR(config.IPR),
		WithBubbleRef(config.Bubble.RefRThres, config.Bubble.RefNThres),
	)
	return stb, nil
}
