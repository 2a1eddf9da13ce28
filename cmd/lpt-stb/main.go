// Command lpt-stb runs shake-the-box tracking over a sequence of TIFF frames.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/LdDl/lpt-go/lpt"
	"github.com/LdDl/lpt-go/trackstore"
	"github.com/google/uuid"
	"golang.org/x/image/tiff"
)

var (
	configFile = flag.String("config", "lpt.yaml", "Path to the YAML configuration")
	framesPat  = flag.String("frames", "cam%d/img%05d.tif", "Frame path pattern: first %d is camera id, second %d is frame index")
	startFrame = flag.Int("start", 0, "First frame index")
	endFrame   = flag.Int("end", 0, "Last frame index (inclusive)")
	outDir     = flag.String("out", "tracks", "Directory for track CSV files")
	loadFrame  = flag.Int("resume", -1, "Load pools saved in -out for this frame before processing (disabled when negative)")
	dbFile     = flag.String("db", "", "Path to the SQLite database file (optional)")
	runID      = flag.String("run", "", "Run identifier in the database (random when empty)")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("tracking failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func run(logger *slog.Logger) error {
	if *endFrame < *startFrame {
		return fmt.Errorf("end frame %d is before start frame %d", *endFrame, *startFrame)
	}
	config, err := lpt.LoadConfig(*configFile)
	if err != nil {
		return err
	}
	stb, err := config.NewSTB(logger)
	if err != nil {
		return err
	}
	if *loadFrame >= 0 {
		if err := stb.LoadTracks(*outDir, *loadFrame); err != nil {
			return err
		}
		logger.Info("pools resumed", slog.Int("frame", *loadFrame), slog.Int("long_active", len(stb.GetLongActive())))
	}

	for frame := *startFrame; frame <= *endFrame; frame++ {
		images, err := readFrame(*framesPat, stb.NumCameras(), frame, config.MaxIntensity)
		if err != nil {
			return err
		}
		if _, err := stb.ProcessFrame(frame, images); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}

	if err := stb.SaveTracks(*outDir, *endFrame); err != nil {
		return err
	}
	logger.Info("tracks saved",
		slog.String("dir", *outDir),
		slog.Int("short_active", len(stb.GetShortActive())),
		slog.Int("long_active", len(stb.GetLongActive())),
		slog.Int("long_inactive", len(stb.GetLongInactive())),
		slog.Int("exited", len(stb.GetExited())),
	)

	if *dbFile == "" {
		return nil
	}
	return saveToDB(logger, stb)
}

func readFrame(pattern string, numCameras, frame int, maxIntensity float64) ([]*lpt.Image, error) {
	images := make([]*lpt.Image, numCameras)
	for camID := range images {
		path := fmt.Sprintf(pattern, camID, frame)
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open frame: %w", err)
		}
		src, err := tiff.Decode(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		images[camID] = lpt.ImageFromGray(src, maxIntensity)
	}
	return images, nil
}

func saveToDB(logger *slog.Logger, stb *lpt.STB) error {
	store, err := trackstore.Open(*dbFile)
	if err != nil {
		return err
	}
	defer store.Close()

	id := *runID
	if id == "" {
		id = uuid.NewString()
	}
	tracks := stb.GetShortActive()
	tracks = append(tracks, stb.GetLongActive()...)
	tracks = append(tracks, stb.GetLongInactive()...)
	tracks = append(tracks, stb.GetExited()...)
	if err := store.SaveTracks(id, tracks); err != nil {
		return err
	}
	logger.Info("tracks stored", slog.String("db", *dbFile), slog.String("run", id), slog.Int("tracks", len(tracks)))
	return nil
}
