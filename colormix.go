// Package colormix identifies colors in photos and suggests how to mix them
// from a fixed palette of base pigments.
//
// A photo is fitted to a display width, a point is sampled with a
// magnifier, and the surrounding patch is sent with the whole photo to a
// vision model that answers with the color name, hex code, Pantone
// reference and a mixing recipe.
//
// Usage as a library:
//
//	a, _ := colormix.NewAnalyzer(ctx, colormix.DefaultOptions())
//	data, _ := os.ReadFile("wall.jpg")
//	results, _ := colormix.AnalyzeImage(ctx, a, data, &colormix.Point{X: 200, Y: 100}, colormix.DefaultOptions())
package colormix

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/imaging"
	"github.com/maax3v3/colormix/internal/patch"
	"github.com/maax3v3/colormix/internal/pointer"
	"github.com/maax3v3/colormix/internal/session"
	"github.com/maax3v3/colormix/internal/store"
)

// Result is one color identified in a photo.
type Result = analysis.Result

// RecipeItem is one base pigment and its share of a mix.
type RecipeItem = analysis.RecipeItem

// Request holds the images of one analysis.
type Request = analysis.Request

// Analyzer runs one color analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]Result, error)
}

// Point is a sample location on the fitted image.
type Point struct {
	X, Y float64
}

// Options configures analysis.
type Options struct {
	// APIKey authenticates against the vision model.
	// Default: GEMINI_API_KEY, or API_KEY when unset.
	APIKey string

	// Model is the vision model name.
	// Default: analysis.DefaultModel.
	Model string

	// Language is the language color names are returned in.
	// Default: Brazilian Portuguese.
	Language string

	// ContainerWidth is the width photos are fitted to before sampling.
	// Default: 400.
	ContainerWidth int

	// Calibration is an optional encoded image of a white reference taken
	// under the same light.
	Calibration []byte

	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("API_KEY")
	}
	return Options{
		APIKey:         key,
		Model:          analysis.DefaultModel,
		Language:       analysis.DefaultLanguage,
		ContainerWidth: imaging.DefaultContainerWidth,
	}
}

// NewAnalyzer connects to the vision model.
func NewAnalyzer(ctx context.Context, opts Options) (Analyzer, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("no API key: set GEMINI_API_KEY")
	}
	model, err := analysis.NewGemini(ctx, opts.APIKey, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("connecting to model: %w", err)
	}
	return analysis.NewOrchestrator(model, opts.Language, opts.Logger), nil
}

// OpenStore opens the history and calibration storage in dir. An empty dir
// keeps everything in memory.
func OpenStore(dir string) (store.KV, error) {
	if dir == "" {
		return &store.MemKV{}, nil
	}
	return store.NewFileKV(imaging.ExpandPath(dir))
}

// AnalyzeImage analyzes an encoded photo. With a nil point the whole photo
// is analyzed; otherwise the patch around the point is sent along with it.
func AnalyzeImage(ctx context.Context, a Analyzer, data []byte, at *Point, opts Options) ([]Result, error) {
	if a == nil {
		return nil, fmt.Errorf("nil analyzer")
	}
	s := session.New(opts.Logger)
	if err := s.Load(data, opts.ContainerWidth); err != nil {
		return nil, err
	}
	var p *patch.Payload
	if at != nil {
		sf := s.Surface()
		if !(pointer.Position{X: at.X, Y: at.Y}).Inside(sf.Width(), sf.Height()) {
			return nil, fmt.Errorf("point (%g, %g) is outside the %dx%d image", at.X, at.Y, sf.Width(), sf.Height())
		}
		if err := s.StartPicking(); err != nil {
			return nil, err
		}
		s.Move(at.X, at.Y, pointer.Rect{})
		payload, err := s.Click()
		if err != nil {
			return nil, err
		}
		p = &payload
	}
	var calibration []byte
	if len(opts.Calibration) > 0 {
		ref, _, err := imaging.Decode(opts.Calibration)
		if err != nil {
			return nil, fmt.Errorf("calibration: %w", err)
		}
		if calibration, err = patch.Reference(ref); err != nil {
			return nil, fmt.Errorf("calibration: %w", err)
		}
	}
	req, err := s.Request(p, calibration)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, req)
}

// AnalyzeFile reads a photo from disk and analyzes it.
func AnalyzeFile(ctx context.Context, a Analyzer, path string, at *Point, opts Options) ([]Result, error) {
	data, _, _, err := imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	return AnalyzeImage(ctx, a, data, at, opts)
}
