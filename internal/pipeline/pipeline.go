package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/cli"
	mcol "github.com/maax3v3/colormix/internal/color"
	"github.com/maax3v3/colormix/internal/imaging"
	"github.com/maax3v3/colormix/internal/patch"
	"github.com/maax3v3/colormix/internal/pointer"
	"github.com/maax3v3/colormix/internal/session"
	"github.com/maax3v3/colormix/internal/store"
	"github.com/maax3v3/colormix/internal/swatch"
)

// Analyzer runs one color analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) ([]analysis.Result, error)
}

// Deps are the collaborators of a pipeline run.
type Deps struct {
	Analyzer Analyzer
	History  *store.History // required when saving
	Logger   *slog.Logger
	Out      io.Writer // progress output, stdout when nil
}

// Run executes the analyze command: load and fit the image, optionally
// sample one point, analyze, print the recipes and write the requested
// outputs.
func Run(ctx context.Context, opts cli.AnalyzeOptions, containerWidth int, deps Deps) ([]analysis.Result, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("no analyzer configured")
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	s := session.New(deps.Logger)

	// Step 1: Load input image
	fmt.Fprintf(out, "Loading image: %s\n", opts.InPath)
	data, _, _, err := imaging.Load(opts.InPath)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	if err := s.Load(data, containerWidth); err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	sf := s.Surface()
	fmt.Fprintf(out, "Image loaded: %dx%d, fitted to %dx%d\n",
		sf.SourceWidth, sf.SourceHeight, sf.Width(), sf.Height())

	// Step 2: Calibration reference
	var calibration []byte
	if opts.CalibrationPath != "" {
		fmt.Fprintf(out, "Loading calibration: %s\n", opts.CalibrationPath)
		_, ref, _, err := imaging.Load(opts.CalibrationPath)
		if err != nil {
			return nil, fmt.Errorf("loading calibration: %w", err)
		}
		if calibration, err = patch.Reference(ref); err != nil {
			return nil, fmt.Errorf("encoding calibration: %w", err)
		}
	}

	// Step 3: Sample the point
	var p *patch.Payload
	if opts.HasPoint {
		pos := pointer.Position{X: opts.X, Y: opts.Y}
		if !pos.Inside(sf.Width(), sf.Height()) {
			return nil, fmt.Errorf("point (%g, %g) is outside the %dx%d image", opts.X, opts.Y, sf.Width(), sf.Height())
		}
		if err := s.StartPicking(); err != nil {
			return nil, err
		}
		view, _ := s.Move(opts.X, opts.Y, pointer.Rect{})
		if opts.MagnifierPath != "" {
			fmt.Fprintf(out, "Saving magnifier: %s\n", opts.MagnifierPath)
			if err := imaging.SavePNG(opts.MagnifierPath, view.Image); err != nil {
				return nil, fmt.Errorf("saving magnifier: %w", err)
			}
		}
		payload, err := s.Click()
		if err != nil {
			return nil, fmt.Errorf("sampling point: %w", err)
		}
		p = &payload
		fmt.Fprintf(out, "Sampled (%g, %g): patch at (%d, %d), average %s\n",
			opts.X, opts.Y, p.Rect.Min.X, p.Rect.Min.Y, p.Mean.Hex())
	}

	// Step 4: Analyze
	fmt.Fprintln(out, "Analyzing...")
	req, err := s.Request(p, calibration)
	if err != nil {
		return nil, err
	}
	ticket, err := s.BeginAnalysis()
	if err != nil {
		return nil, err
	}
	results, err := deps.Analyzer.Analyze(ctx, req)
	s.FinishAnalysis(ticket, results, err)
	if err != nil {
		return nil, fmt.Errorf("analyzing: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("analyzing: no colors identified")
	}
	printResults(out, results)

	// Step 5: Swatch card
	if opts.CardPath != "" {
		fmt.Fprintf(out, "Saving card: %s\n", opts.CardPath)
		card, err := swatch.PNG(results[0])
		if err != nil {
			return nil, fmt.Errorf("rendering card: %w", err)
		}
		if err := os.WriteFile(imaging.ExpandPath(opts.CardPath), card, 0o644); err != nil {
			return nil, fmt.Errorf("saving card: %w", err)
		}
	}

	// Step 6: Save to history
	if opts.Save {
		if deps.History == nil {
			return nil, fmt.Errorf("saving result: no history store")
		}
		rec, err := deps.History.Save(results[0], s.Source().DataURI(), opts.ClientName)
		if err != nil {
			return nil, fmt.Errorf("saving result: %w", err)
		}
		fmt.Fprintf(out, "Saved to history: %s (%s)\n", rec.ID, rec.Time().Format(time.DateTime))
	}

	fmt.Fprintln(out, "Done!")
	return results, nil
}

func printResults(out io.Writer, results []analysis.Result) {
	for i, r := range results {
		hex, ok := mcol.NormalizeHex(r.HexCode)
		if !ok {
			hex = r.HexCode + " (unreadable hex)"
		}
		fmt.Fprintf(out, "%d. %s  %s  Pantone %s\n", i+1, r.ColorName, hex, r.Pantone)
		if r.IsPure || len(r.MixingRecipe) == 0 {
			fmt.Fprintln(out, "   pure base color, no mix needed")
			continue
		}
		for _, share := range r.Pigments() {
			fmt.Fprintf(out, "   %-10s %s\n", share.Name, swatch.FormatPercent(share.Percentage))
		}
		if r.TotalPercentage != nil {
			fmt.Fprintf(out, "   total      %s\n", swatch.FormatPercent(*r.TotalPercentage))
		}
	}
}
