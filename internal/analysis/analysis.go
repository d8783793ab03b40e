// Package analysis sends color samples to a remote vision model and turns
// its structured answer into mixing recipes.
//
// The model is reached through the Model interface so the remote service
// can be swapped or faked. One request carries, in order: the full image,
// the optional sample patch with its explanation, the optional calibration
// reference with its explanation, and the final recipe instruction.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcol "github.com/maax3v3/colormix/internal/color"
)

// ErrAnalysis matches every failure of a color analysis request.
var ErrAnalysis = errors.New("color analysis failed")

// RecipeItem is one base pigment and its share of the mix.
type RecipeItem struct {
	BaseColor  string  `json:"baseColor"`
	Percentage float64 `json:"percentage"`
}

// Result is one color identified by the model.
type Result struct {
	ColorName       string       `json:"colorName"`
	HexCode         string       `json:"hexCode"`
	Pantone         string       `json:"pantone"`
	IsPure          bool         `json:"isPure"`
	MixingRecipe    []RecipeItem `json:"mixingRecipe,omitempty"`
	TotalPercentage *float64     `json:"totalPercentage,omitempty"`
}

// PigmentShare is a recipe item resolved against the base palette.
type PigmentShare struct {
	Pigment    mcol.Pigment
	Name       string // as returned by the model
	Percentage float64
	Known      bool // false when Name is not one of the base pigments
}

// Pigments resolves the recipe onto the base palette, keeping recipe order.
func (r Result) Pigments() []PigmentShare {
	shares := make([]PigmentShare, 0, len(r.MixingRecipe))
	for _, item := range r.MixingRecipe {
		p, ok := mcol.ParsePigment(item.BaseColor)
		shares = append(shares, PigmentShare{
			Pigment:    p,
			Name:       item.BaseColor,
			Percentage: item.Percentage,
			Known:      ok,
		})
	}
	return shares
}

// Image is an encoded image sent inline with a request.
type Image struct {
	MIME string
	Data []byte
}

// Request holds the images of one analysis. Patch and Calibration are
// optional.
type Request struct {
	Image       Image
	Patch       *Image
	Calibration *Image
}

// Part is either an inline image or a text instruction.
type Part struct {
	Image *Image
	Text  string
}

// Prompt is the model-agnostic form of a request.
type Prompt struct {
	System string
	Parts  []Part
}

// Model is the remote vision service. Generate returns the raw JSON text of
// the structured answer.
type Model interface {
	Generate(ctx context.Context, p Prompt) ([]byte, error)
}

// TransportError wraps a failure to obtain an answer from the model.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("analysis request: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Is(target error) bool {
	return target == ErrAnalysis
}

// SchemaError reports an answer that is not JSON or does not follow the
// response schema.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis response: %s: %v", e.Reason, e.Err)
	}
	return "analysis response: " + e.Reason
}
func (e *SchemaError) Unwrap() error { return e.Err }
func (e *SchemaError) Is(target error) bool {
	return target == ErrAnalysis
}

// Orchestrator builds requests, calls the model and validates answers.
type Orchestrator struct {
	model    Model
	language string
	logger   *slog.Logger
}

// NewOrchestrator returns an Orchestrator answering in the given language.
// An empty language selects DefaultLanguage.
func NewOrchestrator(model Model, language string, logger *slog.Logger) *Orchestrator {
	if language == "" {
		language = DefaultLanguage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{model: model, language: language, logger: logger}
}

// Analyze runs one request. It either returns at least one result or an
// error matching ErrAnalysis; there are no retries and no partial results.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) ([]Result, error) {
	if len(req.Image.Data) == 0 {
		return nil, fmt.Errorf("%w: missing primary image", ErrAnalysis)
	}
	prompt := BuildPrompt(req, o.language)
	o.logger.Debug("analysis request",
		"parts", len(prompt.Parts),
		"patch", req.Patch != nil,
		"calibration", req.Calibration != nil)

	raw, err := o.model.Generate(ctx, prompt)
	if err != nil {
		terr := &TransportError{Err: err}
		o.logger.Error("analysis transport failure", "error", err)
		return nil, terr
	}

	results, err := Parse(raw)
	if err != nil {
		o.logger.Error("analysis response rejected", "error", err, "bytes", len(raw))
		return nil, err
	}
	o.logger.Info("analysis complete", "results", len(results))
	return results, nil
}
