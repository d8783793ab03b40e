package analysis

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-3-flash-preview"

// Gemini is a Model backed by the Google Gen AI API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client for the given API key and model name.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate sends the prompt in structured JSON output mode and returns the
// answer text.
func (g *Gemini) Generate(ctx context.Context, p Prompt) ([]byte, error) {
	parts := make([]*genai.Part, 0, len(p.Parts))
	for _, part := range p.Parts {
		if part.Image != nil {
			parts = append(parts, genai.NewPartFromBytes(part.Image.Data, part.Image.MIME))
			continue
		}
		parts = append(parts, genai.NewPartFromText(part.Text))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	return []byte(resp.Text()), nil
}

func responseSchema() *genai.Schema {
	recipeItem := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"baseColor":  {Type: genai.TypeString},
			"percentage": {Type: genai.TypeNumber},
		},
		Required: []string{"baseColor", "percentage"},
	}
	result := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"colorName":       {Type: genai.TypeString},
			"hexCode":         {Type: genai.TypeString, Description: "Hex code of the color (e.g. #FF5733)"},
			"pantone":         {Type: genai.TypeString, Description: "Matching Pantone code (e.g. Pantone 286 C)"},
			"isPure":          {Type: genai.TypeBoolean},
			"mixingRecipe":    {Type: genai.TypeArray, Items: recipeItem},
			"totalPercentage": {Type: genai.TypeNumber},
		},
		Required: []string{"colorName", "isPure", "hexCode", "pantone"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"results": {Type: genai.TypeArray, Items: result},
		},
		Required: []string{"results"},
	}
}
