package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wireResponse struct {
	Results *[]wireResult `json:"results"`
}

type wireResult struct {
	ColorName       *string    `json:"colorName"`
	HexCode         *string    `json:"hexCode"`
	Pantone         *string    `json:"pantone"`
	IsPure          *bool      `json:"isPure"`
	MixingRecipe    []wireItem `json:"mixingRecipe"`
	TotalPercentage *float64   `json:"totalPercentage"`
}

type wireItem struct {
	BaseColor  *string  `json:"baseColor"`
	Percentage *float64 `json:"percentage"`
}

// Parse validates a raw model answer against the response schema. Field
// values are not checked beyond their JSON types.
func Parse(raw []byte) ([]Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, &SchemaError{Reason: "empty response"}
	}
	var resp wireResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &SchemaError{Reason: "invalid JSON", Err: err}
	}
	if resp.Results == nil {
		return nil, &SchemaError{Reason: `missing "results"`}
	}
	if len(*resp.Results) == 0 {
		return nil, &SchemaError{Reason: "no results"}
	}

	out := make([]Result, 0, len(*resp.Results))
	for i, w := range *resp.Results {
		r, err := w.result()
		if err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("results[%d]", i), Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

func (w wireResult) result() (Result, error) {
	switch {
	case w.ColorName == nil:
		return Result{}, fmt.Errorf(`missing "colorName"`)
	case w.IsPure == nil:
		return Result{}, fmt.Errorf(`missing "isPure"`)
	case w.HexCode == nil:
		return Result{}, fmt.Errorf(`missing "hexCode"`)
	case w.Pantone == nil:
		return Result{}, fmt.Errorf(`missing "pantone"`)
	}
	r := Result{
		ColorName:       *w.ColorName,
		HexCode:         *w.HexCode,
		Pantone:         *w.Pantone,
		IsPure:          *w.IsPure,
		TotalPercentage: w.TotalPercentage,
	}
	for j, item := range w.MixingRecipe {
		if item.BaseColor == nil {
			return Result{}, fmt.Errorf(`mixingRecipe[%d]: missing "baseColor"`, j)
		}
		if item.Percentage == nil {
			return Result{}, fmt.Errorf(`mixingRecipe[%d]: missing "percentage"`, j)
		}
		r.MixingRecipe = append(r.MixingRecipe, RecipeItem{
			BaseColor:  *item.BaseColor,
			Percentage: *item.Percentage,
		})
	}
	return r, nil
}
