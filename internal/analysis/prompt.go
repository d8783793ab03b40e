package analysis

import (
	"fmt"
	"strings"

	mcol "github.com/maax3v3/colormix/internal/color"
)

// DefaultLanguage is the language results are written in unless configured.
const DefaultLanguage = "Brazilian Portuguese"

const systemPrompt = `You are a color scientist and industrial printing technician specialized in inks for polyethylene (PE).
Your task is to analyze the color of a specific point selected by the user and determine the exact ink colors, mixing percentages and the Pantone match.

ANALYSIS RULES:
1. The user provides a full image and an approximate sample (patch) of the exact point to reproduce.
2. Provide a hexadecimal code (hexCode) that best represents the observed final color.
3. PANTONE: provide the closest Pantone code (Solid Coated) for the analyzed color (e.g. Pantone 485 C).
4. Use the calibration image, if present, for white balance.
5. Ignore specular highlights and focus on the base pigment color at the indicated point.
6. Decide whether the color at the point is PURE or MIXED.
7. COLOR RESTRICTION: base the composition EXCLUSIVELY on these base colors:
%s
   Do not use other colors such as Green, Orange or Violet in the formula; obtain them by mixing the %d bases above.
8. White is essential for opacity in PE.
9. Percentages must add up to 100%%.

OUTPUT:
Return a JSON object following the schema. Answer in %s.`

const (
	patchText       = "The image above is a zoom of the exact point I selected. Analyze this color specifically for the PE ink mix and identify the Pantone."
	calibrationText = "Use this calibration reference to adjust the color balance before analyzing the selected point."
)

var recipeText = "Provide the technical polyethylene ink recipe for the selected color, using only the bases: " +
	joinBases() + ". Also identify the matching Pantone code and include a representative hexadecimal code."

// baseNames returns the palette pigments capitalized, in palette order.
func baseNames() []string {
	names := make([]string, len(mcol.Palette))
	for i, p := range mcol.Palette {
		names[i] = strings.ToUpper(string(p[:1])) + string(p[1:])
	}
	return names
}

// joinBases lists the bases as "A, B and C".
func joinBases() string {
	names := baseNames()
	if len(names) < 2 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func systemText(language string) string {
	var list strings.Builder
	for i, name := range baseNames() {
		if i > 0 {
			list.WriteByte('\n')
		}
		list.WriteString("   - " + name)
	}
	return fmt.Sprintf(systemPrompt, list.String(), len(mcol.Palette), language)
}

// BuildPrompt lays out the parts of a request in the order the model
// expects them.
func BuildPrompt(req Request, language string) Prompt {
	parts := []Part{{Image: &Image{MIME: req.Image.MIME, Data: req.Image.Data}}}
	if req.Patch != nil {
		parts = append(parts, Part{Image: req.Patch}, Part{Text: patchText})
	}
	if req.Calibration != nil {
		parts = append(parts, Part{Image: req.Calibration}, Part{Text: calibrationText})
	}
	parts = append(parts, Part{Text: recipeText})
	return Prompt{
		System: systemText(language),
		Parts:  parts,
	}
}
