// Package synth holds the model-facing instructions and response parsing
// shared by the generative backends.
package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"asset-synth-studio/internal/descriptor"
)

const AnalyzeInstruction = `TASK: Describe the attached visual asset so it can be re-created by an image model.
- Cover subject, composition, camera angle, color palette, lighting, materials and artistic style.
- Be concrete and visual. No opinions, no preamble.
- Respond with one paragraph of plain prose. No markdown, no lists, no JSON.`

// ExtractInstruction asks the model to score the attached asset on every
// descriptor of the catalog and answer with strict JSON.
func ExtractInstruction(c *descriptor.Catalog) string {
	var b strings.Builder
	b.Grow(1024)

	b.WriteString("TASK: Score the attached visual asset on each descriptor below.\n\n")
	b.WriteString("DESCRIPTORS:\n")
	for _, d := range c.Descriptors() {
		b.WriteString(fmt.Sprintf("- %s (%s): %s Range %g (%s) to %g (%s).\n",
			d.ID, d.Label, d.Description, d.Min, d.Low, d.Max, d.High))
	}
	b.WriteString("\nOUTPUT RULES:\n")
	b.WriteString(`- Respond strictly with JSON: {"descriptors": {"<id>": <number>, ...}}` + "\n")
	b.WriteString("- Include every descriptor id exactly once; stay inside each range.\n")
	b.WriteString("- No commentary, no markdown.\n")
	return b.String()
}

func EnhanceInstruction(prompt string) string {
	var b strings.Builder
	b.WriteString("TASK: Rewrite the image prompt below into a richer, more evocative prompt for an image generation model.\n")
	b.WriteString("- Keep the original subject and intent.\n")
	b.WriteString("- Add concrete visual detail: setting, lighting, palette, composition, medium.\n")
	b.WriteString("- Maximum 80 words. Respond with the rewritten prompt only, no quotes, no preamble.\n\n")
	b.WriteString("PROMPT:\n")
	b.WriteString(strings.TrimSpace(prompt))
	return b.String()
}

// ImagePromptInstruction asks the text model to merge an asset description,
// the user's prompt and the descriptor weights into one final image prompt.
func ImagePromptInstruction(c *descriptor.Catalog, description, prompt string, values descriptor.Values) string {
	var b strings.Builder
	b.Grow(2048)

	b.WriteString("TASK: Write the final prompt for an image generation model.\n\n")
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("REFERENCE ASSET DESCRIPTION:\n")
		b.WriteString(d + "\n\n")
	}
	if p := strings.TrimSpace(prompt); p != "" {
		b.WriteString("USER DIRECTION:\n")
		b.WriteString(p + "\n\n")
	}
	b.WriteString("STYLE DESCRIPTORS:\n")
	writeDescriptorLines(&b, c, values)
	b.WriteString("\nOUTPUT RULES:\n")
	b.WriteString("- Blend the reference description and user direction; the user direction wins on conflicts.\n")
	b.WriteString("- Express every descriptor through visual language, never as numbers.\n")
	b.WriteString("- One paragraph, at most 120 words. Respond with the prompt only.\n")
	return b.String()
}

// ComposePrompt is the deterministic composition used when the text model
// returns nothing usable.
func ComposePrompt(c *descriptor.Catalog, description, prompt string, values descriptor.Values) string {
	var parts []string
	if p := strings.TrimSpace(prompt); p != "" {
		parts = append(parts, p)
	}
	if d := strings.TrimSpace(description); d != "" {
		parts = append(parts, "Based on a reference: "+d)
	}

	values = c.Normalize(values)
	var styles []string
	for _, d := range c.Descriptors() {
		styles = append(styles, d.Level(values[d.ID]))
	}
	if len(styles) > 0 {
		parts = append(parts, "Style: "+strings.Join(styles, ", ")+".")
	}
	return strings.Join(parts, "\n")
}

func writeDescriptorLines(b *strings.Builder, c *descriptor.Catalog, values descriptor.Values) {
	values = c.Normalize(values)
	for _, d := range c.Descriptors() {
		v := values[d.ID]
		b.WriteString(fmt.Sprintf("- %s (%g of %g-%g): %s\n", d.Label, v, d.Min, d.Max, d.Level(v)))
	}
}

type descriptorPayload struct {
	Descriptors map[string]float64 `json:"descriptors"`
}

// ParseDescriptors decodes the model's JSON answer to ExtractInstruction and
// normalizes it against the catalog. A flat {"<id>": n} object is accepted too.
func ParseDescriptors(c *descriptor.Catalog, raw string) (descriptor.Values, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, errors.New("model returned no descriptor data")
	}

	var payload descriptorPayload
	if err := json.Unmarshal([]byte(fragment), &payload); err == nil && len(payload.Descriptors) > 0 {
		return c.Normalize(payload.Descriptors), nil
	}

	var flat map[string]float64
	if err := json.Unmarshal([]byte(fragment), &flat); err != nil {
		return nil, fmt.Errorf("decode descriptor data: %w", err)
	}
	known := 0
	for id := range flat {
		if _, ok := c.Lookup(id); ok {
			known++
		}
	}
	if known == 0 {
		return nil, errors.New("model returned no known descriptors")
	}
	return c.Normalize(flat), nil
}

// CleanText strips code fences and wrapping quotes from a free-text answer.
func CleanText(raw string) string {
	text := trimCodeFence(raw)
	text = strings.TrimSpace(text)
	for _, pair := range [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}} {
		open, closing := pair[0], pair[1]
		if len(text) >= len(open)+len(closing) && strings.HasPrefix(text, open) && strings.HasSuffix(text, closing) {
			text = strings.TrimSpace(text[len(open) : len(text)-len(closing)])
		}
	}
	return text
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
