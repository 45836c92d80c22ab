package handlers

import (
	"fmt"
	"strings"

	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/studio"
)

func formatDescriptors(c *descriptor.Catalog, values descriptor.Values) string {
	var b strings.Builder
	for _, d := range c.Descriptors() {
		v, ok := values[d.ID]
		if !ok {
			v = d.Default
		}
		fmt.Fprintf(&b, "%s (%s): %g  [%g-%g]\n", d.Label, d.ID, v, d.Min, d.Max)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatState(c *descriptor.Catalog, st studio.State) string {
	var b strings.Builder

	prompt := st.Prompt
	if prompt == "" {
		prompt = "(empty)"
	}
	fmt.Fprintf(&b, "Prompt: %s\n", truncateLine(prompt, 300))
	fmt.Fprintf(&b, "Aspect ratio: %s\n", st.AspectRatio)
	fmt.Fprintf(&b, "Reference asset: %s\n", yesNo(st.HasAsset()))
	if st.Busy() {
		b.WriteString("Status: " + busyText(st) + "\n")
	}
	if st.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", st.Error)
	}
	if n := len(st.GeneratedImages); n > 0 {
		fmt.Fprintf(&b, "Generated images: %d\n", n)
	}
	b.WriteString("\n")
	b.WriteString(formatDescriptors(c, st.Descriptors))
	return b.String()
}

func busyText(st studio.State) string {
	var parts []string
	if st.Analyzing {
		parts = append(parts, "analyzing asset")
	}
	if st.Enhancing {
		parts = append(parts, "enhancing prompt")
	}
	if st.Loading {
		parts = append(parts, "synthesizing")
	}
	return strings.Join(parts, ", ")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
