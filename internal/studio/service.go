package studio

import (
	"context"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/descriptor"
)

// Service is the external generative backend. Every call may fail with a
// human-readable error.
type Service interface {
	AnalyzeAsset(ctx context.Context, a asset.Asset) (string, error)
	ExtractDescriptors(ctx context.Context, a asset.Asset) (descriptor.Values, error)
	EnhancePrompt(ctx context.Context, prompt string) (string, error)
	CreateImagePrompt(ctx context.Context, description, prompt string, values descriptor.Values) (string, error)
	GenerateSynthesis(ctx context.Context, prompt, aspectRatio string) ([]string, error)
}
