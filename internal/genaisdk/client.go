// Package genaisdk implements the synthesis backend on top of the Google Gen AI
// SDK, using Gemini for text and Imagen for image generation.
package genaisdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/synth"
)

const (
	defaultTextModel   = "gemini-2.5-flash"
	defaultImagenModel = "imagen-4.0-generate-001"
	defaultImageCount  = 4
	maxImagenImages    = 4
)

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

type Options struct {
	APIKey      string
	TextModel   string
	ImagenModel string
	ImageCount  int
	HTTPClient  *http.Client
	Logger      *slog.Logger
	Catalog     *descriptor.Catalog
}

type Client struct {
	models      modelsAPI
	textModel   string
	imagenModel string
	imageCount  int
	logger      *slog.Logger
	catalog     *descriptor.Catalog
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newWithModels(gc.Models, opts), nil
}

func newWithModels(models modelsAPI, opts Options) *Client {
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	imagenModel := strings.TrimSpace(opts.ImagenModel)
	if imagenModel == "" {
		imagenModel = defaultImagenModel
	}
	count := opts.ImageCount
	if count <= 0 {
		count = defaultImageCount
	}
	if count > maxImagenImages {
		count = maxImagenImages
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = descriptor.Default()
	}
	return &Client{
		models:      models,
		textModel:   textModel,
		imagenModel: imagenModel,
		imageCount:  count,
		logger:      logger,
		catalog:     catalog,
	}
}

func (c *Client) AnalyzeAsset(ctx context.Context, a asset.Asset) (string, error) {
	text, err := c.generateText(ctx, synth.AnalyzeInstruction, []asset.Asset{a}, 0.4, false)
	if err != nil {
		return "", err
	}
	if description := synth.CleanText(text); description != "" {
		return description, nil
	}
	return "", errors.New("model returned an empty asset description")
}

func (c *Client) ExtractDescriptors(ctx context.Context, a asset.Asset) (descriptor.Values, error) {
	text, err := c.generateText(ctx, synth.ExtractInstruction(c.catalog), []asset.Asset{a}, 0.2, true)
	if err != nil {
		return nil, err
	}
	return synth.ParseDescriptors(c.catalog, text)
}

func (c *Client) EnhancePrompt(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	text, err := c.generateText(ctx, synth.EnhanceInstruction(prompt), nil, 0.9, false)
	if err != nil {
		return "", err
	}
	if enhanced := synth.CleanText(text); enhanced != "" {
		return enhanced, nil
	}
	return "", errors.New("model returned an empty prompt")
}

func (c *Client) CreateImagePrompt(ctx context.Context, description, prompt string, values descriptor.Values) (string, error) {
	text, err := c.generateText(ctx, synth.ImagePromptInstruction(c.catalog, description, prompt, values), nil, 0.7, false)
	if err != nil {
		return "", err
	}
	if final := synth.CleanText(text); final != "" {
		return final, nil
	}
	c.logger.Warn("image prompt empty, composing locally")
	return synth.ComposePrompt(c.catalog, description, prompt, values), nil
}

// GenerateSynthesis asks Imagen for imageCount images in a single call.
func (c *Client) GenerateSynthesis(ctx context.Context, prompt, aspectRatio string) ([]string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}
	aspectRatio = synth.NormalizeAspectRatio(aspectRatio)
	if aspectRatio == "" {
		aspectRatio = synth.DefaultAspectRatio
	}

	c.logger.Info("synthesis request", "model", c.imagenModel, "count", c.imageCount, "aspect_ratio", aspectRatio)

	resp, err := c.models.GenerateImages(ctx, c.imagenModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(c.imageCount),
		AspectRatio:    aspectRatio,
		OutputMIMEType: "image/jpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: %w", err)
	}
	if resp == nil {
		return nil, errors.New("model returned no images")
	}

	var (
		out      []string
		filtered []string
	)
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi.RAIFilteredReason != "" {
				filtered = append(filtered, gi.RAIFilteredReason)
			}
			continue
		}
		img, err := asset.New(gi.Image.MIMEType, gi.Image.ImageBytes)
		if err != nil {
			continue
		}
		out = append(out, img.DataURL())
	}

	if len(out) == 0 {
		if len(filtered) > 0 {
			return nil, fmt.Errorf("all images were filtered: %s", strings.Join(filtered, "; "))
		}
		return nil, errors.New("model returned no images")
	}
	return out, nil
}

func (c *Client) generateText(ctx context.Context, instruction string, images []asset.Asset, temperature float32, jsonMode bool) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(instruction)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(temperature)}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.models.GenerateContent(ctx, c.textModel, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("request blocked by safety filters: %s", resp.PromptFeedback.BlockReason)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
