package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/synth"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultImageCount = 4
)

const imageOnlyReminder = "\n\nReturn the result as an image (inlineData) only. Do not write text, JSON or links."

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	TextModel  string
	ImageModel string
	ImageCount int
	HTTPClient *http.Client
	Logger     *slog.Logger
	Catalog    *descriptor.Catalog
}

// Client talks to the Gemini generateContent REST endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	textModel  string
	imageModel string
	imageCount int
	httpClient *http.Client
	logger     *slog.Logger
	catalog    *descriptor.Catalog
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	imageCount := opts.ImageCount
	if imageCount <= 0 {
		imageCount = defaultImageCount
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
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		textModel:  textModel,
		imageModel: imageModel,
		imageCount: imageCount,
		httpClient: opts.HTTPClient,
		logger:     logger,
		catalog:    catalog,
	}
}

func (c *Client) AnalyzeAsset(ctx context.Context, a asset.Asset) (string, error) {
	text, err := c.generateText(ctx, synth.AnalyzeInstruction, []asset.Asset{a}, textOptions{Temperature: 0.4})
	if err != nil {
		return "", err
	}
	description := synth.CleanText(text)
	if description == "" {
		return "", errors.New("model returned an empty asset description")
	}
	return description, nil
}

func (c *Client) ExtractDescriptors(ctx context.Context, a asset.Asset) (descriptor.Values, error) {
	text, err := c.generateText(ctx, synth.ExtractInstruction(c.catalog), []asset.Asset{a}, textOptions{
		Temperature: 0.2,
		JSON:        true,
	})
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
	text, err := c.generateText(ctx, synth.EnhanceInstruction(prompt), nil, textOptions{Temperature: 0.9})
	if err != nil {
		return "", err
	}
	enhanced := synth.CleanText(text)
	if enhanced == "" {
		return "", errors.New("model returned an empty prompt")
	}
	return enhanced, nil
}

func (c *Client) CreateImagePrompt(ctx context.Context, description, prompt string, values descriptor.Values) (string, error) {
	instruction := synth.ImagePromptInstruction(c.catalog, description, prompt, values)
	text, err := c.generateText(ctx, instruction, nil, textOptions{Temperature: 0.7})
	if err != nil {
		return "", err
	}
	if final := synth.CleanText(text); final != "" {
		return final, nil
	}
	c.logger.Warn("image prompt empty, composing locally")
	return synth.ComposePrompt(c.catalog, description, prompt, values), nil
}

// GenerateSynthesis fans out one image request per requested image and
// returns the images as data URLs in request order.
func (c *Client) GenerateSynthesis(ctx context.Context, prompt, aspectRatio string) ([]string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}
	aspectRatio = synth.NormalizeAspectRatio(aspectRatio)
	if aspectRatio == "" {
		aspectRatio = synth.DefaultAspectRatio
	}

	c.logger.Info("synthesis request", "model", c.imageModel, "count", c.imageCount, "aspect_ratio", aspectRatio)

	slots := make([][]string, c.imageCount)
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range slots {
		eg.Go(func() error {
			images, err := c.generateImage(egCtx, prompt, aspectRatio)
			if err != nil {
				return err
			}
			slots[i] = images
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, images := range slots {
		out = append(out, images...)
	}
	if len(out) == 0 {
		return nil, errors.New("model returned no images")
	}
	return out, nil
}

type textOptions struct {
	Temperature float64
	JSON        bool
}

func (c *Client) generateText(ctx context.Context, instruction string, images []asset.Asset, opts textOptions) (string, error) {
	parts := []part{{Text: instruction}}
	for _, img := range images {
		parts = append(parts, part{InlineData: &blob{Data: img.Base64(), MimeType: img.MimeType}})
	}

	cfg := generationConfig{Temperature: opts.Temperature}
	if opts.JSON {
		cfg.ResponseMimeType = "application/json"
	}

	resp, err := c.generateContent(ctx, c.textModel, generateContentRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) generateImage(ctx context.Context, prompt, aspectRatio string) ([]string, error) {
	req := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: aspectRatio},
		},
	}

	resp, err := c.generateContent(ctx, c.imageModel, req)
	if err != nil && isUnknownFieldError(err, "imageConfig") {
		c.logger.Warn("imageConfig rejected, retrying without it", "model", c.imageModel)
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, c.imageModel, req)
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Images) == 0 {
		req.Contents = []content{{Role: "user", Parts: []part{{Text: prompt + imageOnlyReminder}}}}
		retryResp, retryErr := c.generateContent(ctx, c.imageModel, req)
		if retryErr == nil && len(retryResp.Images) > 0 {
			return retryResp.Images, nil
		}
	}
	return resp.Images, nil
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (Response, error) {
	if c.httpClient == nil {
		return Response{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return Response{}, &APIError{Status: httpResp.Status, StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(rawBody))}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return Response{}, fmt.Errorf("request blocked by safety filters: %s", decoded.PromptFeedback.BlockReason)
	}

	text, images := extractParts(decoded)
	return Response{Text: text, Images: images}, nil
}

func extractParts(resp generateContentResponse) (string, []string) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	var textBuilder strings.Builder
	var images []string

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" && p.InlineData.MimeType != "" {
			images = append(images, fmt.Sprintf("data:%s;base64,%s", p.InlineData.MimeType, p.InlineData.Data))
		}
	}

	return textBuilder.String(), images
}

func isUnknownFieldError(err error, field string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Body, "Unknown name") && strings.Contains(apiErr.Body, field)
}
