package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/llm"
)

// Image is a generated image.
type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// ImageGenerator turns a prompt into an image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, size string) (Image, error)
}

func generateImageTool(g ImageGenerator) Tool {
	sizes := make([]string, len(imageSizes))
	copy(sizes, imageSizes)
	return &handler[GenerateImageArgs]{
		kind:        KindGenerateImage,
		description: "Generate an image from a detailed text description. Returns a URL to the image.",
		schema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"prompt": {Type: "string", Description: "Detailed description of the image"},
				"size":   {Type: "string", Description: "Image size", Enum: sizes},
			},
			Required: []string{"prompt"},
		},
		exec: func(ctx context.Context, _ string, args GenerateImageArgs) (any, error) {
			return g.Generate(ctx, args.Prompt, args.Size)
		},
	}
}

// OpenAIImages generates images through an OpenAI-compatible images API.
type OpenAIImages struct {
	client openai.Client
	model  string
	size   string
}

func NewOpenAIImages(cfg config.ImageToolConfig, opts ...option.RequestOption) (*OpenAIImages, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("image api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	size := cfg.Size
	if size == "" {
		size = "1024x1024"
	}
	return &OpenAIImages{client: openai.NewClient(reqOpts...), model: cfg.Model, size: size}, nil
}

func (o *OpenAIImages) Generate(ctx context.Context, prompt, size string) (Image, error) {
	if size == "" {
		size = o.size
	}
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(o.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return Image{}, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return Image{}, errors.New("generate image: empty response")
	}
	return Image{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}
