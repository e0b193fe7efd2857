package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

// ImageToolName is the name the model uses to request an image.
const ImageToolName = "generate_image"

// DefaultAspectRatio is used when the requested ratio is missing or unsupported.
const DefaultAspectRatio = "1:1"

var supportedAspectRatios = map[string]bool{
	"1:1": true, "2:3": true, "3:2": true, "3:4": true, "4:3": true,
	"4:5": true, "5:4": true, "9:16": true, "16:9": true, "21:9": true,
}

// NormalizeAspectRatio returns ratio lower-cased and trimmed when it is
// supported, DefaultAspectRatio otherwise.
func NormalizeAspectRatio(ratio string) string {
	candidate := strings.ToLower(strings.TrimSpace(ratio))
	if supportedAspectRatios[candidate] {
		return candidate
	}
	return DefaultAspectRatio
}

// ImageGenerator renders a prompt into image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (data []byte, mimeType string, err error)
}

type ImageInput struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// ImageTool is the generate_image tool.
type ImageTool struct {
	Generator       ImageGenerator
	DefaultMimeType string
	Logger          *slog.Logger
}

func NewImageTool(gen ImageGenerator, defaultMimeType string, logger *slog.Logger) *ImageTool {
	if defaultMimeType == "" {
		defaultMimeType = "image/png"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageTool{Generator: gen, DefaultMimeType: defaultMimeType, Logger: logger}
}

func (t *ImageTool) Name() string { return ImageToolName }

func (t *ImageTool) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        ImageToolName,
		Description: "Create an illustrative image based on the chat context.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "Target visual description to render.",
				},
				"aspect_ratio": map[string]any{
					"type":        "string",
					"description": "One of the supported aspect ratios, such as 1:1 or 16:9.",
				},
			},
			"required": []string{"prompt"},
		},
	}
}

func (t *ImageTool) Validate(raw json.RawMessage) error {
	var in ImageInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("invalid generate_image input: %w", err)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return fmt.Errorf("generate_image.prompt is required")
	}
	return nil
}

func (t *ImageTool) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var in ImageInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Result{}, fmt.Errorf("invalid generate_image input: %w", err)
	}
	img := t.Generate(ctx, in.Prompt, in.AspectRatio)
	if img == nil {
		return Failed("Image generation returned no data"), nil
	}
	return Result{
		Status:   StatusImageGenerated,
		Prompt:   in.Prompt,
		MimeType: img.MimeType,
		Image:    img,
	}, nil
}

// Generate renders prompt at the normalized aspect ratio. Any generator
// failure or empty output is logged and yields nil.
func (t *ImageTool) Generate(ctx context.Context, prompt, aspectRatio string) *Image {
	if t.Generator == nil {
		t.Logger.Warn("image_generator_missing")
		return nil
	}
	ratio := NormalizeAspectRatio(aspectRatio)
	t.Logger.Info("image_generation_started", "prompt", truncate(prompt, 200), "aspect_ratio", ratio)
	data, mimeType, err := t.Generator.GenerateImage(ctx, prompt, ratio)
	if err != nil {
		t.Logger.Error("image_generation_failed", "error", err)
		return nil
	}
	if len(data) == 0 {
		t.Logger.Error("image_generation_empty")
		return nil
	}
	if mimeType == "" {
		mimeType = t.DefaultMimeType
	}
	return &Image{Data: data, MimeType: mimeType, Prompt: prompt}
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
