package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/workspaced/convo/tool"
)

// ImageResult is the outcome of an image generation request.
type ImageResult struct {
	Success     bool   `json:"success"`
	ArtifactRef string `json:"artifact_ref"`
	Error       string `json:"error,omitempty"`
}

// ImageGenerator produces an image from a text prompt and returns a
// reference to the stored artifact.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, variant string, width, height int) (*ImageResult, error)
}

type generateImageInput struct {
	Prompt  string `json:"prompt"`
	Variant string `json:"variant,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

type imageTool struct {
	generator ImageGenerator
}

// NewGenerateImage creates the generate_image tool over the given generator.
func NewGenerateImage(generator ImageGenerator) tool.Tool {
	return &imageTool{generator: generator}
}

func (t *imageTool) Name() string { return "generate_image" }

func (t *imageTool) Description() string {
	return "Generate an image from a text prompt. Returns a reference to the generated artifact."
}

func (t *imageTool) InputSchema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"prompt": {
				Type:        "string",
				Description: "Text description of the desired image",
			},
			"variant": {
				Type:        "string",
				Description: "Model variant to use",
				Enum:        []string{"ultra", "pro", "dev", "schnell"},
			},
			"width":  {Type: "integer", Description: "Image width in pixels"},
			"height": {Type: "integer", Description: "Image height in pixels"},
		},
		Required: []string{"prompt"},
	}
}

func (t *imageTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in generateImageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid generate_image input: %w", err)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return "", fmt.Errorf("generate_image: empty prompt")
	}

	result, err := t.generator.Generate(ctx, in.Prompt, in.Variant, in.Width, in.Height)
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if !result.Success {
		return fmt.Sprintf("Image generation failed: %s", result.Error), nil
	}
	return fmt.Sprintf("Image generated: %s", result.ArtifactRef), nil
}
