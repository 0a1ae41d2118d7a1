package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/krypta-docs/krypta/internal/core"
)

const ocrPrompt = "Extract all readable text from this image. " +
	"Return the text content only, preserving line breaks. " +
	"If the image contains no readable text, return an empty response."

// GeminiVision performs OCR-style extraction by sending the raster bytes to a
// Gemini multimodal model. The upstream API returns no confidence score, so
// the extraction dispatcher assigns a conservative constant.
type GeminiVision struct {
	client    *genai.Client
	modelName string
}

func NewGeminiVision(ctx context.Context, apiKey, modelName string) (*GeminiVision, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiVision{client: cl, modelName: modelName}, nil
}

func (g *GeminiVision) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiVision) ExtractViaVision(ctx context.Context, data []byte, mediaType string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)

	resp, err := m.GenerateContent(ctx,
		genai.ImageData(imageFormat(mediaType), data),
		genai.Text(ocrPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini vision: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// imageFormat maps a media type to the bare format name genai expects.
func imageFormat(mediaType string) string {
	f := strings.TrimPrefix(mediaType, "image/")
	if i := strings.Index(f, ";"); i >= 0 {
		f = f[:i]
	}
	if f == "" || f == mediaType {
		return "png"
	}
	return f
}

var _ core.VisionExtractor = (*GeminiVision)(nil)
