package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	geminiEmbeddingModel = "gemini-embedding-001"
	maxInlineAudioBytes  = 20 << 20
)

// GeminiProvider describes, transcribes and embeds through the Gemini API.
// It has no image generation, so cover art stays unavailable with it.
type GeminiProvider struct {
	client *genai.Client
	model  string
	dims   int32
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, dims int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, dims: int32(dims)}, nil
}

func (p *GeminiProvider) Describe(ctx context.Context, in Input) (Description, error) {
	parts := []*genai.Part{genai.NewPartFromText(buildPrompt(in))}
	if len(in.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(in.Image, in.MimeType))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
		})
	if err != nil {
		return Description{}, fmt.Errorf("gemini generate: %w", err)
	}
	return parseDescription(resp.Text())
}

func (p *GeminiProvider) Transcribe(ctx context.Context, _, mimeType string, data []byte) (string, error) {
	if len(data) > maxInlineAudioBytes {
		return "", fmt.Errorf("gemini transcribe: file of %d bytes is too large to inline", len(data))
	}
	parts := []*genai.Part{
		genai.NewPartFromText("Transcribe this recording verbatim. Reply with the transcript only."),
		genai.NewPartFromBytes(data, mimeType),
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := p.dims
	resp, err := p.client.Models.EmbedContent(ctx, geminiEmbeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             "RETRIEVAL_DOCUMENT",
			OutputDimensionality: &dims,
		})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
