package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"

	openai "github.com/sashabaranov/go-openai"
)

const maxWhisperBytes = 25 << 20

// OpenAIProvider covers every analysis capability through the OpenAI API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dims   int
}

func NewOpenAIProvider(client *openai.Client, model string, dims int) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: model, dims: dims}
}

func (p *OpenAIProvider) Describe(ctx context.Context, in Input) (Description, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: buildPrompt(in)}}
	if len(in.Image) > 0 {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + in.MimeType + ";base64," + base64.StdEncoding.EncodeToString(in.Image),
				Detail: openai.ImageURLDetailLow,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      400,
	})
	if err != nil {
		return Description{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Description{}, errors.New("openai chat: empty choices")
	}
	return parseDescription(resp.Choices[0].Message.Content)
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.SmallEmbedding3,
		Dimensions: p.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty data")
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, fileName, _ string, data []byte) (string, error) {
	if len(data) > maxWhisperBytes {
		return "", fmt.Errorf("whisper: file of %d bytes exceeds the 25MB limit", len(data))
	}
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path.Base(fileName),
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return resp.Text, nil
}

func (p *OpenAIProvider) CoverArt(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("dall-e: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("dall-e: no image returned")
	}
	return resp.Data[0].URL, nil
}
