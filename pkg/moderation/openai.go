package moderation

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

type openAIModerator struct {
	client *openai.Client
}

func NewOpenAIModerator(client *openai.Client) TextModerator {
	return &openAIModerator{client: client}
}

func (m *openAIModerator) Flagged(ctx context.Context, text string) (bool, []string, error) {
	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: openai.ModerationOmniLatest,
	})
	if err != nil {
		return false, nil, err
	}

	flagged := false
	var categories []string
	for _, r := range resp.Results {
		if !r.Flagged {
			continue
		}
		flagged = true
		categories = append(categories, flaggedCategories(r.Categories)...)
	}
	return flagged, categories, nil
}

func flaggedCategories(c openai.ResultCategories) []string {
	checks := []struct {
		name string
		hit  bool
	}{
		{"hate", c.Hate || c.HateThreatening},
		{"harassment", c.Harassment || c.HarassmentThreatening},
		{"self-harm", c.SelfHarm || c.SelfHarmIntent || c.SelfHarmInstructions},
		{"sexual", c.Sexual},
		{"sexual/minors", c.SexualMinors},
		{"violence", c.Violence || c.ViolenceGraphic},
	}
	var out []string
	for _, ch := range checks {
		if ch.hit {
			out = append(out, ch.name)
		}
	}
	return out
}
