package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"neuralsalvage/pkg/media"
)

const maxTags = 10

var ErrEmptyDescription = errors.New("model returned no caption or tags")

const systemPrompt = `You catalogue files for a personal media library.
Reply with a JSON object only: {"caption": "<one sentence describing the content>", "tags": ["<keyword>", ...]}.
Use at most 10 short lowercase tags. Do not guess names of real people.`

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s\nFile name: %s\nMIME type: %s\n", in.Kind, in.FileName, in.MimeType)
	if in.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", in.Title)
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Owner description: %s\n", in.Description)
	}
	switch {
	case in.Kind == media.KindAudio && in.Text != "":
		fmt.Fprintf(&b, "\nTranscript:\n%s\n", in.Text)
	case in.Text != "":
		fmt.Fprintf(&b, "\nContent excerpt:\n%s\n", in.Text)
	case len(in.Image) > 0:
		b.WriteString("\nThe image is attached.\n")
	default:
		b.WriteString("\nOnly the metadata above is available.\n")
	}
	return b.String()
}

func coverArtPrompt(a media.Asset) string {
	subject := a.Caption
	if subject == "" {
		subject = a.Title
	}
	p := "Album cover artwork, no text or lettering, for: " + subject
	if len(a.Tags) > 0 {
		p += ". Mood: " + strings.Join(a.Tags, ", ")
	}
	return p
}

// parseDescription reads the model's JSON reply, tolerating markdown fences.
func parseDescription(raw string) (Description, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) {
		return Description{}, fmt.Errorf("parse description: invalid json %q", excerpt(raw, 120))
	}

	res := gjson.Parse(raw)
	d := Description{Caption: strings.TrimSpace(res.Get("caption").String())}
	var tags []string
	res.Get("tags").ForEach(func(_, v gjson.Result) bool {
		tags = append(tags, v.String())
		return true
	})
	d.Tags = normalizeTags(tags)

	if d.Caption == "" && len(d.Tags) == 0 {
		return Description{}, ErrEmptyDescription
	}
	return d, nil
}

func normalizeTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#")))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
