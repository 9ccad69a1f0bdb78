// Package analysis captions, tags, transcribes and indexes uploaded media.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"neuralsalvage/pkg/media"
)

const (
	maxInlineImageBytes = 20 << 20
	maxTextExcerpt      = 6000
)

var ErrUnsupportedLanguage = errors.New("no sandbox runtime for this file type")

// Input is what a Describer sees of an asset.
type Input struct {
	Kind        media.Kind
	Title       string
	Description string
	FileName    string
	MimeType    string
	Image       []byte
	Text        string
}

type Description struct {
	Caption string
	Tags    []string
}

type Describer interface {
	Describe(ctx context.Context, in Input) (Description, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}

// CoverArtist renders a cover image and returns its URL.
type CoverArtist interface {
	CoverArt(ctx context.Context, prompt string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Sandbox interface {
	Run(ctx context.Context, fileName, code string) (media.SandboxRun, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, a media.Asset, vector []float32) error
}

// Deps wires the providers. Only Describer is required.
type Deps struct {
	Describer   Describer
	Transcriber Transcriber
	Artist      CoverArtist
	Embedder    Embedder
	Sandbox     Sandbox
	Index       VectorIndex
	Log         *zap.Logger
}

type Service struct {
	describer   Describer
	transcriber Transcriber
	artist      CoverArtist
	embedder    Embedder
	sandbox     Sandbox
	index       VectorIndex
	log         *zap.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		describer:   d.Describer,
		transcriber: d.Transcriber,
		artist:      d.Artist,
		embedder:    d.Embedder,
		sandbox:     d.Sandbox,
		index:       d.Index,
		log:         d.Log,
	}
}

// Analyze describes the asset and then runs the optional steps in parallel.
// Only a failed description fails the call; transcription, cover art,
// sandbox runs and indexing are logged and left out of the result.
func (s *Service) Analyze(ctx context.Context, a media.Asset, data []byte, opts media.AnalyzeOptions) (media.Analysis, error) {
	var out media.Analysis

	if a.Kind == media.KindAudio && s.transcriber != nil {
		transcript, err := s.transcriber.Transcribe(ctx, a.FileName, a.MimeType, data)
		if err != nil {
			s.log.Warn("transcription failed", zap.Int64("media_id", a.ID), zap.Error(err))
		} else {
			out.Transcript = transcript
		}
	}

	desc, err := s.describer.Describe(ctx, describeInput(a, data, out.Transcript))
	if err != nil {
		return media.Analysis{}, fmt.Errorf("describe %s: %w", a.Kind, err)
	}
	out.Caption = desc.Caption
	out.Tags = desc.Tags

	described := a
	described.Caption = out.Caption
	described.Tags = out.Tags
	described.Transcript = out.Transcript

	var (
		coverURL string
		run      *media.SandboxRun
	)
	g, gctx := errgroup.WithContext(ctx)

	if opts.CoverArt && a.Kind == media.KindAudio && s.artist != nil {
		g.Go(func() error {
			url, err := s.artist.CoverArt(gctx, coverArtPrompt(described))
			if err != nil {
				s.log.Warn("cover art failed", zap.Int64("media_id", a.ID), zap.Error(err))
				return nil
			}
			coverURL = url
			return nil
		})
	}

	if opts.Sandbox && a.Kind == media.KindCode && s.sandbox != nil && utf8.Valid(data) {
		g.Go(func() error {
			r, err := s.sandbox.Run(gctx, a.FileName, string(data))
			switch {
			case errors.Is(err, ErrUnsupportedLanguage):
			case err != nil:
				s.log.Warn("sandbox run failed", zap.Int64("media_id", a.ID), zap.Error(err))
			default:
				run = &r
			}
			return nil
		})
	}

	if s.embedder != nil && s.index != nil {
		g.Go(func() error {
			s.indexAsset(gctx, described)
			return nil
		})
	}

	_ = g.Wait()
	out.CoverArtURL = coverURL
	out.Sandbox = run
	return out, nil
}

func (s *Service) indexAsset(ctx context.Context, a media.Asset) {
	text := a.IndexText()
	if text == "" {
		return
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.Warn("embedding failed", zap.Int64("media_id", a.ID), zap.Error(err))
		return
	}
	if err := s.index.Upsert(ctx, a, vec); err != nil {
		s.log.Warn("vector upsert failed", zap.Int64("media_id", a.ID), zap.Error(err))
	}
}

func describeInput(a media.Asset, data []byte, transcript string) Input {
	in := Input{
		Kind:        a.Kind,
		Title:       a.Title,
		Description: a.Description,
		FileName:    a.FileName,
		MimeType:    a.MimeType,
	}
	switch a.Kind {
	case media.KindImage:
		if len(data) <= maxInlineImageBytes {
			in.Image = data
		}
	case media.KindAudio:
		in.Text = excerpt(transcript, maxTextExcerpt)
	case media.KindDocument, media.KindCode:
		if utf8.Valid(data) {
			in.Text = excerpt(string(data), maxTextExcerpt)
		}
	}
	return in
}

// excerpt cuts s to at most n bytes on a rune boundary.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
