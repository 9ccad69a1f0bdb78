package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
)

type stubDescriber struct {
	desc Description
	err  error
	got  Input
}

func (s *stubDescriber) Describe(_ context.Context, in Input) (Description, error) {
	s.got = in
	return s.desc, s.err
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(context.Context, string, string, []byte) (string, error) {
	return s.text, s.err
}

type stubArtist struct {
	url    string
	err    error
	prompt string
}

func (s *stubArtist) CoverArt(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.url, s.err
}

type stubEmbedder struct {
	err  error
	text string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.text = text
	return []float32{0.1, 0.2}, s.err
}

type stubSandbox struct {
	run media.SandboxRun
	err error
}

func (s *stubSandbox) Run(context.Context, string, string) (media.SandboxRun, error) {
	return s.run, s.err
}

type stubIndex struct {
	mu       sync.Mutex
	upserted []media.Asset
	err      error
}

func (s *stubIndex) Upsert(_ context.Context, a media.Asset, _ []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, a)
	return s.err
}

func TestAnalyze_ImageIndexesDescription(t *testing.T) {
	desc := &stubDescriber{desc: Description{Caption: "a red fox", Tags: []string{"fox", "animal"}}}
	emb := &stubEmbedder{}
	idx := &stubIndex{}
	s := NewService(Deps{Describer: desc, Embedder: emb, Index: idx, Log: zap.NewNop()})

	asset := media.Asset{ID: 4, Kind: media.KindImage, Title: "Fox", MimeType: "image/png"}
	got, err := s.Analyze(context.Background(), asset, []byte("png"), media.AnalyzeOptions{})

	require.NoError(t, err)
	require.Equal(t, "a red fox", got.Caption)
	require.Equal(t, []string{"fox", "animal"}, got.Tags)
	require.Equal(t, []byte("png"), desc.got.Image)
	require.Len(t, idx.upserted, 1)
	require.Equal(t, "a red fox", idx.upserted[0].Caption)
	require.Contains(t, emb.text, "fox, animal")
}

func TestAnalyze_DescribeFailureFails(t *testing.T) {
	s := NewService(Deps{Describer: &stubDescriber{err: errors.New("quota")}, Log: zap.NewNop()})

	_, err := s.Analyze(context.Background(), media.Asset{Kind: media.KindOther}, nil, media.AnalyzeOptions{})

	require.ErrorContains(t, err, "quota")
}

func TestAnalyze_AudioWithCoverArt(t *testing.T) {
	desc := &stubDescriber{desc: Description{Caption: "a slow ballad", Tags: []string{"ballad"}}}
	artist := &stubArtist{url: "https://img.example/cover.png"}
	s := NewService(Deps{
		Describer:   desc,
		Transcriber: &stubTranscriber{text: "hold me close"},
		Artist:      artist,
		Log:         zap.NewNop(),
	})

	asset := media.Asset{ID: 2, Kind: media.KindAudio, FileName: "song.mp3", MimeType: "audio/mpeg"}
	got, err := s.Analyze(context.Background(), asset, []byte("mp3"), media.AnalyzeOptions{CoverArt: true})

	require.NoError(t, err)
	require.Equal(t, "hold me close", got.Transcript)
	require.Equal(t, "hold me close", desc.got.Text)
	require.Equal(t, "https://img.example/cover.png", got.CoverArtURL)
	require.Contains(t, artist.prompt, "a slow ballad")
}

func TestAnalyze_OptionalFailuresAreSwallowed(t *testing.T) {
	s := NewService(Deps{
		Describer:   &stubDescriber{desc: Description{Caption: "c"}},
		Transcriber: &stubTranscriber{err: errors.New("too long")},
		Artist:      &stubArtist{err: errors.New("policy")},
		Embedder:    &stubEmbedder{err: errors.New("down")},
		Index:       &stubIndex{},
		Log:         zap.NewNop(),
	})

	got, err := s.Analyze(context.Background(), media.Asset{Kind: media.KindAudio}, []byte("x"), media.AnalyzeOptions{CoverArt: true})

	require.NoError(t, err)
	require.Equal(t, "c", got.Caption)
	require.Empty(t, got.Transcript)
	require.Empty(t, got.CoverArtURL)
}

func TestAnalyze_CoverArtNeedsBetaOption(t *testing.T) {
	artist := &stubArtist{url: "u"}
	s := NewService(Deps{Describer: &stubDescriber{desc: Description{Caption: "c"}}, Artist: artist, Log: zap.NewNop()})

	got, err := s.Analyze(context.Background(), media.Asset{Kind: media.KindAudio}, nil, media.AnalyzeOptions{})

	require.NoError(t, err)
	require.Empty(t, got.CoverArtURL)
	require.Empty(t, artist.prompt)
}

func TestAnalyze_CodeSandbox(t *testing.T) {
	desc := &stubDescriber{desc: Description{Caption: "prints hello"}}
	sb := &stubSandbox{run: media.SandboxRun{ExitCode: 0, Output: "hello\n"}}
	s := NewService(Deps{Describer: desc, Sandbox: sb, Log: zap.NewNop()})
	asset := media.Asset{Kind: media.KindCode, FileName: "main.py"}

	got, err := s.Analyze(context.Background(), asset, []byte(`print("hello")`), media.AnalyzeOptions{Sandbox: true})
	require.NoError(t, err)
	require.NotNil(t, got.Sandbox)
	require.Equal(t, "hello\n", got.Sandbox.Output)
	require.Equal(t, `print("hello")`, desc.got.Text)

	got, err = s.Analyze(context.Background(), asset, []byte(`print("hello")`), media.AnalyzeOptions{})
	require.NoError(t, err)
	require.Nil(t, got.Sandbox)

	sb.err = ErrUnsupportedLanguage
	got, err = s.Analyze(context.Background(), asset, []byte(`x`), media.AnalyzeOptions{Sandbox: true})
	require.NoError(t, err)
	require.Nil(t, got.Sandbox)
}

func TestDescribeInput(t *testing.T) {
	big := make([]byte, maxInlineImageBytes+1)
	in := describeInput(media.Asset{Kind: media.KindImage}, big, "")
	require.Nil(t, in.Image)

	in = describeInput(media.Asset{Kind: media.KindDocument}, []byte{0xff, 0xfe, 0x00}, "")
	require.Empty(t, in.Text)

	long := strings.Repeat("é", maxTextExcerpt)
	in = describeInput(media.Asset{Kind: media.KindDocument}, []byte(long), "")
	require.LessOrEqual(t, len(in.Text), maxTextExcerpt)
	require.True(t, strings.HasPrefix(long, in.Text))
}
