package moderation

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubModerator struct {
	flagged    bool
	categories []string
	err        error
	calls      int
}

func (s *stubModerator) Flagged(context.Context, string) (bool, []string, error) {
	s.calls++
	return s.flagged, s.categories, s.err
}

func validInput() Input {
	return Input{Title: "Sunset", Description: "old photo", FileName: "sunset.jpg", MimeType: "image/jpeg", SizeBytes: 2048}
}

func TestCheck_AllowsCleanUpload(t *testing.T) {
	stub := &stubModerator{}
	s := NewService(1<<20, stub, zap.NewNop())

	require.NoError(t, s.Check(context.Background(), validInput()))
	require.Equal(t, 1, stub.calls)
}

func TestCheck_Heuristics(t *testing.T) {
	s := NewService(1<<20, nil, zap.NewNop())

	cases := map[string]func(*Input){
		"too large":     func(in *Input) { in.SizeBytes = 2 << 20 },
		"empty":         func(in *Input) { in.SizeBytes = 0 },
		"bad mime":      func(in *Input) { in.MimeType = "application/x-msdownload" },
		"executable":    func(in *Input) { in.FileName = "setup.EXE" },
		"blocked words": func(in *Input) { in.Description = "a Terrorist Manual scan" },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		err := s.Check(context.Background(), in)
		require.ErrorIs(t, err, ErrRejected, name)

		var rej *RejectedError
		require.True(t, errors.As(err, &rej), name)
		require.NotEmpty(t, rej.Reasons, name)
	}
}

func TestCheck_MimeWithParameters(t *testing.T) {
	s := NewService(0, nil, zap.NewNop())
	in := validInput()
	in.MimeType = "text/plain; charset=utf-8"
	require.NoError(t, s.Check(context.Background(), in))
}

func TestCheck_TextFlagged(t *testing.T) {
	s := NewService(1<<20, &stubModerator{flagged: true, categories: []string{"violence"}}, zap.NewNop())

	err := s.Check(context.Background(), validInput())

	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "violence")
}

func TestCheck_FailsOpen(t *testing.T) {
	s := NewService(1<<20, &stubModerator{err: errors.New("timeout")}, zap.NewNop())

	require.NoError(t, s.Check(context.Background(), validInput()))
}

func TestFlaggedCategories(t *testing.T) {
	got := flaggedCategories(openai.ResultCategories{HateThreatening: true, ViolenceGraphic: true})
	require.Equal(t, []string{"hate", "violence"}, got)
}
