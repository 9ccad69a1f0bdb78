// Package moderation screens uploads before they are stored.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

var ErrRejected = errors.New("upload rejected by moderation")

// RejectedError lists every reason an upload was refused.
type RejectedError struct {
	Reasons []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, strings.Join(e.Reasons, "; "))
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

type Input struct {
	Title       string
	Description string
	FileName    string
	MimeType    string
	SizeBytes   int64
}

// TextModerator flags abusive text through an external classifier.
type TextModerator interface {
	Flagged(ctx context.Context, text string) (bool, []string, error)
}

var allowedMimePrefixes = []string{"image/", "video/", "audio/", "text/"}

var allowedMimeTypes = map[string]struct{}{
	"application/pdf":          {},
	"application/json":         {},
	"application/javascript":   {},
	"application/x-python":     {},
	"application/x-sh":         {},
	"application/xml":          {},
	"application/octet-stream": {},
}

var blockedExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".scr": {},
	".msi": {}, ".vbs": {}, ".jar": {}, ".apk": {}, ".app": {}, ".dmg": {},
}

var defaultBlockedKeywords = []string{"csam", "child porn", "beheading", "terrorist manual"}

type Service struct {
	maxBytes int64
	keywords []string
	text     TextModerator
	log      *zap.Logger
}

// NewService builds a moderator. text may be nil to skip the external check.
func NewService(maxBytes int64, text TextModerator, log *zap.Logger) *Service {
	return &Service{maxBytes: maxBytes, keywords: defaultBlockedKeywords, text: text, log: log}
}

// Check runs the local heuristics and then the external text classifier.
// The classifier fails open: if it errors the upload is allowed and a
// warning is logged.
func (s *Service) Check(ctx context.Context, in Input) error {
	reasons := s.heuristics(in)
	if len(reasons) > 0 {
		return &RejectedError{Reasons: reasons}
	}

	if s.text == nil {
		return nil
	}
	text := strings.TrimSpace(in.Title + "\n" + in.Description)
	if text == "" {
		return nil
	}
	flagged, categories, err := s.text.Flagged(ctx, text)
	if err != nil {
		s.log.Warn("text moderation unavailable, allowing upload", zap.Error(err))
		return nil
	}
	if flagged {
		r := "text flagged by content classifier"
		if len(categories) > 0 {
			r += " (" + strings.Join(categories, ", ") + ")"
		}
		return &RejectedError{Reasons: []string{r}}
	}
	return nil
}

func (s *Service) heuristics(in Input) []string {
	var reasons []string

	if in.SizeBytes <= 0 {
		reasons = append(reasons, "file is empty")
	} else if s.maxBytes > 0 && in.SizeBytes > s.maxBytes {
		reasons = append(reasons, fmt.Sprintf("file is %s, limit is %s",
			humanize.IBytes(uint64(in.SizeBytes)), humanize.IBytes(uint64(s.maxBytes))))
	}

	if !mimeAllowed(in.MimeType) {
		reasons = append(reasons, fmt.Sprintf("file type %q is not supported", in.MimeType))
	}

	if _, ok := blockedExtensions[strings.ToLower(path.Ext(in.FileName))]; ok {
		reasons = append(reasons, "executable files are not allowed")
	}

	lower := strings.ToLower(in.Title + " " + in.Description)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			reasons = append(reasons, "title or description contains blocked terms")
			break
		}
	}
	return reasons
}

func mimeAllowed(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	for _, p := range allowedMimePrefixes {
		if strings.HasPrefix(mime, p) {
			return true
		}
	}
	_, ok := allowedMimeTypes[mime]
	return ok
}
