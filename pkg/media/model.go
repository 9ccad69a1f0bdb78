package media

import (
	"path"
	"strings"
	"time"
)

type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	KindCode     Kind = "code"
	KindOther    Kind = "other"
)

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument, KindCode, KindOther:
		return true
	}
	return false
}

type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
	AnalysisSkipped    AnalysisStatus = "skipped"
)

type Asset struct {
	ID             int64          `json:"id"`
	OwnerUUID      string         `json:"owner_uuid"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	FileName       string         `json:"file_name"`
	MimeType       string         `json:"mime_type"`
	Kind           Kind           `json:"kind"`
	SizeBytes      int64          `json:"size_bytes"`
	StorageKey     string         `json:"-"`
	Caption        string         `json:"caption"`
	Tags           []string       `json:"tags"`
	Transcript     string         `json:"transcript,omitempty"`
	CoverArtURL    string         `json:"cover_art_url,omitempty"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
	AnalysisError  string         `json:"analysis_error,omitempty"`
	Sandbox        *SandboxRun    `json:"sandbox,omitempty"`
	ForSale        bool           `json:"for_sale"`
	PriceCents     int64          `json:"price_cents"`
	Sold           bool           `json:"sold"`
	SoldAt         *time.Time     `json:"sold_at,omitempty"`
	NFTID          *int64         `json:"nft_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Analysis is what an analyzer produced for one asset.
type Analysis struct {
	Caption     string
	Tags        []string
	Transcript  string
	CoverArtURL string
	Sandbox     *SandboxRun
}

// SandboxRun captures a code execution in an isolated sandbox.
type SandboxRun struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Filters narrows list queries; nil fields are ignored.
type Filters struct {
	OwnerUUID *string
	Kind      *Kind
	ForSale   *bool
	Sold      *bool
}

// IndexText is the text embedded into the vector index for an asset.
func (a Asset) IndexText() string {
	parts := []string{a.Title, a.Description, a.Caption}
	if len(a.Tags) > 0 {
		parts = append(parts, strings.Join(a.Tags, ", "))
	}
	if a.Transcript != "" {
		parts = append(parts, a.Transcript)
	}
	var b strings.Builder
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p)
		}
	}
	return b.String()
}

var codeExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".jsx": {}, ".rs": {}, ".java": {},
	".c": {}, ".h": {}, ".cpp": {}, ".cc": {}, ".rb": {}, ".php": {}, ".sh": {}, ".kt": {},
	".swift": {}, ".cs": {}, ".scala": {}, ".lua": {}, ".sql": {},
}

var documentTypes = map[string]struct{}{
	"application/pdf":  {},
	"application/json": {},
	"application/xml":  {},
	"text/plain":       {},
	"text/markdown":    {},
	"text/html":        {},
	"text/csv":         {},
}

// DetectKind classifies an upload from its mime type, falling back to the file extension.
func DetectKind(mimeType, fileName string) Kind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	}

	if _, ok := codeExtensions[strings.ToLower(path.Ext(fileName))]; ok {
		return KindCode
	}
	if _, ok := documentTypes[mimeType]; ok {
		return KindDocument
	}
	if strings.HasPrefix(mimeType, "text/") {
		return KindDocument
	}
	return KindOther
}
