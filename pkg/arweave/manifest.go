package arweave

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/everFinance/goar/types"
)

const (
	AppName = "Neural-Salvage"

	ManifestContentType = "application/x.arweave-manifest+json"
	MetadataPath        = "metadata.json"
	AssetPath           = "asset"

	// Universal Data License published by the Arweave community.
	udlLicenseTx = "yRj4a5KMctX_uOmKWCFJIjmY8DeJcusVk6-HzLiM_t8"
)

// Arweave rejects transactions whose tag names and values exceed this.
const (
	maxTagBytes   = 2048
	maxTitleBytes = 120
	maxDescBytes  = 300
	maxTopics     = 10
	maxTopicBytes = 32
)

var (
	ErrMissingTx    = errors.New("manifest needs both asset and metadata transactions")
	ErrTagsTooLarge = errors.New("manifest tags exceed the arweave tag limit")
)

// Attribute is one OpenSea-style trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type File struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

type Properties struct {
	Category string   `json:"category"`
	Files    []File   `json:"files"`
	Creators []string `json:"creators,omitempty"`
}

// Metadata is the ERC-721 style document uploaded as metadata.json.
type Metadata struct {
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	Image                string      `json:"image,omitempty"`
	AnimationURL         string      `json:"animation_url,omitempty"`
	ExternalURL          string      `json:"external_url,omitempty"`
	SellerFeeBasisPoints int         `json:"seller_fee_basis_points"`
	Attributes           []Attribute `json:"attributes"`
	Properties           Properties  `json:"properties"`
}

type manifestPath struct {
	ID string `json:"id"`
}

type manifest struct {
	Manifest string                  `json:"manifest"`
	Version  string                  `json:"version"`
	Index    map[string]string       `json:"index"`
	Paths    map[string]manifestPath `json:"paths"`
}

// BuildManifest returns an arweave/paths manifest whose index is metadata.json.
func BuildManifest(assetTx, metadataTx string) ([]byte, error) {
	if assetTx == "" || metadataTx == "" {
		return nil, ErrMissingTx
	}
	return json.Marshal(manifest{
		Manifest: "arweave/paths",
		Version:  "0.1.0",
		Index:    map[string]string{"path": MetadataPath},
		Paths: map[string]manifestPath{
			AssetPath:    {ID: assetTx},
			MetadataPath: {ID: metadataTx},
		},
	})
}

// AssetTags labels the raw media upload.
func AssetTags(contentType, title string) []types.Tag {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return []types.Tag{
		{Name: "Content-Type", Value: contentType},
		{Name: "App-Name", Value: AppName},
		{Name: "Title", Value: title},
	}
}

func MetadataTags(title string) []types.Tag {
	return []types.Tag{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "App-Name", Value: AppName},
		{Name: "Title", Value: title + " metadata"},
	}
}

// AtomicAsset describes the tradeable manifest transaction.
type AtomicAsset struct {
	Title       string
	Description string
	Kind        string
	Creator     string
	OwnerWallet string
	RoyaltyBps  int
	Topics      []string
}

// ManifestTags marks the manifest as an atomic asset with STAMP indexing so
// Arweave marketplaces pick it up.
func ManifestTags(a AtomicAsset) ([]types.Tag, error) {
	title := truncateBytes(strings.TrimSpace(a.Title), maxTitleBytes)

	var state bytes.Buffer
	enc := json.NewEncoder(&state)
	enc.SetEscapeHTML(false)
	err := enc.Encode(map[string]any{
		"ticker":    "NS-ATOMIC",
		"name":      title,
		"balances":  map[string]int{a.OwnerWallet: 1},
		"claimable": []any{},
		"claims":    []any{},
	})
	if err != nil {
		return nil, fmt.Errorf("encode init state: %w", err)
	}

	tags := []types.Tag{
		{Name: "Content-Type", Value: ManifestContentType},
		{Name: "App-Name", Value: "SmartWeaveContract"},
		{Name: "App-Version", Value: "0.3.0"},
		{Name: "Init-State", Value: strings.TrimSpace(state.String())},
		{Name: "Title", Value: title},
		{Name: "Description", Value: truncateBytes(a.Description, maxDescBytes)},
		{Name: "Type", Value: a.Kind},
		{Name: "Creator", Value: a.Creator},
		{Name: "Indexed-By", Value: "ucm"},
		{Name: "Indexed-By", Value: "stamp"},
		{Name: "License", Value: udlLicenseTx},
		{Name: "Commercial-Use", Value: "Allowed"},
		{Name: "Derivations", Value: "Allowed-With-Credit"},
		{Name: "Royalty-Bps", Value: strconv.Itoa(a.RoyaltyBps)},
	}

	// topics are best effort; they go in only while the budget allows
	size := TagBytes(tags)
	added := 0
	for _, topic := range a.Topics {
		if added == maxTopics {
			break
		}
		topic = truncateBytes(strings.TrimSpace(topic), maxTopicBytes)
		if topic == "" {
			continue
		}
		tag := types.Tag{Name: "Topic:" + topic, Value: topic}
		if size+len(tag.Name)+len(tag.Value) > maxTagBytes {
			break
		}
		tags = append(tags, tag)
		size += len(tag.Name) + len(tag.Value)
		added++
	}
	if size > maxTagBytes {
		return nil, ErrTagsTooLarge
	}
	return tags, nil
}

// TagBytes is the size Arweave counts against the tag limit.
func TagBytes(tags []types.Tag) int {
	n := 0
	for _, t := range tags {
		n += len(t.Name) + len(t.Value)
	}
	return n
}

// truncateBytes cuts s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
