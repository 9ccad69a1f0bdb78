// Package beta gates features that are not yet generally available.
package beta

import (
	"errors"
	"slices"
	"strings"
)

type Feature string

const (
	NFTMinting    Feature = "nft_minting"
	PolygonBridge Feature = "polygon_bridge"
	AICoverArt    Feature = "ai_cover_art"
	CodeSandbox   Feature = "code_sandbox"
)

var ErrNoAccess = errors.New("feature is in closed beta")

// Known lists every feature that can be granted.
var Known = []Feature{NFTMinting, PolygonBridge, AICoverArt, CodeSandbox}

func IsKnown(f Feature) bool {
	return slices.Contains(Known, f)
}

type Checker struct {
	allowlist map[string]struct{}
	open      map[Feature]struct{}
}

// NewChecker builds a checker. Allowlisted emails get every feature;
// open features are available to everyone.
func NewChecker(allowlist []string, open []string) *Checker {
	c := &Checker{
		allowlist: make(map[string]struct{}, len(allowlist)),
		open:      make(map[Feature]struct{}, len(open)),
	}
	for _, e := range allowlist {
		c.allowlist[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, f := range open {
		c.open[Feature(strings.TrimSpace(f))] = struct{}{}
	}
	return c
}

// Member is the account asking for a feature.
type Member struct {
	Email string
	// Verified is set once the email has been confirmed. The allowlist
	// only applies to verified emails.
	Verified bool
	Flags    []string
}

func (c *Checker) HasAccess(m Member, feature Feature) bool {
	if _, ok := c.open[feature]; ok {
		return true
	}
	if m.Verified {
		if _, ok := c.allowlist[strings.ToLower(strings.TrimSpace(m.Email))]; ok {
			return true
		}
	}
	return slices.Contains(m.Flags, string(feature))
}

// Require returns ErrNoAccess when HasAccess is false.
func (c *Checker) Require(m Member, feature Feature) error {
	if !c.HasAccess(m, feature) {
		return ErrNoAccess
	}
	return nil
}
