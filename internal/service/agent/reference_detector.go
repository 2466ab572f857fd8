package agent

import (
	"regexp"
	"strings"

	agentModels "atelier/internal/domain/models/agent"
)

// Detection of inline references in authored markdown. Three link forms are
// recognized: inline links, autolinks, and reference-style links resolved
// against their definitions.

const (
	ReferenceTypeMarkdown  = "markdown"
	ReferenceTypeAutolink  = "autolink"
	ReferenceTypeReference = "reference"
)

var (
	markdownLinkRe  = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	autolinkRe      = regexp.MustCompile(`<(https?://[^>]+)>`)
	referenceLinkRe = regexp.MustCompile(`\[([^\]]+)\]\[([^\]]*)\]`)
	referenceDefRe  = regexp.MustCompile(`(?m)^\[([^\]]+)\]:\s*(.+)$`)

	trailingPunctRe = regexp.MustCompile(`[.,;:!?)\]]+$`)
)

// DetectReferences parses content for linked references. Each reference
// starts accepted; the author deselects rather than opts in. URLs are
// normalized (trailing punctuation stripped) and deduplicated keeping the
// first occurrence.
func DetectReferences(content string) []agentModels.DetectedReference {
	if content == "" {
		return []agentModels.DetectedReference{}
	}

	seen := make(map[string]bool)
	out := []agentModels.DetectedReference{}

	add := func(url, text, refType string) {
		url = normalizeDetectedURL(url)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		accepted := true
		out = append(out, agentModels.DetectedReference{
			URL:      url,
			Text:     text,
			Type:     refType,
			Accepted: &accepted,
		})
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		add(m[2], m[1], ReferenceTypeMarkdown)
	}

	// Autolinks have no display text of their own.
	for _, m := range autolinkRe.FindAllStringSubmatch(content, -1) {
		add(m[1], "", ReferenceTypeAutolink)
	}

	defs := make(map[string]string)
	for _, m := range referenceDefRe.FindAllStringSubmatch(content, -1) {
		defs[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
	}
	for _, m := range referenceLinkRe.FindAllStringSubmatch(content, -1) {
		id := m[2]
		if id == "" {
			// implicit reference: [text][] resolves via the text itself
			id = m[1]
		}
		if url, ok := defs[strings.ToLower(id)]; ok {
			add(url, m[1], ReferenceTypeReference)
		}
	}

	return out
}

// HasDetectableReferences reports whether content contains any linked
// references
func HasDetectableReferences(content string) bool {
	return len(DetectReferences(content)) > 0
}

// normalizeDetectedURL trims whitespace and trailing punctuation that
// prose tends to glue onto pasted URLs.
func normalizeDetectedURL(url string) string {
	url = strings.TrimSpace(url)
	return trailingPunctRe.ReplaceAllString(url, "")
}
