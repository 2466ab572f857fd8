package agent

import (
	"context"
	"log/slog"
	"strings"

	agentModels "atelier/internal/domain/models/agent"
	agentRepo "atelier/internal/domain/repositories/agent"
)

const (
	// extractedContentLimit caps stored page content per reference.
	extractedContentLimit = 1000
	// maxLinksPerCall bounds how many entries of an extract_links result
	// are considered at all; skipped entries still consume their slot.
	maxLinksPerCall = 10
)

// ReferenceExtractor turns completed browsing tool calls into reference
// records. Extraction is idempotent: navigations upsert by URL, discovered
// links only insert when the URL is new, and page content enriches rows
// in place.
type ReferenceExtractor struct {
	toolCalls  agentRepo.ToolCallRepository
	references agentRepo.ReferenceRepository
	logger     *slog.Logger
}

// NewReferenceExtractor creates a new ReferenceExtractor
func NewReferenceExtractor(
	toolCalls agentRepo.ToolCallRepository,
	references agentRepo.ReferenceRepository,
	logger *slog.Logger,
) *ReferenceExtractor {
	return &ReferenceExtractor{
		toolCalls:  toolCalls,
		references: references,
		logger:     logger,
	}
}

// extractableTool reports whether a tool's completed calls feed reference
// extraction.
func extractableTool(name string) bool {
	switch name {
	case "navigate", "extract_main_content", "extract_links":
		return true
	}
	return false
}

// ExtractFromContext processes a context's completed browsing calls in call
// order: navigations first, then content enrichment, then discovered links.
// A URL already visited in this pass is skipped, so a navigation always wins
// over a bare link to the same page. Per-call failures are logged and
// skipped; only repository listing errors abort the pass.
func (e *ReferenceExtractor) ExtractFromContext(ctx context.Context, contextID string) ([]agentModels.Reference, error) {
	seen := make(map[string]bool)
	var out []agentModels.Reference

	for _, name := range []string{"navigate", "extract_main_content", "extract_links"} {
		calls, err := e.toolCalls.ListToolCalls(ctx, contextID, name, agentModels.ToolCallStatusCompleted)
		if err != nil {
			return nil, err
		}
		for i := range calls {
			refs, err := e.extractFromCall(ctx, &calls[i], seen)
			if err != nil {
				e.logger.Error("reference extraction failed for tool call",
					"context_id", contextID,
					"tool", calls[i].Name,
					"tool_call_id", calls[i].ID,
					"error", err,
				)
				continue
			}
			out = append(out, refs...)
		}
	}

	return out, nil
}

// ExtractFromToolCall processes a single completed call, the per-call path
// the recorder uses right after a tool finishes.
func (e *ReferenceExtractor) ExtractFromToolCall(ctx context.Context, tc *agentModels.ToolCall) ([]agentModels.Reference, error) {
	if !tc.Success() || !extractableTool(tc.Name) {
		return nil, nil
	}
	return e.extractFromCall(ctx, tc, make(map[string]bool))
}

func (e *ReferenceExtractor) extractFromCall(ctx context.Context, tc *agentModels.ToolCall, seen map[string]bool) ([]agentModels.Reference, error) {
	switch tc.Name {
	case "navigate":
		return e.extractNavigate(ctx, tc, seen)
	case "extract_main_content":
		return e.extractMainContent(ctx, tc)
	case "extract_links":
		return e.extractLinks(ctx, tc, seen)
	}
	return nil, nil
}

// extractNavigate records the visited page as a fetched reference. The
// upsert fills blanks and links the call, so revisits never lose data.
func (e *ReferenceExtractor) extractNavigate(ctx context.Context, tc *agentModels.ToolCall, seen map[string]bool) ([]agentModels.Reference, error) {
	if !resultBool(tc.Result, "success") {
		return nil, nil
	}
	url := resultString(tc.Result, "current_url")
	if url == "" || seen[url] {
		return nil, nil
	}
	seen[url] = true

	ref := &agentModels.Reference{
		ContextID:     tc.ContextID,
		ToolCallRowID: &tc.ID,
		URL:           url,
		Title:         resultString(tc.Result, "title"),
		Status:        agentModels.ReferenceStatusComplete,
	}
	if err := e.references.UpsertReference(ctx, ref); err != nil {
		return nil, err
	}
	return []agentModels.Reference{*ref}, nil
}

// extractMainContent stores readable page content on the already-visited
// page's reference. No reference exists for the URL means the page was
// never navigated to; nothing to enrich.
func (e *ReferenceExtractor) extractMainContent(ctx context.Context, tc *agentModels.ToolCall) ([]agentModels.Reference, error) {
	if !resultBool(tc.Result, "success") {
		return nil, nil
	}
	url := resultString(tc.Result, "url")
	if url == "" {
		url = resultString(tc.Result, "current_url")
	}
	content := resultString(tc.Result, "content")
	if url == "" || content == "" {
		return nil, nil
	}
	if len(content) > extractedContentLimit {
		content = content[:extractedContentLimit]
	}

	if err := e.references.EnrichExtractedContent(ctx, tc.ContextID, url, content, resultString(tc.Result, "title")); err != nil {
		return nil, err
	}
	ref, err := e.references.GetReferenceByURL(ctx, tc.ContextID, url)
	if err != nil {
		return nil, err
	}
	return []agentModels.Reference{*ref}, nil
}

// extractLinks records discovered hyperlinks as pending references. A link
// never overwrites a reference for a page that was actually visited.
func (e *ReferenceExtractor) extractLinks(ctx context.Context, tc *agentModels.ToolCall, seen map[string]bool) ([]agentModels.Reference, error) {
	if !resultBool(tc.Result, "success") {
		return nil, nil
	}
	raw, ok := tc.Result["links"].([]any)
	if !ok {
		return nil, nil
	}
	if len(raw) > maxLinksPerCall {
		raw = raw[:maxLinksPerCall]
	}

	var out []agentModels.Reference
	for _, item := range raw {
		link, ok := item.(map[string]any)
		if !ok {
			continue
		}
		href := resultString(link, "href")
		if !strings.HasPrefix(href, "http") || seen[href] {
			continue
		}
		seen[href] = true

		ref := &agentModels.Reference{
			ContextID:     tc.ContextID,
			ToolCallRowID: &tc.ID,
			URL:           href,
			Title:         resultString(link, "text"),
			Status:        agentModels.ReferenceStatusPending,
		}
		created, err := e.references.CreateReferenceIfAbsent(ctx, ref)
		if err != nil {
			return nil, err
		}
		if created {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func resultString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func resultBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}
