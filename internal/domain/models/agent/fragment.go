package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Fragment statuses. The forward path is
// pending -> generating -> generated -> applied; discarded is an absorbing
// alternate terminal reachable from any non-terminal state.
const (
	FragmentStatusPending    = "pending"
	FragmentStatusGenerating = "generating"
	FragmentStatusGenerated  = "generated"
	FragmentStatusApplied    = "applied"
	FragmentStatusDiscarded  = "discarded"
)

// FragmentStatuses is the set of valid fragment statuses.
var FragmentStatuses = []string{
	FragmentStatusPending,
	FragmentStatusGenerating,
	FragmentStatusGenerated,
	FragmentStatusApplied,
	FragmentStatusDiscarded,
}

// fragmentStatusRank orders the forward path.
var fragmentStatusRank = map[string]int{
	FragmentStatusPending:    0,
	FragmentStatusGenerating: 1,
	FragmentStatusGenerated:  2,
	FragmentStatusApplied:    3,
}

// FragmentStatusesBefore returns the statuses a fragment may currently hold
// for a transition to the given status to be valid. Discarding is allowed
// from any non-terminal state; marking generating is an idempotent no-op when
// already generating.
func FragmentStatusesBefore(to string) []string {
	if to == FragmentStatusDiscarded {
		return []string{FragmentStatusPending, FragmentStatusGenerating, FragmentStatusGenerated}
	}
	rank, ok := fragmentStatusRank[to]
	if !ok {
		return nil
	}
	var from []string
	for _, s := range FragmentStatuses {
		r, forward := fragmentStatusRank[s]
		if !forward {
			continue
		}
		if r < rank || (to == FragmentStatusGenerating && s == FragmentStatusGenerating) {
			from = append(from, s)
		}
	}
	return from
}

// Fragment types.
const (
	FragmentTypeSelection    = "selection"
	FragmentTypeFullDocument = "full_document"
)

// DetectedReference is one link found in fragment content before generation.
// A nil Accepted flag means accepted (default-accept policy).
type DetectedReference struct {
	URL      string `json:"url"`
	Text     string `json:"text,omitempty"`
	Type     string `json:"type,omitempty"`
	Accepted *bool  `json:"accepted,omitempty"`
}

// IsAccepted applies the default-accept policy: only an explicit false
// excludes the reference.
func (d DetectedReference) IsAccepted() bool {
	return d.Accepted == nil || *d.Accepted
}

// Fragment is a versioned snapshot of one content transformation:
// what the user selected, what the AI generated, and what was actually
// applied (possibly hand-edited). Regeneration appends a child fragment via
// ParentID, forming an append-only singly-linked version chain - fragments
// are never re-parented, so the chain cannot cycle.
type Fragment struct {
	ID                 string              `json:"id" db:"id"`
	ContextID          string              `json:"context_id" db:"context_id"`
	Contextable        *ContextableRef     `json:"contextable,omitempty"`
	FragmentType       string              `json:"fragment_type,omitempty" db:"fragment_type"`
	StartOffset        *int                `json:"start_offset,omitempty" db:"start_offset"`
	EndOffset          *int                `json:"end_offset,omitempty" db:"end_offset"`
	ContentHash        string              `json:"content_hash,omitempty" db:"content_hash"`
	OriginalContent    string              `json:"original_content,omitempty" db:"original_content"`
	GeneratedContent   *string             `json:"generated_content,omitempty" db:"generated_content"`
	AppliedContent     *string             `json:"applied_content,omitempty" db:"applied_content"`
	ActionType         string              `json:"action_type" db:"action_type"`
	DetectedReferences []DetectedReference `json:"detected_references,omitempty" db:"detected_references"`
	Metadata           map[string]any      `json:"metadata,omitempty" db:"metadata"`
	Status             string              `json:"status" db:"status"`
	ParentID           *string             `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
}

// HashContent returns the SHA-256 hex digest used for change detection:
// the editor re-hashes the live selection to verify a stored fragment still
// matches the document before applying a stale suggestion.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Terminal reports whether the fragment has reached a terminal status.
func (f *Fragment) Terminal() bool {
	return f.Status == FragmentStatusApplied || f.Status == FragmentStatusDiscarded
}

// HasReferences reports whether any references were detected in the original
// content.
func (f *Fragment) HasReferences() bool {
	return len(f.DetectedReferences) > 0
}

// AcceptedReferences returns the detected references the user kept. A missing
// accepted flag counts as accepted.
func (f *Fragment) AcceptedReferences() []DetectedReference {
	var out []DetectedReference
	for _, ref := range f.DetectedReferences {
		if ref.IsAccepted() {
			out = append(out, ref)
		}
	}
	return out
}

// RejectedReferences returns the detected references the user toggled off.
func (f *Fragment) RejectedReferences() []DetectedReference {
	var out []DetectedReference
	for _, ref := range f.DetectedReferences {
		if !ref.IsAccepted() {
			out = append(out, ref)
		}
	}
	return out
}

// AcceptedReferencesMarkdown renders the accepted references as markdown
// links, one per line, for inclusion in a generation prompt.
func (f *Fragment) AcceptedReferencesMarkdown() string {
	var lines []string
	for _, ref := range f.AcceptedReferences() {
		text := ref.Text
		if text == "" {
			text = ref.URL
		}
		lines = append(lines, "["+text+"]("+ref.URL+")")
	}
	return strings.Join(lines, "\n")
}

// WasModifiedOnApply reports whether the user edited the AI output before
// applying it.
func (f *Fragment) WasModifiedOnApply() bool {
	if f.AppliedContent == nil || f.GeneratedContent == nil {
		return false
	}
	return *f.AppliedContent != *f.GeneratedContent
}

// ActionLabel returns the action type title-cased for display.
func (f *Fragment) ActionLabel() string {
	if f.ActionType == "" {
		return ""
	}
	words := strings.Fields(strings.ReplaceAll(f.ActionType, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// OriginalPreview returns the original content truncated for display.
func (f *Fragment) OriginalPreview(length int) string {
	return Truncate(f.OriginalContent, length)
}
