package agent

import (
	"fmt"
	"net/url"
	"time"
)

// Reference statuses.
const (
	ReferenceStatusPending  = "pending"
	ReferenceStatusFetching = "fetching"
	ReferenceStatusComplete = "complete"
	ReferenceStatusFailed   = "failed"
)

// ReferenceStatuses is the set of valid reference statuses.
var ReferenceStatuses = []string{
	ReferenceStatusPending,
	ReferenceStatusFetching,
	ReferenceStatusComplete,
	ReferenceStatusFailed,
}

// Reference is a citation/source record discovered during tool execution or
// text scanning. References are deduplicated by exact URL string within a
// context; a second observation of the same URL updates fields instead of
// creating a duplicate row.
type Reference struct {
	ID               string         `json:"id" db:"id"`
	ContextID        string         `json:"context_id" db:"context_id"`
	ToolCallRowID    *string        `json:"tool_call_row_id,omitempty" db:"tool_call_row_id"`
	URL              string         `json:"url" db:"url"`
	Title            string         `json:"title,omitempty" db:"title"`
	Description      string         `json:"description,omitempty" db:"description"`
	OGTitle          string         `json:"og_title,omitempty" db:"og_title"`
	OGDescription    string         `json:"og_description,omitempty" db:"og_description"`
	OGImage          string         `json:"og_image,omitempty" db:"og_image"`
	OGSiteName       string         `json:"og_site_name,omitempty" db:"og_site_name"`
	OGType           string         `json:"og_type,omitempty" db:"og_type"`
	FaviconURL       string         `json:"favicon_url,omitempty" db:"favicon_url"`
	Domain           string         `json:"domain,omitempty" db:"domain"`
	Metadata         map[string]any `json:"metadata,omitempty" db:"metadata"`
	ExtractedContent string         `json:"extracted_content,omitempty" db:"extracted_content"`
	Status           string         `json:"status" db:"status"`
	ErrorMessage     string         `json:"error_message,omitempty" db:"error_message"`
	Position         int            `json:"position" db:"position"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// DeriveDomain returns the host component of rawURL, best effort. Invalid
// URLs yield an empty domain rather than an error.
func DeriveDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// DisplayTitle returns the best available title: og_title, then title, then
// the derived domain.
func (r *Reference) DisplayTitle() string {
	if r.OGTitle != "" {
		return r.OGTitle
	}
	if r.Title != "" {
		return r.Title
	}
	return r.Domain
}

// DisplayDescription returns the best available description.
func (r *Reference) DisplayDescription() string {
	if r.OGDescription != "" {
		return r.OGDescription
	}
	return r.Description
}

// ToMarkdownLink renders the reference as a markdown link.
func (r *Reference) ToMarkdownLink() string {
	title := r.DisplayTitle()
	if title == "" {
		title = r.URL
	}
	return fmt.Sprintf("[%s](%s)", title, r.URL)
}

// ReferenceCard is the UI-ready projection of a reference.
type ReferenceCard struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	Domain           string    `json:"domain,omitempty"`
	Title            string    `json:"title,omitempty"`
	Description      string    `json:"description,omitempty"`
	Image            string    `json:"image,omitempty"`
	SiteName         string    `json:"site_name,omitempty"`
	Favicon          string    `json:"favicon,omitempty"`
	MarkdownLink     string    `json:"markdown_link"`
	ExtractedContent string    `json:"extracted_content,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// AsCard projects the reference into card data for display. Extracted content
// is truncated to keep cards small.
func (r *Reference) AsCard() ReferenceCard {
	return ReferenceCard{
		ID:               r.ID,
		URL:              r.URL,
		Domain:           r.Domain,
		Title:            r.DisplayTitle(),
		Description:      r.DisplayDescription(),
		Image:            r.OGImage,
		SiteName:         r.OGSiteName,
		Favicon:          r.FaviconURL,
		MarkdownLink:     r.ToMarkdownLink(),
		ExtractedContent: Truncate(r.ExtractedContent, 200),
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
	}
}

// Truncate shortens s to at most n bytes, appending "..." when content was
// cut. Mirrors the truncation used for extracted content and previews.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
