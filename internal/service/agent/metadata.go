package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	agentModels "atelier/internal/domain/models/agent"
	agentRepo "atelier/internal/domain/repositories/agent"
)

const (
	fetchTimeout     = 15 * time.Second
	fetchUserAgent   = "Mozilla/5.0 (compatible; atelier/1.0)"
	fetchConcurrency = 4
)

// ReferenceEnricher fetches Open Graph and page metadata for references.
// Fetching is best effort: a page that fails marks only its own reference
// failed and never aborts a batch.
type ReferenceEnricher struct {
	references agentRepo.ReferenceRepository
	client     *http.Client
	logger     *slog.Logger
}

// NewReferenceEnricher creates a new ReferenceEnricher
func NewReferenceEnricher(references agentRepo.ReferenceRepository, logger *slog.Logger) *ReferenceEnricher {
	return &ReferenceEnricher{
		references: references,
		client:     &http.Client{Timeout: fetchTimeout},
		logger:     logger,
	}
}

// pageMetadata is what one fetch pulls out of a document.
type pageMetadata struct {
	Title         string
	Description   string
	OGTitle       string
	OGDescription string
	OGImage       string
	OGSiteName    string
	OGType        string
	FaviconURL    string
}

// FetchMetadata fetches and stores metadata for one reference. Fetched
// og_* fields overwrite stored values unless the fetch came back blank;
// title, description and favicon only fill blanks, so what a navigation
// observed on the live page is never clobbered by a meta tag.
func (e *ReferenceEnricher) FetchMetadata(ctx context.Context, referenceID string) error {
	ref, err := e.references.GetReference(ctx, referenceID)
	if err != nil {
		return err
	}

	if err := e.references.UpdateStatus(ctx, ref.ID, agentModels.ReferenceStatusFetching, ""); err != nil {
		return err
	}

	meta, fetchErr := e.fetch(ctx, ref.URL)
	if fetchErr != nil {
		if err := e.references.UpdateStatus(ctx, ref.ID, agentModels.ReferenceStatusFailed, fetchErr.Error()); err != nil {
			return err
		}
		return fetchErr
	}

	mergeMetadata(ref, meta)
	ref.Status = agentModels.ReferenceStatusComplete
	ref.ErrorMessage = ""
	if err := e.references.UpdateFetchedMetadata(ctx, ref); err != nil {
		return err
	}

	e.logger.Debug("reference metadata fetched",
		"reference_id", ref.ID,
		"url", ref.URL,
		"og_title", ref.OGTitle != "",
	)

	return nil
}

// EnrichContext fetches metadata for all of a context's pending references
// with bounded concurrency. Individual failures are logged; the pass
// reports how many references it completed.
func (e *ReferenceEnricher) EnrichContext(ctx context.Context, contextID string) (int, error) {
	refs, err := e.references.ListReferences(ctx, contextID, agentModels.ReferenceStatusPending)
	if err != nil {
		return 0, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	done := make([]bool, len(refs))
	for i := range refs {
		i := i
		g.Go(func() error {
			if err := e.FetchMetadata(gCtx, refs[i].ID); err != nil {
				e.logger.Warn("reference metadata fetch failed",
					"reference_id", refs[i].ID,
					"url", refs[i].URL,
					"error", err,
				)
				return nil
			}
			done[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	completed := 0
	for _, ok := range done {
		if ok {
			completed++
		}
	}
	return completed, nil
}

func (e *ReferenceEnricher) fetch(ctx context.Context, pageURL string) (*pageMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	meta := &pageMetadata{
		Title:         doc.Find("title").First().Text(),
		Description:   metaContent(doc, "description"),
		OGTitle:       metaContent(doc, "og:title"),
		OGDescription: metaContent(doc, "og:description"),
		OGImage:       metaContent(doc, "og:image"),
		OGSiteName:    metaContent(doc, "og:site_name"),
		OGType:        metaContent(doc, "og:type"),
		FaviconURL:    faviconURL(doc, pageURL),
	}
	return meta, nil
}

// metaContent reads a meta tag by property, falling back to name
func metaContent(doc *goquery.Document, key string) string {
	if v, ok := doc.Find(`meta[property="` + key + `"]`).First().Attr("content"); ok {
		return v
	}
	if v, ok := doc.Find(`meta[name="` + key + `"]`).First().Attr("content"); ok {
		return v
	}
	return ""
}

// faviconURL resolves the page's icon link against the page URL, falling
// back to the conventional /favicon.ico.
func faviconURL(doc *goquery.Document, pageURL string) string {
	href := ""
	for _, sel := range []string{`link[rel="icon"]`, `link[rel="shortcut icon"]`, `link[rel="apple-touch-icon"]`} {
		if v, ok := doc.Find(sel).First().Attr("href"); ok && v != "" {
			href = v
			break
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	if href == "" {
		return base.Scheme + "://" + base.Host + "/favicon.ico"
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return href
	}
	return resolved.String()
}

// mergeMetadata applies the per-field merge rules onto the stored reference
func mergeMetadata(ref *agentModels.Reference, meta *pageMetadata) {
	if meta.OGTitle != "" {
		ref.OGTitle = meta.OGTitle
	}
	if meta.OGDescription != "" {
		ref.OGDescription = meta.OGDescription
	}
	if meta.OGImage != "" {
		ref.OGImage = meta.OGImage
	}
	if meta.OGSiteName != "" {
		ref.OGSiteName = meta.OGSiteName
	}
	if meta.OGType != "" {
		ref.OGType = meta.OGType
	}
	if ref.Title == "" {
		ref.Title = meta.Title
	}
	if ref.Description == "" {
		ref.Description = meta.Description
	}
	if ref.FaviconURL == "" {
		ref.FaviconURL = meta.FaviconURL
	}
	if ref.Domain == "" {
		ref.Domain = agentModels.DeriveDomain(ref.URL)
	}
}
