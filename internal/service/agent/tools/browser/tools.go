package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"

	"atelier/internal/service/agent/tools"
)

// maxContentChars caps the markdown a single extract_main_content call
// returns.
const maxContentChars = 5000

// Registrar is the slice of a tool registry the browser tools need.
type Registrar interface {
	Register(name string, executor tools.ToolExecutor)
}

// RegisterTools registers the browsing tool suite against a shared session.
// Page-level failures come back inside the result map (success=false with an
// error string) rather than as Go errors: a dead link is a finding the agent
// should see and route around, not an execution failure.
func RegisterTools(reg Registrar, session *Session) {
	reg.Register("navigate", tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		target, _ := input["url"].(string)
		if target == "" {
			return nil, fmt.Errorf("navigate: url is required")
		}
		title, currentURL, err := session.Navigate(target)
		if err != nil {
			return failure(err), nil
		}
		return map[string]any{
			"success":     true,
			"title":       title,
			"current_url": currentURL,
		}, nil
	}))

	reg.Register("extract_main_content", tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		title, currentURL, err := session.CurrentPage()
		if err != nil {
			return failure(err), nil
		}
		html, err := session.HTML()
		if err != nil {
			return failure(err), nil
		}

		content, articleTitle, err := readableMarkdown(html, currentURL)
		if err != nil {
			return failure(err), nil
		}
		if articleTitle != "" {
			title = articleTitle
		}
		return map[string]any{
			"success": true,
			"url":     currentURL,
			"title":   title,
			"content": content,
		}, nil
	}))

	reg.Register("extract_links", tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		links, err := session.Links()
		if err != nil {
			return failure(err), nil
		}
		out := make([]any, 0, len(links))
		for _, l := range links {
			out = append(out, map[string]any{"href": l.Href, "text": l.Text})
		}
		return map[string]any{
			"success": true,
			"count":   len(out),
			"links":   out,
		}, nil
	}))

	reg.Register("go_back", tools.ToolExecutorFunc(func(ctx context.Context, input map[string]any) (any, error) {
		title, currentURL, err := session.GoBack()
		if err != nil {
			return failure(err), nil
		}
		return map[string]any{
			"success":     true,
			"title":       title,
			"current_url": currentURL,
		}, nil
	}))
}

func failure(err error) map[string]any {
	return map[string]any{
		"success": false,
		"error":   err.Error(),
	}
}

// readableMarkdown strips the page down to its readable article and converts
// it to markdown.
func readableMarkdown(html, pageURL string) (content, title string, err error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing page url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return "", "", fmt.Errorf("extracting readable content: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		return "", "", fmt.Errorf("converting to markdown: %w", err)
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) > maxContentChars {
		markdown = markdown[:maxContentChars]
	}
	return markdown, article.Title, nil
}
