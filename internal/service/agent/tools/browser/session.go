package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

const defaultNavigateTimeout = 30 * time.Second

// Options configures a browsing session.
type Options struct {
	Headless  bool
	UserAgent string
	// Timeout bounds each page operation; zero means the default.
	Timeout time.Duration
}

// Session is one headless browser instance shared by the browsing tools.
// All tool calls in an agent run go through the same session so navigation
// state (current page, history) carries between calls.
type Session struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	timeout       time.Duration

	mu      sync.Mutex
	history []string
}

// NewSession launches a browser. Close must be called to release it.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; atelier/1.0)"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultNavigateTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(ua),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// start the browser process up front so the first tool call does not
	// pay the launch cost inside its own timeout
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &Session{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		timeout:       timeout,
	}, nil
}

// Close shuts the browser down
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}

func (s *Session) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.browserCtx, s.timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// Navigate loads a page and returns its title and final URL (after any
// redirects).
func (s *Session) Navigate(url string) (title, currentURL string, err error) {
	err = s.run(
		chromedp.Navigate(url),
		chromedp.Title(&title),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", "", fmt.Errorf("navigating to %s: %w", url, err)
	}

	s.mu.Lock()
	s.history = append(s.history, currentURL)
	s.mu.Unlock()

	return title, currentURL, nil
}

// GoBack navigates to the previous page in session history.
func (s *Session) GoBack() (title, currentURL string, err error) {
	s.mu.Lock()
	if len(s.history) < 2 {
		s.mu.Unlock()
		return "", "", fmt.Errorf("no previous page in history")
	}
	s.history = s.history[:len(s.history)-1]
	s.mu.Unlock()

	err = s.run(
		chromedp.NavigateBack(),
		chromedp.Title(&title),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", "", fmt.Errorf("navigating back: %w", err)
	}
	return title, currentURL, nil
}

// CurrentPage returns the title and URL of the page the session is on.
func (s *Session) CurrentPage() (title, currentURL string, err error) {
	err = s.run(
		chromedp.Title(&title),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", "", fmt.Errorf("reading current page: %w", err)
	}
	return title, currentURL, nil
}

// HTML returns the current page's rendered document.
func (s *Session) HTML() (string, error) {
	var html string
	if err := s.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

// Link is one hyperlink found on a page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Links collects the current page's hyperlinks with their visible text.
func (s *Session) Links() ([]Link, error) {
	var links []Link
	err := s.run(chromedp.Evaluate(
		`Array.from(document.querySelectorAll('a[href]')).map(a => ({href: a.href, text: (a.textContent || '').trim()}))`,
		&links,
	))
	if err != nil {
		return nil, fmt.Errorf("collecting links: %w", err)
	}
	return links, nil
}
