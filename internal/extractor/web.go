package extractor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
	"jaytaylor.com/html2text"

	"github.com/parchment-ai/corpusd/internal/domain"
)

const (
	defaultMaxPages     = 10
	defaultUserAgent    = "corpusd/1.0"
	maxPageBodyBytes    = 10 << 20
	browserRenderBudget = 45 * time.Second
)

// RenderFunc returns the rendered HTML of a page. The production renderer
// drives a headless browser so script-generated content is captured; plain
// HTTP is the fallback when rendering fails or no renderer is configured.
type RenderFunc func(ctx context.Context, pageURL string) (string, error)

// WebStrategy fetches a URL, converts the page to text, and follows
// pagination links up to a page cap. Fetches honor robots.txt and are paced
// by a rate limiter.
type WebStrategy struct {
	client    *http.Client
	render    RenderFunc
	limiter   *rate.Limiter
	maxPages  int
	userAgent string
}

func NewWebStrategy() *WebStrategy {
	return &WebStrategy{
		client:    &http.Client{Timeout: 30 * time.Second},
		render:    RenderWithBrowser,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		maxPages:  defaultMaxPages,
		userAgent: defaultUserAgent,
	}
}

// NewPlainWebStrategy fetches pages over plain HTTP only, for deployments
// without a headless browser available.
func NewPlainWebStrategy() *WebStrategy {
	s := NewWebStrategy()
	s.render = nil
	return s
}

func (s *WebStrategy) Extract(ctx context.Context, raw []byte, filename string) (*Result, error) {
	pageURL := strings.TrimSpace(string(raw))
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
			"content is not a fetchable http or https url", err)
	}

	allowed, err := s.robotsAllowed(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if !allowed {
		// Disallowed fetches are a defined empty outcome, not an error; the
		// pipeline fails the document on the missing text.
		return &Result{
			Text: "",
			Metadata: map[string]string{
				MetaSourceURL:        pageURL,
				MetaStrategy:         "web",
				MetaRobotsDisallowed: "true",
			},
		}, nil
	}

	texts := make([]string, 0, 1)
	seen := make(map[[32]byte]bool)
	current := parsed
	for page := 0; page < s.maxPages && current != nil; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		html, err := s.fetchHTML(ctx, current.String())
		if err != nil {
			if page == 0 {
				return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
					fmt.Sprintf("failed to fetch %s", current), err)
			}
			// A broken pagination trail keeps whatever was already fetched.
			break
		}

		hash := sha256.Sum256([]byte(html))
		if seen[hash] {
			break
		}
		seen[hash] = true

		text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
		if err == nil && strings.TrimSpace(text) != "" {
			texts = append(texts, strings.TrimSpace(text))
		}

		current = s.nextPageURL(current, html)
	}

	joined := strings.Join(texts, "\n\n")
	if joined == "" {
		return nil, domain.ErrNoExtractableText
	}

	return &Result{
		Text: joined,
		Metadata: map[string]string{
			MetaSourceURL:    pageURL,
			MetaStrategy:     "web",
			MetaPagesFetched: strconv.Itoa(len(texts)),
		},
	}, nil
}

// robotsAllowed checks the site's robots.txt. An unreachable or unparseable
// robots file does not block the fetch.
func (s *WebStrategy) robotsAllowed(ctx context.Context, target *url.URL) (bool, error) {
	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, nil
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return true, nil
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true, nil
	}
	// Rules are read under the wildcard group; a site must opt crawlers out
	// generally, not know this service by name.
	return robots.TestAgent(target.RequestURI(), "*"), nil
}

func (s *WebStrategy) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	if s.render != nil {
		if html, err := s.render(ctx, pageURL); err == nil && strings.TrimSpace(html) != "" {
			return html, nil
		}
	}
	return s.fetchPlain(ctx, pageURL)
}

func (s *WebStrategy) fetchPlain(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var pagePathPattern = regexp.MustCompile(`(/page/)(\d+)(/?)$`)

// nextPageURL finds the next page in a pagination trail: a rel=next link,
// then a "next"-labelled anchor, then a numeric page marker in the URL
// itself (?page=N or /page/N).
func (s *WebStrategy) nextPageURL(current *url.URL, html string) *url.URL {
	if next := findNextLink(current, html); next != nil {
		return next
	}

	query := current.Query()
	if pageParam := query.Get("page"); pageParam != "" {
		if n, err := strconv.Atoi(pageParam); err == nil {
			query.Set("page", strconv.Itoa(n+1))
			next := *current
			next.RawQuery = query.Encode()
			return &next
		}
	}

	if m := pagePathPattern.FindStringSubmatch(current.Path); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			next := *current
			next.Path = pagePathPattern.ReplaceAllString(current.Path, m[1]+strconv.Itoa(n+1)+m[3])
			return &next
		}
	}
	return nil
}

func findNextLink(current *url.URL, html string) *url.URL {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var href string
	doc.Find(`a[rel="next"], link[rel="next"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ = sel.Attr("href")
		return href == ""
	})
	if href == "" {
		doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			label := strings.ToLower(strings.TrimSpace(sel.Text()))
			switch label {
			case "next", "next page", "next »", "next >", "»":
				href, _ = sel.Attr("href")
			}
			return href == ""
		})
	}
	if href == "" {
		return nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	next := current.ResolveReference(ref)
	if next.Host != current.Host || next.String() == current.String() {
		return nil
	}
	return next
}

// RenderWithBrowser loads the page in a headless browser and returns the
// post-script DOM.
func RenderWithBrowser(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, browserRenderBudget)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return html, nil
}
