package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/chunker"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	// AllowedExtensions filters link paths by suffix. "/" matches directory
	// paths and "" matches paths without an extension.
	AllowedExtensions []string
	// Selectors are tried in order; the first that matches holds the transcript.
	Selectors         []string
	Language          string
	Timeout           time.Duration
	OnProgress        func(url string)
}

// Scraper crawls transcript pages of a course site. Each page with text
// becomes one SourceDocument.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
}

var defaultSelectors = []string{
	".transcript",
	"#transcript",
	"[data-transcript]",
	"main",
	"article",
	".content",
	"#content",
}

func NewScraper(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if len(config.Selectors) == 0 {
		config.Selectors = defaultSelectors
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: base url %q has no host", models.ErrInvalidConfig, config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

// Load crawls from the base URL and tags every page with the course.
func (s *Scraper) Load(ctx context.Context, courseID models.CourseID) ([]models.SourceDocument, error) {
	docs, err := s.Scrape(ctx, s.config.BaseURL)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].CourseID = courseID
	}
	return docs, nil
}

// Scrape fetches startURL and follows same-host links up to MaxDepth. A
// failing start page is an error; failing linked pages are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.SourceDocument, error) {
	s.visited = make(map[string]bool)
	var documents []models.SourceDocument
	err := s.scrapeRecursive(ctx, startURL, 0, &documents)
	return documents, err
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != s.baseHost {
		return false
	}

	p := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowed := range s.config.AllowedExtensions {
		switch allowed {
		case "":
			validExt = path.Ext(p) == ""
		case "/":
			validExt = p == "" || strings.HasSuffix(p, "/")
		default:
			validExt = strings.HasSuffix(p, allowed)
		}
		if validExt {
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}

// extractTranscript keeps paragraph breaks so the chunker can cut on them.
func (s *Scraper) extractTranscript(doc *goquery.Document) string {
	selected := doc.Find("body")
	for _, selector := range s.config.Selectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			selected = sel.First()
			break
		}
	}

	var paragraphs []string
	selected.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := cleanContent(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n")
	}
	return cleanContent(selected.Text())
}

func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, http.Header, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return doc, resp.Header, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, documents *[]models.SourceDocument) error {
	urlStr = normalizeURL(urlStr)
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}
	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	doc, header, err := s.fetch(ctx, urlStr)
	if err != nil {
		return err
	}

	if text := s.extractTranscript(doc); text != "" {
		*documents = append(*documents, models.SourceDocument{
			ID:        chunker.SourceID(urlStr),
			OriginRef: urlStr,
			Title:     strings.TrimSpace(doc.Find("title").Text()),
			Language:  s.config.Language,
			Text:      text,
			Metadata: map[string]interface{}{
				"depth":        depth,
				"contentType":  header.Get("Content-Type"),
				"lastModified": header.Get("Last-Modified"),
			},
		})
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return err
	}
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}
		href, _ := selection.Attr("href")
		link, err := url.Parse(href)
		if err != nil {
			ctxzap.Debug(ctx, "skipping malformed link", zap.String("href", href), zap.Error(err))
			return
		}
		link = base.ResolveReference(link)

		if err := s.scrapeRecursive(ctx, link.String(), depth+1, documents); err != nil {
			ctxzap.Warn(ctx, "failed to scrape page", zap.String("url", link.String()), zap.Error(err))
		}
	})

	return ctx.Err()
}

// normalizeURL drops fragments and gives host-only URLs a "/" path so each
// page is visited once.
func normalizeURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
