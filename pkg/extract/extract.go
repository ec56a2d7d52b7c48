package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

var (
	// ErrUnsupportedFormat means the source's format has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction means the source was readable but yielded no usable
	// text.
	ErrExtraction = errors.New("extraction failure")
)

type Config struct {
	Timeout   time.Duration
	RateLimit float64 // outbound requests per second
}

// Extractor turns a source reference into normalized plain text. Local
// .txt and .md files are read directly; http(s) URLs are fetched and
// HTML is reduced to visible text. Everything else is unsupported.
type Extractor struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config Config) *Extractor {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &Extractor{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func (e *Extractor) Extract(ctx context.Context, source string) (string, error) {
	var (
		text string
		err  error
	)

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		text, err = e.extractURL(ctx, source)
	} else {
		text, err = e.extractFile(source)
	}
	if err != nil {
		return "", err
	}

	text = Normalize(text)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text in %s", ErrExtraction, source)
	}
	return text, nil
}

func (e *Extractor) extractFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md", ".text":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return string(content), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func (e *Extractor) extractURL(ctx context.Context, url string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetching %s: status %d", ErrExtraction, url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/html"):
		return extractHTML(resp)
	case strings.Contains(contentType, "text/plain"), strings.Contains(contentType, "text/markdown"):
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return string(body), nil
	default:
		return "", fmt.Errorf("%w: content type %s", ErrUnsupportedFormat, contentType)
	}
}

func extractHTML(resp *http.Response) (string, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	doc.Find("script, style, noscript, nav, header, footer").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	if len(parts) == 0 {
		// Markup without block structure; fall back to the body text.
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n\n"), nil
}

var (
	spacesRe   = regexp.MustCompile(`[ \t]+`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses horizontal whitespace and runs of blank lines
// while keeping line and paragraph breaks, which the chunker's boundary
// ladder depends on.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spacesRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")

	text = newlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
