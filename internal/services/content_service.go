package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/justsurfingit/jobseekr/internal/utils"
)

const contentUserAgent = "JobSeekr/1.0"

// ContentService retrieves readable page text for a URL. The primary path is
// the Jina reader API; when the reader is down we fall back to fetching the
// page directly and stripping it down with goquery.
type ContentService struct {
	readerBaseURL string
	httpClient    *http.Client

	// retry knobs, lowered by tests
	maxRetries  int
	backoffBase time.Duration
}

func NewContentService(readerBaseURL string) *ContentService {
	return &ContentService{
		readerBaseURL: strings.TrimRight(readerBaseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		maxRetries:    3,
		backoffBase:   time.Second,
	}
}

// Placeholder returns the degraded content used when every fetch attempt has
// failed. Callers must treat this as valid input, not an error.
func Placeholder(url string) string {
	return fmt.Sprintf("Job posting URL: %s\nContent could not be retrieved.", url)
}

// FetchJobContent performs one fetch attempt: reader API first, direct GET
// plus HTML stripping as fallback.
func (s *ContentService) FetchJobContent(ctx context.Context, url string) (string, error) {
	content, readerErr := s.fetchViaReader(ctx, url)
	if readerErr == nil {
		return content, nil
	}
	log.Printf("Reader fetch failed for %s: %v, trying direct fetch", url, readerErr)

	content, directErr := s.fetchDirect(ctx, url)
	if directErr == nil {
		return content, nil
	}
	return "", fmt.Errorf("reader: %v; direct: %w", readerErr, directErr)
}

// FetchJobContentWithRetry wraps FetchJobContent with bounded retries and
// exponential backoff. On exhaustion it returns the placeholder string and
// no error so downstream classification still runs.
func (s *ContentService) FetchJobContentWithRetry(ctx context.Context, url string, maxRetries int) string {
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		content, err := s.FetchJobContent(ctx, url)
		if err == nil {
			return content
		}

		if attempt < maxRetries {
			delay := s.backoffBase * (1 << attempt)
			log.Printf("Retry %d/%d for %s in %s", attempt, maxRetries, url, delay)
			select {
			case <-ctx.Done():
				return Placeholder(url)
			case <-time.After(delay):
			}
		}
	}

	log.Printf("All fetch attempts failed for %s, using placeholder content", url)
	return Placeholder(url)
}

func (s *ContentService) fetchViaReader(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.readerBaseURL+"/"+url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", contentUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader API error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", fmt.Errorf("no content returned from reader API")
	}

	log.Printf("Fetched %d characters of content for %s", len(content), url)
	return content, nil
}

func (s *ContentService) fetchDirect(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", contentUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("direct fetch error: %d %s", resp.StatusCode, resp.Status)
	}

	text, err := extractReadableText(resp.Body)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("page had no readable text")
	}
	return text, nil
}

// extractReadableText strips markup, scripts and navigation chrome from an
// HTML document and collapses the remaining text.
func extractReadableText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer, noscript, iframe").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, "Title: "+title)
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	parts = append(parts, strings.TrimSpace(body.Text()))

	return utils.CollapseWhitespace(strings.Join(parts, "\n")), nil
}
