package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
)

// JobData is the basic job info we can pull out of one search result before
// fetching the actual page.
type JobData struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location,omitempty"`
	Salary   string `json:"salary,omitempty"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
}

// SearchItem is one ranked result from the web search API.
type SearchItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
}

var (
	boardSuffixRe = regexp.MustCompile(`(?i)\s*-\s*(LinkedIn|Indeed|Glassdoor|AngelList).*$`)
	pipeSuffixRe  = regexp.MustCompile(`\s*\|\s*.*$`)
	linkedinAtRe  = regexp.MustCompile(`(?i)at\s+([^·\-\|]+)`)

	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:in|at)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*,?\s*[A-Z]{2})`),
		regexp.MustCompile(`([A-Z][a-z]+,\s*[A-Z]{2})`),
		regexp.MustCompile(`(?i)(Remote|Hybrid|On-site)`),
		regexp.MustCompile(`([A-Z][a-z]+\s+[A-Z][a-z]+,?\s*[A-Z]{2,})`),
	}

	salaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\$[\d,]+(?:\s*-\s*\$?[\d,]+)?(?:\s*per\s+year|/year|/yr|annually)?`),
		regexp.MustCompile(`(?i)[\d,]+k(?:\s*-\s*[\d,]+k)?(?:\s*per\s+year|/year|/yr|annually)?`),
		regexp.MustCompile(`(?i)\$[\d,]+(?:\s*-\s*\$?[\d,]+)?(?:\s*per\s+hour|/hour|/hr|hourly)?`),
	}
)

// ParseJobFromSearch turns one search result into basic job info using
// cheap string heuristics. The real fields come later from the LLM.
func ParseJobFromSearch(item SearchItem) JobData {
	title := item.Title
	if title == "" {
		title = "Unknown Title"
	}
	return JobData{
		Title:    CleanTitle(title),
		Company:  ExtractCompany(item.DisplayLink, item.Snippet),
		Location: ExtractLocation(item.Snippet),
		Salary:   ExtractSalary(item.Snippet),
		URL:      item.Link,
		Snippet:  item.Snippet,
	}
}

// CleanTitle strips common job board suffixes from a result title.
func CleanTitle(title string) string {
	title = boardSuffixRe.ReplaceAllString(title, "")
	title = pipeSuffixRe.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// ExtractCompany guesses the company from the result domain, with a special
// case for LinkedIn snippets ("... at Stripe · ...").
func ExtractCompany(displayLink, snippet string) string {
	if strings.Contains(displayLink, "linkedin.com") {
		if m := linkedinAtRe.FindStringSubmatch(snippet); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	domain := strings.TrimPrefix(displayLink, "www.")
	name := strings.SplitN(domain, ".", 2)[0]
	if name == "" {
		return displayLink
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func ExtractLocation(text string) string {
	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func ExtractSalary(text string) string {
	for _, re := range salaryPatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

var whitespaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// CollapseWhitespace squeezes runs of spaces and blank lines out of
// extracted page text while keeping paragraph breaks.
func CollapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(joined, "\n\n"))
}

// ContentHash fingerprints page content for change detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EncodeStringSlice marshals a []string for storage in a text column.
// nil encodes as "[]" so readers never see null.
func EncodeStringSlice(values []string) string {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// DecodeStringSlice is the reverse of EncodeStringSlice, tolerant of empty
// and malformed input.
func DecodeStringSlice(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return []string{}
	}
	return values
}
