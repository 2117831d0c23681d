package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Job posting content types.
const (
	PostingIndividual = "INDIVIDUAL"
	PostingListing    = "LISTING"
	PostingNone       = "NONE"
)

// ContentValidation is the outcome of classifying a fetched page. Content is
// only populated for INDIVIDUAL postings.
type ContentValidation struct {
	IsValidJobPosting bool   `json:"isValidJobPosting"`
	PostingType       string `json:"postingType"`
	Content           string `json:"content"`
}

const classifyPromptLimit = 3000

const classifyPrompt = `Analyze this webpage content and determine what type of job-related information it contains.

CONTENT:
%s

Classify this content into ONE of these categories:

1. INDIVIDUAL JOB POSTING - Contains:
   - Details about ONE specific job role
   - Job description, responsibilities, requirements
   - Information about applying for THIS specific position
   - Company information for THIS role

2. JOB LISTING PAGE - Contains:
   - Multiple job openings
   - Links to various positions
   - General career information
   - "Browse jobs", "See all openings", "Filter positions" type content

3. NO JOB INFO - Contains:
   - No job-related information
   - Error pages, redirects, login pages
   - General company info without job details
   - Broken/empty/irrelevant content

Respond with ONLY the classification: INDIVIDUAL, LISTING, or NONE`

const extractContentPrompt = `Analyze this webpage content. First classify it, then if it describes ONE specific job, organize the posting's own text into sections.

CONTENT:
%s

Classification rules:
- "INDIVIDUAL": details about ONE specific job role with its own description, requirements and application info
- "LISTING": multiple openings, links to various positions, "browse jobs" style pages
- "NONE": no job-related information (errors, login pages, irrelevant content)

If INDIVIDUAL, copy the posting's EXACT wording into organized sections (role, company, responsibilities, requirements, compensation, how to apply). Do NOT summarize or paraphrase - downstream analysis needs the original text verbatim.

Respond with JSON only:
{
  "classification": "INDIVIDUAL|LISTING|NONE",
  "organized_content": "the organized verbatim sections, or empty string if not INDIVIDUAL"
}`

var individualIndicators = []string{
	"job description",
	"responsibilities",
	"requirements",
	"apply now",
	"submit application",
	"job summary",
}

var listingIndicators = []string{
	"browse jobs",
	"see all openings",
	"filter positions",
	"view all jobs",
	"current openings",
	"open positions",
}

// ValidatorService decides whether fetched page text is worth a full fit
// analysis before spending the expensive LLM call.
type ValidatorService struct {
	llm *LLMService
}

func NewValidatorService(llm *LLMService) *ValidatorService {
	return &ValidatorService{llm: llm}
}

// ClassifyJobContent does classification only, with a single-token response.
// Any failure or unclear answer degrades to NONE.
func (s *ValidatorService) ClassifyJobContent(ctx context.Context, content string) ContentValidation {
	answer, err := s.llm.RunPrompt(ctx,
		fmt.Sprintf(classifyPrompt, truncate(content, classifyPromptLimit)),
		llms.WithTemperature(0.1), llms.WithMaxTokens(10),
	)
	if err != nil {
		log.Printf("Content classification failed: %v", err)
		return ContentValidation{PostingType: PostingNone}
	}

	postingType := parsePostingType(answer)
	if postingType != PostingIndividual {
		return ContentValidation{PostingType: postingType}
	}
	return ContentValidation{IsValidJobPosting: true, PostingType: PostingIndividual, Content: content}
}

// ExtractJobContent combines classification with verbatim section extraction
// in one call. A cheap indicator-word screen runs first so obvious listing
// pages never reach the LLM at all.
func (s *ValidatorService) ExtractJobContent(ctx context.Context, content string) ContentValidation {
	if looksLikeListing(content) {
		return ContentValidation{PostingType: PostingListing}
	}

	answer, err := s.llm.RunPrompt(ctx,
		fmt.Sprintf(extractContentPrompt, truncate(content, classifyPromptLimit)),
		llms.WithTemperature(0.1), llms.WithMaxTokens(4096),
	)
	if err != nil {
		log.Printf("Content extraction failed: %v", err)
		return ContentValidation{PostingType: PostingNone}
	}

	var parsed struct {
		Classification   string `json:"classification"`
		OrganizedContent string `json:"organized_content"`
	}
	if raw, ok := extractJSON(answer); ok {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			log.Printf("Could not parse extraction response: %v", err)
			return ContentValidation{PostingType: PostingNone}
		}
	} else {
		// Some models answer the classification token alone.
		parsed.Classification = answer
	}

	postingType := parsePostingType(parsed.Classification)
	if postingType != PostingIndividual {
		return ContentValidation{PostingType: postingType}
	}

	organized := strings.TrimSpace(parsed.OrganizedContent)
	if organized == "" {
		organized = content
	}
	return ContentValidation{IsValidJobPosting: true, PostingType: PostingIndividual, Content: organized}
}

func parsePostingType(answer string) string {
	upper := strings.ToUpper(strings.TrimSpace(answer))
	switch {
	case strings.Contains(upper, PostingIndividual):
		return PostingIndividual
	case strings.Contains(upper, PostingListing):
		return PostingListing
	case strings.Contains(upper, PostingNone):
		return PostingNone
	default:
		log.Printf("Unexpected classification response %q, defaulting to NONE", answer)
		return PostingNone
	}
}

// looksLikeListing is a zero-cost screen: pages whose listing indicators
// clearly dominate their posting indicators are skipped without an LLM call.
func looksLikeListing(content string) bool {
	lower := strings.ToLower(content)

	individualScore := 0
	for _, indicator := range individualIndicators {
		if strings.Contains(lower, indicator) {
			individualScore++
		}
	}
	listingScore := 0
	for _, indicator := range listingIndicators {
		if strings.Contains(lower, indicator) {
			listingScore++
		}
	}

	return listingScore >= 2 && listingScore > individualScore
}

func truncate(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	return content[:limit] + " ...[truncated]"
}
