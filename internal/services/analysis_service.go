package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// JobSummaryFields is the structured posting summary inside a JobAnalysis.
type JobSummaryFields struct {
	Role            string   `json:"role"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	SalaryRange     string   `json:"salary_range"`
	KeyTechnologies []string `json:"key_technologies"`
}

// JobAnalysis is the LLM's structured fit judgment. Scores are always
// clamped to [1,5]; optional fields are back-filled with neutral defaults.
type JobAnalysis struct {
	Recommendation    string           `json:"recommendation"`
	FitScore          int              `json:"fitScore"`
	Confidence        int              `json:"confidence"`
	JobSummary        string           `json:"job_summary"`
	FitSummary        string           `json:"fit_summary"`
	CompanySummary    string           `json:"company_summary,omitempty"`
	WhyGoodFit        []string         `json:"why_good_fit"`
	PotentialConcerns []string         `json:"potential_concerns"`
	Summary           JobSummaryFields `json:"summary"`
	Analysis          string           `json:"analysis"`
	// Degraded is true when this is a placeholder produced because the LLM
	// call failed. The pipeline keeps moving either way, but callers can
	// tell the difference.
	Degraded bool `json:"degraded"`
}

const jobFitPrompt = `You are a job application assistant. Analyze this job posting against the candidate's resume and preferences.

RESUME:
%s

PREFERENCES:
%s

JOB POSTING:
%s

Analyze the job fit and respond with JSON in this exact format:
{
  "recommendation": "apply|maybe|skip",
  "fitScore": 1-5,
  "confidence": 1-5,
  "job_summary": "2-4 sentence description of what this role involves and the main responsibilities",
  "fit_summary": "2-3 sentence summary of why this would or wouldn't be a good fit",
  "company_summary": "What we know about the company from the posting",
  "why_good_fit": ["specific reasons why this matches well"],
  "potential_concerns": ["specific concerns or red flags about this role"],
  "summary": {
    "role": "exact role title",
    "company": "company name",
    "location": "location/remote status",
    "salary_range": "salary if mentioned, or 'Not specified'",
    "key_technologies": ["list", "of", "main", "technologies"]
  },
  "analysis": "Detailed analysis of fit, strengths, and concerns"
}

Consider:
- Technical skill alignment
- Experience level match
- Location/remote preferences
- Salary expectations (if mentioned)
- Company culture fit
- Growth opportunities

Recommendation guidelines:
- "apply": Strong fit (80%%+ match)
- "maybe": Moderate fit (50-79%% match)
- "skip": Poor fit (<50%% match)`

const hackerNewsJobPrompt = `You are analyzing a brief HackerNews job posting comment to help a job seeker decide if it's worth pursuing.

RESUME:
%s

PREFERENCES:
%s

HACKERNEWS COMMENT:
%s

This is a short, informal job posting from HackerNews - not a full job description. It might be just 1-3 sentences with basic info like company, role, tech stack, salary, and contact info.

Your job is to quickly assess if this opportunity aligns with their background and preferences.

ASSESSMENT CRITERIA:
1. **Deal-breakers first**: Location requirements, work authorization, must-have skills
2. **Experience match**: Do they have relevant background for this role?
3. **Preference alignment**: Tech stack, company stage, salary range, remote policy

RECOMMENDATIONS:
- **apply**: Good match with their background AND preferences, worth reaching out
- **maybe**: Unclear from the brief posting, or mixed signals (some good fit, some concerns)
- **skip**: Clear mismatch with their requirements or preferences

Keep your analysis conversational and concise - this is a quick screening, not a deep dive.

Respond with JSON in this EXACT format:
{
  "recommendation": "apply|maybe|skip",
  "confidence": 1-5,
  "fitScore": 1-5,
  "job_summary": "What role/company is this and what would they likely do?",
  "company_summary": "What we know about the company from this brief posting",
  "fit_summary": "Why this is/isn't a good fit - lead with the most important reason",
  "why_good_fit": ["Specific matches with their background"],
  "potential_concerns": ["Missing information or red flags"],
  "summary": {
    "role": "job title or 'Not specified'",
    "company": "company name or 'Not specified'",
    "location": "location/remote info or 'Not specified'",
    "salary_range": "salary if mentioned or 'Not specified'",
    "key_technologies": ["mentioned", "technologies"]
  },
  "analysis": "Your bottom-line take: should they pursue this opportunity and why?"
}`

// AnalysisService scores job fit against a user's resume and preferences.
type AnalysisService struct {
	llm *LLMService
}

func NewAnalysisService(llm *LLMService) *AnalysisService {
	return &AnalysisService{llm: llm}
}

// AnalyzeJobFit judges a fully fetched job posting. It never fails: any
// error ends in a degraded low-confidence "maybe" so the pipeline always has
// a row to persist.
func (s *AnalysisService) AnalyzeJobFit(ctx context.Context, jobContent, resume, preferences string) *JobAnalysis {
	prompt := fmt.Sprintf(jobFitPrompt, resume, preferences, jobContent)
	return s.analyze(ctx, prompt, llms.WithTemperature(0.3), llms.WithMaxTokens(1000))
}

// AnalyzeCommentJobFit judges a short HackerNews comment. Same degrade-not-
// fail contract as AnalyzeJobFit.
func (s *AnalysisService) AnalyzeCommentJobFit(ctx context.Context, comment, resume, preferences string) *JobAnalysis {
	prompt := fmt.Sprintf(hackerNewsJobPrompt, resume, preferences, comment)
	return s.analyze(ctx, prompt, llms.WithTemperature(0.4), llms.WithMaxTokens(4096))
}

func (s *AnalysisService) analyze(ctx context.Context, prompt string, options ...llms.CallOption) *JobAnalysis {
	content, err := s.llm.RunPrompt(ctx, prompt, options...)
	if err != nil {
		log.Printf("Job fit analysis failed: %v", err)
		return degradedAnalysis()
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		log.Printf("Could not parse analysis response: %v", err)
		return degradedAnalysis()
	}

	log.Printf("Job analysis complete: %s (fit: %d/5, confidence: %d/5)",
		analysis.Recommendation, analysis.FitScore, analysis.Confidence)
	return analysis
}

func parseAnalysis(content string) (*JobAnalysis, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var analysis JobAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}

	if analysis.Recommendation == "" || analysis.FitScore == 0 || analysis.Confidence == 0 {
		return nil, fmt.Errorf("analysis missing required fields")
	}

	analysis.FitScore = clampScore(analysis.FitScore)
	analysis.Confidence = clampScore(analysis.Confidence)

	if analysis.WhyGoodFit == nil {
		analysis.WhyGoodFit = []string{}
	}
	if analysis.PotentialConcerns == nil {
		analysis.PotentialConcerns = []string{}
	}
	if analysis.Summary.Role == "" && analysis.Summary.Company == "" &&
		analysis.Summary.Location == "" && analysis.Summary.SalaryRange == "" &&
		analysis.Summary.KeyTechnologies == nil {
		analysis.Summary = defaultSummary()
	}
	if analysis.Summary.KeyTechnologies == nil {
		analysis.Summary.KeyTechnologies = []string{}
	}
	if analysis.JobSummary == "" {
		if analysis.Analysis != "" {
			analysis.JobSummary = analysis.Analysis
		} else {
			analysis.JobSummary = "Job summary not available"
		}
	}
	if analysis.FitSummary == "" {
		analysis.FitSummary = "Fit analysis not available"
	}

	return &analysis, nil
}

// extractJSON returns the first balanced JSON object in the content, which
// survives models that pad the JSON with prose before or after it.
func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func defaultSummary() JobSummaryFields {
	return JobSummaryFields{
		Role:            "Not specified",
		Company:         "Not specified",
		Location:        "Not specified",
		SalaryRange:     "Not specified",
		KeyTechnologies: []string{},
	}
}

func degradedAnalysis() *JobAnalysis {
	return &JobAnalysis{
		Recommendation:    "maybe",
		FitScore:          3,
		Confidence:        1,
		JobSummary:        "Analysis unavailable due to AI service error",
		FitSummary:        "Could not analyze job fit due to technical issues",
		CompanySummary:    "Company summary not available due to AI service error",
		WhyGoodFit:        []string{},
		PotentialConcerns: []string{"AI analysis failed - manual review recommended"},
		Summary:           defaultSummary(),
		Analysis:          "Could not analyze job fit due to technical issues. Manual review recommended.",
		Degraded:          true,
	}
}
