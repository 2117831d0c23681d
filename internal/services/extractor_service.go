package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// HNJobData holds the structured fields extracted from one HackerNews job
// comment. Stored on the Comment row as JSON.
type HNJobData struct {
	JobTitle          string   `json:"jobTitle,omitempty"`
	Company           string   `json:"company,omitempty"`
	Location          string   `json:"location,omitempty"`
	Salary            string   `json:"salary,omitempty"`
	EmploymentType    string   `json:"employmentType,omitempty"`
	RoleOverview      string   `json:"roleOverview,omitempty"`
	KeyRequirements   []string `json:"keyRequirements"`
	Technologies      []string `json:"technologies"`
	ExperienceLevel   string   `json:"experienceLevel,omitempty"`
	ContactInfo       string   `json:"contactInfo,omitempty"`
	Confidence        int      `json:"confidence"`
	IsValidJobPosting bool     `json:"isValidJobPosting"`
	ExtractedAt       int64    `json:"extractedAt"`
}

const commentExtractionPrompt = `
Extract job information from this HackerNews comment. Most HackerNews job comments follow a format like:

"Job Title | Location | Salary | Technologies

Company description and what they do.

Responsibilities:
- Task 1
- Task 2

Requirements:
- Requirement 1
- Requirement 2

Contact: email@company.com"

COMMENT TEXT:
%s

Extract the following information and return it as JSON:

{
  "jobTitle": "exact job title from the comment",
  "company": "company name",
  "location": "location (city, remote, hybrid, etc.)",
  "salary": "salary range or amount mentioned",
  "employmentType": "Full-time, Part-time, Contract, Intern, etc.",
  "roleOverview": "brief 1-2 sentence summary of the role",
  "keyRequirements": ["requirement1", "requirement2"],
  "technologies": ["tech1", "tech2"],
  "experienceLevel": "Junior, Mid, Senior, etc.",
  "contactInfo": "email or application instructions",
  "isValidJobPosting": true,
  "confidence": 1-5
}

Rules:
- Only extract information that is explicitly mentioned
- Use null for missing fields
- isValidJobPosting: true only if this comment actually advertises a job
- confidence: 1 (very uncertain) to 5 (very confident)
- Keep arrays concise (max 5 items each)
- Extract exact text, don't paraphrase

Return ONLY the JSON object, no other text.`

// ExtractorService pulls structured job fields out of raw comment text.
// Unlike the fit analyzer it propagates errors, because the comment pipeline
// needs to distinguish rate limits from real failures for its retry logic.
type ExtractorService struct {
	llm *LLMService
}

func NewExtractorService(llm *LLMService) *ExtractorService {
	return &ExtractorService{llm: llm}
}

func (s *ExtractorService) ExtractJobFromComment(ctx context.Context, commentText string) (*HNJobData, error) {
	prompt := fmt.Sprintf(commentExtractionPrompt, commentText)

	content, err := s.llm.RunPrompt(ctx, prompt, llms.WithTemperature(0.2), llms.WithMaxTokens(1024))
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSON(content)
	if !ok {
		return nil, fmt.Errorf("no JSON object in extraction response")
	}

	var data HNJobData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("invalid JSON in extraction response: %w", err)
	}

	if data.KeyRequirements == nil {
		data.KeyRequirements = []string{}
	}
	if data.Technologies == nil {
		data.Technologies = []string{}
	}
	if data.Confidence == 0 {
		data.Confidence = 3
	}
	data.Confidence = clampScore(data.Confidence)
	data.ExtractedAt = time.Now().UnixMilli()

	return &data, nil
}
