package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodAnalysisJSON = `{
  "recommendation": "apply",
  "fitScore": 4,
  "confidence": 5,
  "job_summary": "Backend role building billing systems in Go.",
  "fit_summary": "Strong overlap with your Go and Postgres experience.",
  "why_good_fit": ["Go experience", "Remote friendly"],
  "potential_concerns": ["On-call rotation"],
  "summary": {
    "role": "Senior Backend Engineer",
    "company": "Acme",
    "location": "Remote",
    "salary_range": "$170k-$210k",
    "key_technologies": ["Go", "Postgres"]
  },
  "analysis": "Overall a strong match."
}`

func TestAnalyzeJobFitParsesFullResponse(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{content: goodAnalysisJSON})))

	result := svc.AnalyzeJobFit(context.Background(), "job posting", "resume", "prefs")

	require.NotNil(t, result)
	assert.False(t, result.Degraded)
	assert.Equal(t, "apply", result.Recommendation)
	assert.Equal(t, 4, result.FitScore)
	assert.Equal(t, 5, result.Confidence)
	assert.Equal(t, "Senior Backend Engineer", result.Summary.Role)
	assert.Equal(t, []string{"Go", "Postgres"}, result.Summary.KeyTechnologies)
}

func TestAnalyzeJobFitClampsOutOfRangeScores(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{
		content: `{"recommendation": "apply", "fitScore": 9, "confidence": -2}`,
	})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")

	assert.Equal(t, 5, result.FitScore)
	// Confidence of 0 fails the required-field check, so -2 is the smallest
	// value that actually reaches clamping.
	assert.Equal(t, 1, result.Confidence)
}

func TestAnalyzeJobFitSurvivesProsePadding(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{
		content: "Here is my assessment:\n" + goodAnalysisJSON + "\nLet me know if you need more.",
	})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")
	assert.False(t, result.Degraded)
	assert.Equal(t, "apply", result.Recommendation)
}

func TestAnalyzeJobFitSurvivesBracesInTrailingProse(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{
		content: goodAnalysisJSON + "\nNote: scores use the shape {score, confidence} described above.",
	})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")

	require.NotNil(t, result)
	assert.False(t, result.Degraded)
	assert.Equal(t, "apply", result.Recommendation)
	assert.Equal(t, 4, result.FitScore)
}

func TestExtractJSONHandlesBracesInsideStrings(t *testing.T) {
	raw, ok := extractJSON(`prefix {"recommendation": "apply {maybe}", "fitScore": 4, "confidence": 3} trailing }`)

	require.True(t, ok)
	assert.Equal(t, `{"recommendation": "apply {maybe}", "fitScore": 4, "confidence": 3}`, raw)
}

func TestExtractJSONRejectsUnterminatedObject(t *testing.T) {
	_, ok := extractJSON(`{"recommendation": "apply"`)
	assert.False(t, ok)
}

func TestAnalyzeJobFitDegradesOnLLMError(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{err: errors.New("service unavailable")})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")

	require.NotNil(t, result)
	assert.True(t, result.Degraded)
	assert.Equal(t, "maybe", result.Recommendation)
	assert.Equal(t, 3, result.FitScore)
	assert.Equal(t, 1, result.Confidence)
	assert.Contains(t, result.PotentialConcerns, "AI analysis failed - manual review recommended")
}

func TestAnalyzeJobFitDegradesOnGarbageResponse(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{content: "I cannot help with that."})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")
	assert.True(t, result.Degraded)
}

func TestAnalyzeJobFitDegradesOnMissingRequiredFields(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{
		content: `{"fitScore": 4, "confidence": 3}`,
	})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")
	assert.True(t, result.Degraded)
}

func TestAnalyzeJobFitBackfillsOptionalFields(t *testing.T) {
	svc := NewAnalysisService(NewLLMServiceWithModel(newFakeModel(fakeReply{
		content: `{"recommendation": "skip", "fitScore": 2, "confidence": 4}`,
	})))

	result := svc.AnalyzeJobFit(context.Background(), "job", "resume", "")

	assert.False(t, result.Degraded)
	assert.NotNil(t, result.WhyGoodFit)
	assert.NotNil(t, result.PotentialConcerns)
	assert.Equal(t, "Not specified", result.Summary.Role)
	assert.Equal(t, "Job summary not available", result.JobSummary)
	assert.Equal(t, "Fit analysis not available", result.FitSummary)
}

func TestAnalyzeCommentJobFitIncludesCommentInPrompt(t *testing.T) {
	fake := newFakeModel(fakeReply{content: goodAnalysisJSON})
	svc := NewAnalysisService(NewLLMServiceWithModel(fake))

	svc.AnalyzeCommentJobFit(context.Background(), "Acme is hiring Go engineers", "my resume", "remote only")

	prompt := fake.lastPrompt()
	assert.Contains(t, prompt, "Acme is hiring Go engineers")
	assert.Contains(t, prompt, "my resume")
	assert.Contains(t, prompt, "remote only")
}
