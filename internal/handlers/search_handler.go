package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/jobseekr/internal/dtos"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/justsurfingit/jobseekr/internal/utils"
)

const defaultBatchSize = 30

// SearchHandler runs the search-and-analyze pipeline, streaming progress to
// the client over SSE. The session row makes an interrupted run resumable:
// a dropped connection pauses the session and the next POST picks the cursor
// back up.
type SearchHandler struct {
	Sessions  *services.SessionService
	Searcher  *services.SearchService
	Content   *services.ContentService
	Validator *services.ValidatorService
	Analyzer  *services.AnalysisService
	Jobs      *services.JobService
}

func NewSearchHandler(
	sessions *services.SessionService,
	searcher *services.SearchService,
	content *services.ContentService,
	validator *services.ValidatorService,
	analyzer *services.AnalysisService,
	jobs *services.JobService,
) *SearchHandler {
	return &SearchHandler{
		Sessions:  sessions,
		Searcher:  searcher,
		Content:   content,
		Validator: validator,
		Analyzer:  analyzer,
		Jobs:      jobs,
	}
}

// StreamSearch is the POST /search/stream SSE endpoint. One call processes
// one batch: search, fetch, classify, analyze, persist, emitting an event
// per job as it lands.
func (h *SearchHandler) StreamSearch(c *gin.Context) {
	var req dtos.SearchStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	session, resumed, err := h.Sessions.AcquireSession(req.UserID, req.JobTitle, batchSize)
	if err != nil {
		if errors.Is(err, services.ErrSearchInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session: " + err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	if err := h.Sessions.MarkInProgress(session.ID); err != nil {
		h.emit(c, "error", gin.H{"message": err.Error()})
		return
	}
	h.emit(c, "session", gin.H{"session_id": session.ID, "resumed": resumed, "page": session.CurrentPage})

	ctx := c.Request.Context()
	h.progress(c, session.ID, 0, batchSize, "Searching for jobs...")

	batch, err := h.Searcher.FetchNewJobsWithDuplicateHandling(ctx, req.JobTitle, req.UserID, session.CurrentPage, batchSize)
	if err != nil {
		if ctx.Err() != nil {
			h.Sessions.Pause(session.ID)
			return
		}
		h.Sessions.Fail(session.ID, err.Error())
		h.emit(c, "error", gin.H{"message": "Search failed: " + err.Error()})
		return
	}

	if session.TotalResults != nil && batch.TotalResults > 0 && *session.TotalResults != batch.TotalResults {
		h.emit(c, "results_changed", gin.H{
			"previous": *session.TotalResults,
			"current":  batch.TotalResults,
		})
	}

	processed := 0
	for i, item := range batch.Items {
		// A dropped client pauses the session so the next run resumes here.
		if ctx.Err() != nil {
			h.Sessions.Pause(session.ID)
			return
		}

		parsed := utils.ParseJobFromSearch(item)
		h.progress(c, session.ID, i+1, len(batch.Items),
			fmt.Sprintf("Processing job %d/%d: %s", i+1, len(batch.Items), parsed.Title))

		jobURL := normalizeJobURL(item.Link)
		content := h.Content.FetchJobContentWithRetry(ctx, jobURL, 3)
		if ctx.Err() != nil {
			h.Sessions.Pause(session.ID)
			return
		}

		validation := h.Validator.ExtractJobContent(ctx, content)
		if ctx.Err() != nil {
			h.Sessions.Pause(session.ID)
			return
		}
		if validation.PostingType != services.PostingIndividual {
			reason := "not a job posting"
			if validation.PostingType == services.PostingListing {
				reason = "job board listing page"
			}
			h.emit(c, "job_skipped", gin.H{"url": jobURL, "title": parsed.Title, "reason": reason})
			continue
		}

		analysis := h.Analyzer.AnalyzeJobFit(ctx, validation.Content, req.ResumeText, req.Preferences)

		job := models.ProcessedJob{
			UserID:            req.UserID,
			Title:             parsed.Title,
			Company:           parsed.Company,
			Location:          parsed.Location,
			Salary:            parsed.Salary,
			URL:               jobURL,
			Content:           validation.Content,
			ContentHash:       utils.ContentHash(validation.Content),
			Recommendation:    analysis.Recommendation,
			FitScore:          analysis.FitScore,
			Confidence:        analysis.Confidence,
			Summary:           analysis.FitSummary,
			Analysis:          analysis.Analysis,
			JobSummary:        analysis.JobSummary,
			FitSummary:        analysis.FitSummary,
			CompanySummary:    analysis.CompanySummary,
			WhyGoodFit:        utils.EncodeStringSlice(analysis.WhyGoodFit),
			PotentialConcerns: utils.EncodeStringSlice(analysis.PotentialConcerns),
			KeyTechnologies:   utils.EncodeStringSlice(analysis.Summary.KeyTechnologies),
			Degraded:          analysis.Degraded,
			Status:            models.JobUnread,
		}
		if err := h.Jobs.SaveAnalyzedJob(&job); err != nil {
			h.emit(c, "job_skipped", gin.H{"url": jobURL, "title": parsed.Title, "reason": "failed to save: " + err.Error()})
			continue
		}
		processed++
		h.emit(c, "job", job)
	}

	if err := h.Sessions.RecordBatch(session.ID, batch.FinalPage+1, processed, batch.TotalResults); err != nil {
		h.emit(c, "error", gin.H{"message": "Failed to record batch: " + err.Error()})
		return
	}
	h.emit(c, "batch_complete", gin.H{
		"processed":     processed,
		"skipped":       len(batch.Items) - processed,
		"next_page":     batch.FinalPage + 1,
		"total_results": batch.TotalResults,
	})

	if err := h.Sessions.Complete(session.ID); err != nil {
		h.emit(c, "error", gin.H{"message": err.Error()})
		return
	}
	h.emit(c, "complete", gin.H{"session_id": session.ID, "processed": processed})
}

// GetSearchStatus is the GET /search/status endpoint.
func (h *SearchHandler) GetSearchStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	session, err := h.Sessions.Latest(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session: " + err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No search session found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// CancelSearch is the DELETE /search/status endpoint. It parks the live
// session rather than destroying it, so the cursor survives.
func (h *SearchHandler) CancelSearch(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	session, err := h.Sessions.PauseLatestLive(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel session: " + err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active search session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

func (h *SearchHandler) emit(c *gin.Context, event string, data any) {
	c.SSEvent(event, data)
	c.Writer.Flush()
}

func (h *SearchHandler) progress(c *gin.Context, sessionID string, current, total int, message string) {
	h.Sessions.UpdateProgress(sessionID, current, total, message)
	h.emit(c, "progress", gin.H{"current": current, "total": total, "message": message})
}

// normalizeJobURL strips tracking suffixes that point at the same posting.
// Ashby application URLs duplicate the posting URL.
func normalizeJobURL(raw string) string {
	if strings.Contains(raw, "ashbyhq.com") {
		raw = strings.TrimSuffix(raw, "/application")
	}
	return raw
}
