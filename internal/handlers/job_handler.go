package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/jobseekr/internal/dtos"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/justsurfingit/jobseekr/internal/utils"
	"gorm.io/gorm"
)

// JobHandler serves the processed-job list and triage endpoints, plus the
// one-off analyze-by-URL endpoint.
type JobHandler struct {
	Jobs      *services.JobService
	Content   *services.ContentService
	Validator *services.ValidatorService
	Analyzer  *services.AnalysisService
}

func NewJobHandler(jobs *services.JobService, content *services.ContentService, validator *services.ValidatorService, analyzer *services.AnalysisService) *JobHandler {
	return &JobHandler{Jobs: jobs, Content: content, Validator: validator, Analyzer: analyzer}
}

// ListJobs is the GET /jobs endpoint.
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	jobs, err := h.Jobs.ListJobs(userID, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": jobs, "count": len(jobs)})
}

// UpdateJobStatus is the PATCH /jobs/:id/status endpoint.
func (h *JobHandler) UpdateJobStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	var req dtos.UpdateJobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	job, err := h.Jobs.UpdateStatus(userID, c.Param("id"), req.Status)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		if strings.Contains(err.Error(), "invalid job status") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": job})
}

// BulkUpdateJobStatus is the PATCH /jobs/bulk-status endpoint.
func (h *JobHandler) BulkUpdateJobStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	var req dtos.BulkJobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	updated, err := h.Jobs.BulkUpdateStatus(userID, req.JobIDs, req.Status)
	if err != nil {
		if strings.Contains(err.Error(), "invalid job status") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update statuses: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

// AnalyzeJob is the POST /analyze/job endpoint: fetch one posting by URL and
// analyze it against the user's resume. Re-analyzing a URL the user already
// has replaces that row.
func (h *JobHandler) AnalyzeJob(c *gin.Context) {
	var req dtos.AnalyzeJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	content := h.Content.FetchJobContentWithRetry(ctx, req.JobURL, 3)

	validation := h.Validator.ExtractJobContent(ctx, content)
	if validation.PostingType != services.PostingIndividual {
		reason := "URL does not contain a job posting"
		if validation.PostingType == services.PostingListing {
			reason = "URL points to a job board listing page, not a single posting"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": reason})
		return
	}

	analysis := h.Analyzer.AnalyzeJobFit(ctx, validation.Content, req.ResumeText, req.Preferences)

	job := models.ProcessedJob{
		UserID:            req.UserID,
		Title:             req.Title,
		Company:           req.Company,
		URL:               req.JobURL,
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
	if job.Title == "" {
		job.Title = analysis.Summary.Role
	}
	if job.Company == "" {
		job.Company = analysis.Summary.Company
	}

	existing, err := h.Jobs.FindByURL(req.UserID, req.JobURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up job: " + err.Error()})
		return
	}
	if existing != nil {
		job.ID = existing.ID
		job.CreatedAt = existing.CreatedAt
		job.Status = existing.Status
		job.StatusUpdatedAt = existing.StatusUpdatedAt
		if err := h.Jobs.ReplaceJob(&job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save analysis: " + err.Error()})
			return
		}
	} else if err := h.Jobs.SaveAnalyzedJob(&job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save analysis: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": job})
}

// HealthCheck is the GET /health endpoint.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
