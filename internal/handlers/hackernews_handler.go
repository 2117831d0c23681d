package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/jobseekr/internal/dtos"
	"github.com/justsurfingit/jobseekr/internal/events"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/justsurfingit/jobseekr/internal/workers"
	"gorm.io/gorm"
)

// HackerNewsHandler serves the thread ingestion and analysis endpoints.
type HackerNewsHandler struct {
	Threads    *services.ThreadService
	HN         *services.HackerNewsService
	Analyzer   *services.AnalysisService
	Analyses   *services.AnalysisStore
	Worker     *workers.ThreadWorker
	BulkWorker *workers.BulkWorker
	Hub        *events.Hub
}

func NewHackerNewsHandler(
	threads *services.ThreadService,
	hn *services.HackerNewsService,
	analyzer *services.AnalysisService,
	analyses *services.AnalysisStore,
	worker *workers.ThreadWorker,
	bulkWorker *workers.BulkWorker,
	hub *events.Hub,
) *HackerNewsHandler {
	return &HackerNewsHandler{
		Threads:    threads,
		HN:         hn,
		Analyzer:   analyzer,
		Analyses:   analyses,
		Worker:     worker,
		BulkWorker: bulkWorker,
		Hub:        hub,
	}
}

// GetThread is the GET /hackernews/threads/:threadId endpoint. It re-fetches
// from HackerNews on every call so the stored copy never goes stale, then
// serves from the database. A fetch that leaves the thread processing gets
// its worker loop launched here.
func (h *HackerNewsHandler) GetThread(c *gin.Context) {
	threadID := c.Param("threadId")

	thread, err := h.Threads.RefreshThread(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch thread: " + err.Error()})
		return
	}
	if thread.ProcessingStatus == models.ThreadProcessing {
		h.Worker.Start(threadID)
	}

	result, err := h.Threads.GetThreadWithComments(threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load thread: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// StartProcessing is the POST /hackernews/threads/:threadId/process endpoint.
func (h *HackerNewsHandler) StartProcessing(c *gin.Context) {
	threadID := c.Param("threadId")

	var req dtos.ProcessThreadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
			return
		}
	}

	thread, err := h.Threads.StartProcessing(threadID, req.MaxRequestsPerMinute)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidTransition):
			status = http.StatusConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.Worker.Start(threadID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": thread})
}

// PauseProcessing is the POST /hackernews/threads/:threadId/pause endpoint.
func (h *HackerNewsHandler) PauseProcessing(c *gin.Context) {
	threadID := c.Param("threadId")

	thread, err := h.Threads.PauseProcessing(threadID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidTransition):
			status = http.StatusConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.Worker.Stop(threadID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": thread})
}

// ResumeProcessing is the POST /hackernews/threads/:threadId/resume endpoint.
func (h *HackerNewsHandler) ResumeProcessing(c *gin.Context) {
	threadID := c.Param("threadId")

	thread, err := h.Threads.ResumeProcessing(threadID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidTransition):
			status = http.StatusConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.Worker.Start(threadID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": thread})
}

// Subscribe is the GET /hackernews/threads/:threadId/subscribe SSE endpoint.
// It pushes an initial snapshot, then relays worker progress events until the
// client disconnects.
func (h *HackerNewsHandler) Subscribe(c *gin.Context) {
	threadID := c.Param("threadId")

	thread, err := h.Threads.GetThread(threadID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Thread not found"})
		return
	}

	ch, cancel := h.Hub.Subscribe(workers.ThreadTopic(threadID))
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.SSEvent("snapshot", thread)
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev.Data)
			return true
		}
	})
}

// GetHiringThreads is the GET /hackernews/hiring-threads endpoint.
func (h *HackerNewsHandler) GetHiringThreads(c *gin.Context) {
	threads, err := h.HN.GetHiringThreads(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch hiring threads: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": threads})
}

// AnalyzeComment is the POST /hackernews/comments/:commentId/analyze
// endpoint. Analyzing a comment twice overwrites the earlier verdict.
func (h *HackerNewsHandler) AnalyzeComment(c *gin.Context) {
	commentID := c.Param("commentId")

	var req dtos.AnalyzeCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	comment, err := h.Analyses.GetComment(commentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	result := h.Analyzer.AnalyzeCommentJobFit(c.Request.Context(), comment.Text, req.ResumeText, req.Preferences)
	saved, err := h.Analyses.Upsert(req.UserID, comment, result)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save analysis: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": saved})
}

// ListAnalyses is the GET /hackernews/analyses endpoint.
func (h *HackerNewsHandler) ListAnalyses(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	rows, err := h.Analyses.List(userID, c.Query("thread_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analyses: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rows})
}

// StartBulkAnalysis is the POST /hackernews/bulk-analysis/start endpoint.
func (h *HackerNewsHandler) StartBulkAnalysis(c *gin.Context) {
	var req dtos.BulkAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	session, err := h.BulkWorker.StartSession(req.UserID, req.ThreadID, req.ResumeText, req.Preferences)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start bulk analysis: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// PauseBulkAnalysis is the POST /hackernews/bulk-analysis/pause endpoint.
func (h *HackerNewsHandler) PauseBulkAnalysis(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	session, err := h.BulkWorker.Pause(userID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// BulkAnalysisProgress is the GET /hackernews/bulk-analysis/progress
// endpoint.
func (h *HackerNewsHandler) BulkAnalysisProgress(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	progress, err := h.BulkWorker.Progress(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load progress: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": progress})
}
