package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/justsurfingit/jobseekr/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a pause/resume/start does not apply
// to the thread's current processing status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ThreadService owns the Thread/Comment rows: fetching fresh data from
// HackerNews, upserting it, and the processing status transitions. The actual
// per-comment extraction loop lives in the workers package.
type ThreadService struct {
	db *gorm.DB
	hn *HackerNewsService
}

func NewThreadService(db *gorm.DB, hn *HackerNewsService) *ThreadService {
	return &ThreadService{db: db, hn: hn}
}

// RefreshThread fetches the thread and its top-level comments from
// HackerNews and upserts them. Comment rows already extracted are left alone
// unless their text changed upstream or the last attempt failed; either way
// the row is reset for reprocessing. The thread sits in the fetching state
// for the duration; an idle thread that ends up with unprocessed comments
// moves straight to processing so extraction starts without a separate call.
func (t *ThreadService) RefreshThread(ctx context.Context, threadID string) (*models.Thread, error) {
	id, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad thread id %q: %w", threadID, err)
	}

	var thread models.Thread
	err = t.db.Where("thread_id = ?", threadID).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		thread = models.Thread{
			ThreadID:             threadID,
			ProcessingStatus:     models.ThreadIdle,
			MaxRequestsPerMinute: models.DefaultMaxRequestsPerMinute,
		}
	} else if err != nil {
		return nil, err
	}
	prev := thread.ProcessingStatus
	if prev == models.ThreadFetching {
		// A crash mid-fetch left this stuck; treat it as idle.
		prev = models.ThreadIdle
	}

	thread.ProcessingStatus = models.ThreadFetching
	if err := t.db.Save(&thread).Error; err != nil {
		return nil, err
	}

	hnThread, hnComments, err := t.hn.FetchThread(ctx, id)
	if err != nil {
		t.db.Model(&thread).Update("processing_status", models.ThreadFailed)
		return nil, err
	}

	thread.Title = hnThread.Title
	thread.Author = hnThread.Author
	thread.Time = hnThread.Time
	thread.URL = hnThread.URL
	thread.TotalComments = len(hnComments)
	thread.LastFetched = time.Now().UnixMilli()
	thread.ProcessingStatus = prev
	if err := t.db.Save(&thread).Error; err != nil {
		return nil, err
	}

	inserted, reset := 0, 0
	for _, hc := range hnComments {
		commentID := strconv.FormatInt(hc.ID, 10)

		var existing models.Comment
		err := t.db.Where("comment_id = ?", commentID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := models.Comment{
				CommentID:        commentID,
				ThreadID:         threadID,
				Author:           hc.Author,
				Text:             hc.Text,
				Time:             hc.Time,
				ProcessingStatus: models.CommentUnprocessed,
				ProcessingErrors: "[]",
			}
			if err := t.db.Create(&row).Error; err != nil {
				return nil, err
			}
			inserted++
			continue
		}
		if err != nil {
			return nil, err
		}

		if existing.Text == hc.Text && existing.ProcessingStatus != models.CommentFailed {
			continue
		}
		updates := map[string]any{
			"text":                hc.Text,
			"author":              hc.Author,
			"time":                hc.Time,
			"processing_status":   models.CommentUnprocessed,
			"processing_attempts": 0,
			"processing_errors":   "[]",
			"job_data":            "",
		}
		if err := t.db.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		reset++
	}

	// An idle thread with work waiting starts processing on its own; the
	// caller only needs to launch the worker loop.
	if prev == models.ThreadIdle {
		var unprocessed int64
		if err := t.db.Model(&models.Comment{}).
			Where("thread_id = ? AND processing_status = ?", threadID, models.CommentUnprocessed).
			Count(&unprocessed).Error; err != nil {
			return nil, err
		}
		if unprocessed > 0 {
			if err := t.db.Model(&thread).Updates(map[string]any{
				"processing_status":          models.ThreadProcessing,
				"requests_in_current_minute": 0,
				"current_minute_start":       currentMinuteStart(time.Now()),
			}).Error; err != nil {
				return nil, err
			}
			log.Printf("🚀 Auto-starting processing for thread %s (%d unprocessed comments)", threadID, unprocessed)
		}
	}

	log.Printf("✅ Refreshed thread %s: %d comments (%d new, %d reset)", threadID, len(hnComments), inserted, reset)
	return t.GetThread(threadID)
}

// ThreadWithComments is the read model: the thread plus its comments newest
// first. Comments are never filtered on extracted validity here; that flag is
// unreliable for older rows.
type ThreadWithComments struct {
	Thread   models.Thread    `json:"thread"`
	Comments []models.Comment `json:"comments"`
}

func (t *ThreadService) GetThreadWithComments(threadID string) (*ThreadWithComments, error) {
	var thread models.Thread
	if err := t.db.Where("thread_id = ?", threadID).First(&thread).Error; err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := t.db.Where("thread_id = ?", threadID).
		Order("time DESC").
		Find(&comments).Error; err != nil {
		return nil, err
	}

	return &ThreadWithComments{Thread: thread, Comments: comments}, nil
}

func (t *ThreadService) GetThread(threadID string) (*models.Thread, error) {
	var thread models.Thread
	if err := t.db.Where("thread_id = ?", threadID).First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

// StartProcessing moves an idle, failed or completed thread into the
// processing state with a fresh rate window. maxPerMinute overrides the
// thread's request budget when positive. Returns ErrInvalidTransition if the
// thread is already fetching or processing.
func (t *ThreadService) StartProcessing(threadID string, maxPerMinute int) (*models.Thread, error) {
	thread, err := t.GetThread(threadID)
	if err != nil {
		return nil, err
	}

	switch thread.ProcessingStatus {
	case models.ThreadFetching, models.ThreadProcessing:
		return nil, fmt.Errorf("%w: thread %s is %s", ErrInvalidTransition, threadID, thread.ProcessingStatus)
	}

	updates := map[string]any{
		"processing_status":          models.ThreadProcessing,
		"requests_in_current_minute": 0,
		"current_minute_start":       currentMinuteStart(time.Now()),
	}
	if maxPerMinute > 0 {
		updates["max_requests_per_minute"] = maxPerMinute
	} else if thread.MaxRequestsPerMinute == 0 {
		updates["max_requests_per_minute"] = models.DefaultMaxRequestsPerMinute
	}
	if err := t.db.Model(thread).Updates(updates).Error; err != nil {
		return nil, err
	}
	return t.GetThread(threadID)
}

// PauseProcessing stops the worker at its next step boundary.
func (t *ThreadService) PauseProcessing(threadID string) (*models.Thread, error) {
	thread, err := t.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if thread.ProcessingStatus != models.ThreadProcessing {
		return nil, fmt.Errorf("%w: thread %s is %s, not processing", ErrInvalidTransition, threadID, thread.ProcessingStatus)
	}
	if err := t.db.Model(thread).Update("processing_status", models.ThreadPaused).Error; err != nil {
		return nil, err
	}
	return t.GetThread(threadID)
}

// ResumeProcessing restarts a paused thread. The rate window is reset so a
// long pause does not immediately burn a stale budget.
func (t *ThreadService) ResumeProcessing(threadID string) (*models.Thread, error) {
	thread, err := t.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if thread.ProcessingStatus != models.ThreadPaused {
		return nil, fmt.Errorf("%w: thread %s is %s, not paused", ErrInvalidTransition, threadID, thread.ProcessingStatus)
	}
	updates := map[string]any{
		"processing_status":          models.ThreadProcessing,
		"requests_in_current_minute": 0,
		"current_minute_start":       currentMinuteStart(time.Now()),
	}
	if err := t.db.Model(thread).Updates(updates).Error; err != nil {
		return nil, err
	}
	return t.GetThread(threadID)
}

// currentMinuteStart aligns a timestamp down to its epoch minute, in millis.
func currentMinuteStart(now time.Time) int64 {
	return now.Truncate(time.Minute).UnixMilli()
}
