// Package workers holds the long-running processing loops. Each loop is a
// plain goroutine that re-reads its durable state from the database on every
// step, so a pause flag flipped by a handler or a process restart is always
// honored at the next step boundary.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/justsurfingit/jobseekr/internal/events"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/justsurfingit/jobseekr/internal/utils"
	"gorm.io/gorm"
)

const (
	defaultErrorRetryDelay = 1 * time.Second
	defaultRateLimitDelay  = 60 * time.Second
)

// ThreadWorker drives comment extraction for threads in the processing
// state. One goroutine per thread; the registry prevents doubles.
type ThreadWorker struct {
	db        *gorm.DB
	extractor *services.ExtractorService
	hub       *events.Hub

	mu      sync.Mutex
	running map[string]context.CancelFunc

	// Overridable in tests.
	now             func() time.Time
	errorRetryDelay time.Duration
	rateLimitDelay  time.Duration
}

func NewThreadWorker(db *gorm.DB, extractor *services.ExtractorService, hub *events.Hub) *ThreadWorker {
	return &ThreadWorker{
		db:              db,
		extractor:       extractor,
		hub:             hub,
		running:         make(map[string]context.CancelFunc),
		now:             time.Now,
		errorRetryDelay: defaultErrorRetryDelay,
		rateLimitDelay:  defaultRateLimitDelay,
	}
}

// Start launches the processing loop for a thread. A no-op if one is already
// running.
func (w *ThreadWorker) Start(threadID string) {
	w.mu.Lock()
	if _, ok := w.running[threadID]; ok {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running[threadID] = cancel
	w.mu.Unlock()

	go w.run(ctx, threadID)
}

// Stop cancels a running loop. The database status is the real off switch;
// this just skips the remaining sleep.
func (w *ThreadWorker) Stop(threadID string) {
	w.mu.Lock()
	cancel, ok := w.running[threadID]
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

func (w *ThreadWorker) IsRunning(threadID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.running[threadID]
	return ok
}

func (w *ThreadWorker) run(ctx context.Context, threadID string) {
	defer func() {
		w.mu.Lock()
		delete(w.running, threadID)
		w.mu.Unlock()
	}()

	log.Printf("🚀 Thread worker started for %s", threadID)
	for {
		delay, done := w.Step(ctx, threadID)
		if done {
			log.Printf("Thread worker for %s finished", threadID)
			return
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Step performs at most one extraction and reports how long to wait before
// the next one. done means the loop should exit: the thread completed, was
// paused, or disappeared.
func (w *ThreadWorker) Step(ctx context.Context, threadID string) (time.Duration, bool) {
	var thread models.Thread
	if err := w.db.Where("thread_id = ?", threadID).First(&thread).Error; err != nil {
		log.Printf("⚠️ Thread worker: loading %s: %v", threadID, err)
		return 0, true
	}
	if thread.ProcessingStatus != models.ThreadProcessing {
		return 0, true
	}

	// Fixed-window rate limiting aligned to epoch minutes, persisted on the
	// thread row so restarts keep counting correctly.
	now := w.now()
	minuteStart := now.Truncate(time.Minute).UnixMilli()
	if thread.CurrentMinuteStart != minuteStart {
		thread.RequestsInCurrentMinute = 0
		thread.CurrentMinuteStart = minuteStart
		if err := w.db.Model(&thread).Updates(map[string]any{
			"requests_in_current_minute": 0,
			"current_minute_start":       minuteStart,
		}).Error; err != nil {
			return w.errorRetryDelay, false
		}
	}
	maxPerMinute := thread.MaxRequestsPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = models.DefaultMaxRequestsPerMinute
	}
	if thread.RequestsInCurrentMinute >= maxPerMinute {
		next := time.UnixMilli(minuteStart).Add(time.Minute)
		return next.Sub(now), false
	}

	var comment models.Comment
	err := w.db.Where("thread_id = ? AND processing_status = ?", threadID, models.CommentUnprocessed).
		Order("time DESC").
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, w.complete(&thread)
	}
	if err != nil {
		log.Printf("⚠️ Thread worker: selecting comment for %s: %v", threadID, err)
		return w.errorRetryDelay, false
	}

	// Claim the budget slot before claiming the comment, so a failed write
	// here leaves nothing stranded mid-processing.
	if err := w.db.Model(&thread).Update("requests_in_current_minute", gorm.Expr("requests_in_current_minute + 1")).Error; err != nil {
		return w.errorRetryDelay, false
	}
	if err := w.db.Model(&comment).Update("processing_status", models.CommentProcessing).Error; err != nil {
		return w.errorRetryDelay, false
	}

	jobData, extractErr := w.extractor.ExtractJobFromComment(ctx, comment.Text)
	attemptAt := w.now().UnixMilli()

	var rateLimited *services.RateLimitError
	switch {
	case extractErr == nil:
		encoded, _ := json.Marshal(jobData)
		if err := w.db.Model(&comment).Updates(map[string]any{
			"processing_status": models.CommentCompleted,
			"job_data":          string(encoded),
			"last_attempt_at":   attemptAt,
		}).Error; err != nil {
			w.releaseComment(&comment)
			return w.errorRetryDelay, false
		}
		w.advanceProgress(&thread)
		return 0, false

	case errors.As(extractErr, &rateLimited):
		// Not the comment's fault; put it back without burning an attempt
		// and cool off.
		if err := w.db.Model(&comment).Updates(map[string]any{
			"processing_status": models.CommentUnprocessed,
			"last_attempt_at":   attemptAt,
		}).Error; err != nil {
			w.releaseComment(&comment)
			return w.errorRetryDelay, false
		}
		log.Printf("⚠️ Rate limited while processing thread %s, backing off", threadID)
		return w.rateLimitDelay, false

	default:
		attempts := comment.ProcessingAttempts + 1
		errList := utils.DecodeStringSlice(comment.ProcessingErrors)
		errList = append(errList, extractErr.Error())
		msgs := utils.EncodeStringSlice(errList)

		updates := map[string]any{
			"processing_attempts": attempts,
			"processing_errors":   msgs,
			"last_attempt_at":     attemptAt,
		}
		if attempts >= models.MaxProcessingAttempts {
			// Give up on this comment for good. It still counts toward
			// progress so the thread can finish.
			updates["processing_status"] = models.CommentFailed
			if err := w.db.Model(&comment).Updates(updates).Error; err != nil {
				w.releaseComment(&comment)
				return w.errorRetryDelay, false
			}
			log.Printf("⚠️ Comment %s failed after %d attempts: %v", comment.CommentID, attempts, extractErr)
			w.advanceProgress(&thread)
		} else {
			updates["processing_status"] = models.CommentUnprocessed
			if err := w.db.Model(&comment).Updates(updates).Error; err != nil {
				w.releaseComment(&comment)
				return w.errorRetryDelay, false
			}
		}
		return w.errorRetryDelay, false
	}
}

// releaseComment best-effort puts a claimed comment back in the queue after a
// bookkeeping write failed, so the next step can pick it up again.
func (w *ThreadWorker) releaseComment(comment *models.Comment) {
	if err := w.db.Model(comment).Update("processing_status", models.CommentUnprocessed).Error; err != nil {
		log.Printf("⚠️ Could not release comment %s: %v", comment.CommentID, err)
	}
}

// advanceProgress bumps the thread's processed counter and notifies
// subscribers.
func (w *ThreadWorker) advanceProgress(thread *models.Thread) {
	nowMs := w.now().UnixMilli()
	w.db.Model(thread).Updates(map[string]any{
		"processed_comments": gorm.Expr("processed_comments + 1"),
		"last_processed_at":  nowMs,
	})

	var fresh models.Thread
	if err := w.db.Where("thread_id = ?", thread.ThreadID).First(&fresh).Error; err == nil {
		w.hub.Publish(ThreadTopic(thread.ThreadID), events.Event{
			Type: "progress",
			Data: map[string]any{
				"thread_id":          fresh.ThreadID,
				"processed_comments": fresh.ProcessedComments,
				"total_comments":     fresh.TotalComments,
			},
		})
	}
}

func (w *ThreadWorker) complete(thread *models.Thread) bool {
	if err := w.db.Model(thread).Update("processing_status", models.ThreadCompleted).Error; err != nil {
		log.Printf("⚠️ Thread worker: completing %s: %v", thread.ThreadID, err)
		return true
	}
	log.Printf("✅ Thread %s processing completed (%d/%d comments)",
		thread.ThreadID, thread.ProcessedComments, thread.TotalComments)
	w.hub.Publish(ThreadTopic(thread.ThreadID), events.Event{
		Type: "completed",
		Data: map[string]any{"thread_id": thread.ThreadID},
	})
	return true
}

// ResumeInterrupted restarts loops for threads a previous process left in
// the processing state, and releases comments stuck mid-extraction.
func (w *ThreadWorker) ResumeInterrupted() error {
	if err := w.db.Model(&models.Comment{}).
		Where("processing_status = ?", models.CommentProcessing).
		Update("processing_status", models.CommentUnprocessed).Error; err != nil {
		return err
	}

	var threadIDs []string
	if err := w.db.Model(&models.Thread{}).
		Where("processing_status = ?", models.ThreadProcessing).
		Pluck("thread_id", &threadIDs).Error; err != nil {
		return err
	}
	for _, id := range threadIDs {
		log.Printf("Resuming interrupted processing for thread %s", id)
		w.Start(id)
	}
	return nil
}

// ThreadTopic names the hub topic carrying a thread's progress events.
func ThreadTopic(threadID string) string {
	return "thread:" + threadID
}
