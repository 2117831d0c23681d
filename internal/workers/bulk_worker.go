package workers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/justsurfingit/jobseekr/internal/events"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"gorm.io/gorm"
)

// BulkWorker analyzes every extracted comment of a thread against one user's
// resume. One loop per user; the session row keyed by user id is the durable
// cursor, so starting a new thread simply repurposes it.
type BulkWorker struct {
	db       *gorm.DB
	analyzer *services.AnalysisService
	store    *services.AnalysisStore
	hub      *events.Hub

	mu      sync.Mutex
	running map[string]context.CancelFunc

	now             func() time.Time
	errorRetryDelay time.Duration
}

func NewBulkWorker(db *gorm.DB, analyzer *services.AnalysisService, store *services.AnalysisStore, hub *events.Hub) *BulkWorker {
	return &BulkWorker{
		db:              db,
		analyzer:        analyzer,
		store:           store,
		hub:             hub,
		running:         make(map[string]context.CancelFunc),
		now:             time.Now,
		errorRetryDelay: defaultErrorRetryDelay,
	}
}

// StartSession creates or repurposes the user's bulk session for a thread
// and launches the loop. A session already processing the same thread is
// left alone.
func (w *BulkWorker) StartSession(userID, threadID, resumeText, preferences string) (*models.BulkSession, error) {
	now := w.now()

	var session models.BulkSession
	err := w.db.Where("user_id = ?", userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = models.BulkSession{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	if session.ID != 0 && session.Status == models.BulkProcessing && session.ThreadID == threadID {
		w.start(userID)
		return &session, nil
	}

	session.ThreadID = threadID
	session.Status = models.BulkProcessing
	session.ResumeText = resumeText
	session.Preferences = preferences
	session.StartedAt = now.UnixMilli()
	session.CompletedAt = nil
	session.RequestsInCurrentMinute = 0
	session.CurrentMinuteStart = now.Truncate(time.Minute).UnixMilli()
	if session.MaxRequestsPerMinute == 0 {
		session.MaxRequestsPerMinute = models.DefaultMaxRequestsPerMinute
	}
	if err := w.db.Save(&session).Error; err != nil {
		return nil, err
	}

	w.start(userID)
	return &session, nil
}

// Pause flips the session off; the loop notices at its next step.
func (w *BulkWorker) Pause(userID string) (*models.BulkSession, error) {
	var session models.BulkSession
	if err := w.db.Where("user_id = ?", userID).First(&session).Error; err != nil {
		return nil, err
	}
	if session.Status != models.BulkProcessing {
		return nil, errors.New("no bulk analysis in progress")
	}
	if err := w.db.Model(&session).Update("status", models.BulkPaused).Error; err != nil {
		return nil, err
	}
	session.Status = models.BulkPaused
	return &session, nil
}

// BulkProgress is the status poll payload for a session.
type BulkProgress struct {
	Session  *models.BulkSession `json:"session,omitempty"`
	Total    int64               `json:"total"`
	Analyzed int64               `json:"analyzed"`
}

// Progress reports how far the user's session has gotten through its
// thread's extracted comments.
func (w *BulkWorker) Progress(userID string) (*BulkProgress, error) {
	var session models.BulkSession
	err := w.db.Where("user_id = ?", userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BulkProgress{}, nil
	}
	if err != nil {
		return nil, err
	}

	var total, analyzed int64
	if err := w.db.Model(&models.Comment{}).
		Where("thread_id = ? AND processing_status = ?", session.ThreadID, models.CommentCompleted).
		Count(&total).Error; err != nil {
		return nil, err
	}
	if err := w.db.Model(&models.Analysis{}).
		Where("user_id = ? AND thread_id = ?", userID, session.ThreadID).
		Count(&analyzed).Error; err != nil {
		return nil, err
	}
	return &BulkProgress{Session: &session, Total: total, Analyzed: analyzed}, nil
}

func (w *BulkWorker) start(userID string) {
	w.mu.Lock()
	if _, ok := w.running[userID]; ok {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running[userID] = cancel
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.running, userID)
			w.mu.Unlock()
		}()
		log.Printf("🚀 Bulk analysis started for user %s", userID)
		for {
			delay, done := w.Step(ctx, userID)
			if done {
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
	}()
}

// Step analyzes at most one comment. The analyzer never fails outright: a
// broken LLM call yields a degraded row, which still advances the cursor.
func (w *BulkWorker) Step(ctx context.Context, userID string) (time.Duration, bool) {
	var session models.BulkSession
	if err := w.db.Where("user_id = ?", userID).First(&session).Error; err != nil {
		log.Printf("⚠️ Bulk worker: loading session for %s: %v", userID, err)
		return 0, true
	}
	if session.Status != models.BulkProcessing {
		return 0, true
	}

	now := w.now()
	minuteStart := now.Truncate(time.Minute).UnixMilli()
	if session.CurrentMinuteStart != minuteStart {
		session.RequestsInCurrentMinute = 0
		if err := w.db.Model(&session).Updates(map[string]any{
			"requests_in_current_minute": 0,
			"current_minute_start":       minuteStart,
		}).Error; err != nil {
			return w.errorRetryDelay, false
		}
	}
	maxPerMinute := session.MaxRequestsPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = models.DefaultMaxRequestsPerMinute
	}
	if session.RequestsInCurrentMinute >= maxPerMinute {
		next := time.UnixMilli(minuteStart).Add(time.Minute)
		return next.Sub(now), false
	}

	// Next candidate: newest extracted comment this user has no verdict on.
	var comment models.Comment
	err := w.db.Where("thread_id = ? AND processing_status = ?", session.ThreadID, models.CommentCompleted).
		Where("id NOT IN (?)", w.db.Model(&models.Analysis{}).
			Select("comment_id").
			Where("user_id = ?", userID)).
		Order("time DESC").
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, w.complete(&session)
	}
	if err != nil {
		log.Printf("⚠️ Bulk worker: selecting comment for %s: %v", userID, err)
		return w.errorRetryDelay, false
	}

	w.db.Model(&session).Update("requests_in_current_minute", gorm.Expr("requests_in_current_minute + 1"))

	result := w.analyzer.AnalyzeCommentJobFit(ctx, comment.Text, session.ResumeText, session.Preferences)
	if _, err := w.store.Upsert(userID, &comment, result); err != nil {
		log.Printf("⚠️ Bulk worker: saving analysis for comment %s: %v", comment.CommentID, err)
		return w.errorRetryDelay, false
	}

	w.db.Model(&session).Update("last_processed_at", w.now().UnixMilli())
	w.hub.Publish(BulkTopic(userID), events.Event{
		Type: "analysis",
		Data: map[string]any{
			"comment_id":     comment.CommentID,
			"recommendation": result.Recommendation,
			"degraded":       result.Degraded,
		},
	})
	return 0, false
}

func (w *BulkWorker) complete(session *models.BulkSession) bool {
	nowMs := w.now().UnixMilli()
	if err := w.db.Model(session).Updates(map[string]any{
		"status":       models.BulkCompleted,
		"completed_at": nowMs,
	}).Error; err != nil {
		log.Printf("⚠️ Bulk worker: completing session for %s: %v", session.UserID, err)
		return true
	}
	log.Printf("✅ Bulk analysis completed for user %s on thread %s", session.UserID, session.ThreadID)
	w.hub.Publish(BulkTopic(session.UserID), events.Event{
		Type: "completed",
		Data: map[string]any{"thread_id": session.ThreadID},
	})
	return true
}

// ResumeInterrupted restarts loops for sessions a previous process left
// mid-run.
func (w *BulkWorker) ResumeInterrupted() error {
	var userIDs []string
	if err := w.db.Model(&models.BulkSession{}).
		Where("status = ?", models.BulkProcessing).
		Pluck("user_id", &userIDs).Error; err != nil {
		return err
	}
	for _, id := range userIDs {
		log.Printf("Resuming interrupted bulk analysis for user %s", id)
		w.start(id)
	}
	return nil
}

// BulkTopic names the hub topic carrying a user's bulk analysis events.
func BulkTopic(userID string) string {
	return "bulk:" + userID
}
