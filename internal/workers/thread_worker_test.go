package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justsurfingit/jobseekr/internal/events"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const extractionJSON = `{"jobTitle": "Go Engineer", "company": "Acme", "isValidJobPosting": true, "confidence": 4}`

func newTestThreadWorker(t *testing.T, db *gorm.DB, model *scriptedModel) *ThreadWorker {
	t.Helper()
	extractor := services.NewExtractorService(services.NewLLMServiceWithModel(model))
	w := NewThreadWorker(db, extractor, events.NewHub())
	w.errorRetryDelay = 0
	w.rateLimitDelay = 45 * time.Second
	return w
}

func seedThread(t *testing.T, db *gorm.DB, threadID string, commentTexts ...string) *models.Thread {
	t.Helper()
	thread := &models.Thread{
		ThreadID:             threadID,
		Title:                "Ask HN: Who is hiring?",
		ProcessingStatus:     models.ThreadProcessing,
		TotalComments:        len(commentTexts),
		MaxRequestsPerMinute: models.DefaultMaxRequestsPerMinute,
	}
	require.NoError(t, db.Create(thread).Error)

	for i, text := range commentTexts {
		require.NoError(t, db.Create(&models.Comment{
			CommentID:        threadID + "-c" + string(rune('a'+i)),
			ThreadID:         threadID,
			Text:             text,
			Time:             int64(1000 + i), // later comments are newer
			ProcessingStatus: models.CommentUnprocessed,
			ProcessingErrors: "[]",
		}).Error)
	}
	return thread
}

func loadThread(t *testing.T, db *gorm.DB, threadID string) models.Thread {
	t.Helper()
	var thread models.Thread
	require.NoError(t, db.Where("thread_id = ?", threadID).First(&thread).Error)
	return thread
}

func TestStepExtractsNewestCommentFirst(t *testing.T) {
	db := newTestDB(t)
	w := newTestThreadWorker(t, db, &scriptedModel{replies: []scriptedReply{{content: extractionJSON}}})
	seedThread(t, db, "100", "older comment", "newer comment")

	delay, done := w.Step(context.Background(), "100")
	assert.False(t, done)
	assert.Zero(t, delay)

	var newest models.Comment
	require.NoError(t, db.Where("text = ?", "newer comment").First(&newest).Error)
	assert.Equal(t, models.CommentCompleted, newest.ProcessingStatus)
	assert.Contains(t, newest.JobData, "Go Engineer")

	var oldest models.Comment
	require.NoError(t, db.Where("text = ?", "older comment").First(&oldest).Error)
	assert.Equal(t, models.CommentUnprocessed, oldest.ProcessingStatus)

	thread := loadThread(t, db, "100")
	assert.Equal(t, 1, thread.ProcessedComments)
	assert.Equal(t, 1, thread.RequestsInCurrentMinute)
	assert.NotNil(t, thread.LastProcessedAt)
}

func TestStepCompletesThreadWhenNothingLeft(t *testing.T) {
	db := newTestDB(t)
	w := newTestThreadWorker(t, db, &scriptedModel{replies: []scriptedReply{{content: extractionJSON}}})
	seedThread(t, db, "100", "only comment")

	hub := w.hub
	ch, cancel := hub.Subscribe(ThreadTopic("100"))
	defer cancel()

	_, done := w.Step(context.Background(), "100")
	require.False(t, done)
	_, done = w.Step(context.Background(), "100")
	assert.True(t, done)

	thread := loadThread(t, db, "100")
	assert.Equal(t, models.ThreadCompleted, thread.ProcessingStatus)
	assert.Equal(t, 1, thread.ProcessedComments)

	// progress then completed
	ev := <-ch
	assert.Equal(t, "progress", ev.Type)
	ev = <-ch
	assert.Equal(t, "completed", ev.Type)
}

func TestStepRetriesFailuresThenGivesUp(t *testing.T) {
	db := newTestDB(t)
	w := newTestThreadWorker(t, db, &scriptedModel{replies: []scriptedReply{{err: errors.New("model exploded")}}})
	seedThread(t, db, "100", "the comment")

	for attempt := 1; attempt <= models.MaxProcessingAttempts; attempt++ {
		_, done := w.Step(context.Background(), "100")
		assert.False(t, done)

		var comment models.Comment
		require.NoError(t, db.Where("thread_id = ?", "100").First(&comment).Error)
		assert.Equal(t, attempt, comment.ProcessingAttempts)
		if attempt < models.MaxProcessingAttempts {
			assert.Equal(t, models.CommentUnprocessed, comment.ProcessingStatus)
		} else {
			assert.Equal(t, models.CommentFailed, comment.ProcessingStatus)
			assert.Contains(t, comment.ProcessingErrors, "model exploded")
		}
	}

	// The failed comment still counts toward progress, so the thread can
	// finish.
	thread := loadThread(t, db, "100")
	assert.Equal(t, 1, thread.ProcessedComments)

	_, done := w.Step(context.Background(), "100")
	assert.True(t, done)
	assert.Equal(t, models.ThreadCompleted, loadThread(t, db, "100").ProcessingStatus)
}

func TestStepRateLimitDoesNotBurnAnAttempt(t *testing.T) {
	db := newTestDB(t)
	w := newTestThreadWorker(t, db, &scriptedModel{replies: []scriptedReply{
		{err: errors.New("429 rate limit exceeded")},
		{content: extractionJSON},
	}})
	seedThread(t, db, "100", "the comment")

	delay, done := w.Step(context.Background(), "100")
	assert.False(t, done)
	assert.Equal(t, 45*time.Second, delay, "cooldown, not the error retry delay")

	var comment models.Comment
	require.NoError(t, db.Where("thread_id = ?", "100").First(&comment).Error)
	assert.Zero(t, comment.ProcessingAttempts)
	assert.Equal(t, models.CommentUnprocessed, comment.ProcessingStatus)

	// Next step succeeds normally.
	_, done = w.Step(context.Background(), "100")
	assert.False(t, done)
	require.NoError(t, db.Where("thread_id = ?", "100").First(&comment).Error)
	assert.Equal(t, models.CommentCompleted, comment.ProcessingStatus)
}

func TestStepHonorsRateWindow(t *testing.T) {
	db := newTestDB(t)
	model := &scriptedModel{replies: []scriptedReply{{content: extractionJSON}}}
	w := newTestThreadWorker(t, db, model)

	base := time.Date(2025, 12, 1, 10, 0, 30, 0, time.UTC)
	w.now = func() time.Time { return base }

	thread := seedThread(t, db, "100", "a", "b", "c")
	require.NoError(t, db.Model(thread).Updates(map[string]any{
		"max_requests_per_minute":    2,
		"current_minute_start":       base.Truncate(time.Minute).UnixMilli(),
		"requests_in_current_minute": 2,
	}).Error)

	delay, done := w.Step(context.Background(), "100")
	assert.False(t, done)
	assert.Equal(t, 30*time.Second, delay, "wait for the next epoch minute")
	assert.Zero(t, model.callCount(), "budget exhausted, no LLM call")

	// The clock crossing the minute boundary resets the window.
	w.now = func() time.Time { return base.Add(31 * time.Second) }
	_, done = w.Step(context.Background(), "100")
	assert.False(t, done)
	assert.Equal(t, 1, model.callCount())

	fresh := loadThread(t, db, "100")
	assert.Equal(t, 1, fresh.RequestsInCurrentMinute)
}

func TestStepBacksOffWhenBookkeepingWriteFails(t *testing.T) {
	db := newTestDB(t)
	model := &scriptedModel{replies: []scriptedReply{{content: extractionJSON}}}
	w := newTestThreadWorker(t, db, model)
	w.errorRetryDelay = 5 * time.Second

	base := time.Date(2025, 12, 1, 10, 0, 30, 0, time.UTC)
	w.now = func() time.Time { return base }

	thread := seedThread(t, db, "100", "the comment")
	require.NoError(t, db.Model(thread).
		Update("current_minute_start", base.Truncate(time.Minute).UnixMilli()).Error)

	// Writes to the threads table start failing, as a dropped connection
	// would make them.
	failWrites := true
	require.NoError(t, db.Callback().Update().Before("gorm:update").
		Register("test:fail_thread_writes", func(tx *gorm.DB) {
			if failWrites && tx.Statement.Table == "threads" {
				_ = tx.AddError(errors.New("database is locked"))
			}
		}))

	delay, done := w.Step(context.Background(), "100")
	assert.False(t, done)
	assert.Equal(t, 5*time.Second, delay)
	assert.Zero(t, model.callCount(), "no LLM call without a recorded budget slot")

	var comment models.Comment
	require.NoError(t, db.Where("thread_id = ?", "100").First(&comment).Error)
	assert.Equal(t, models.CommentUnprocessed, comment.ProcessingStatus, "comment stays claimable")

	// Once writes recover, the same comment goes through normally.
	failWrites = false
	_, done = w.Step(context.Background(), "100")
	assert.False(t, done)
	require.NoError(t, db.Where("thread_id = ?", "100").First(&comment).Error)
	assert.Equal(t, models.CommentCompleted, comment.ProcessingStatus)
	assert.Equal(t, 1, loadThread(t, db, "100").RequestsInCurrentMinute)
}

func TestStepStopsWhenPaused(t *testing.T) {
	db := newTestDB(t)
	model := &scriptedModel{replies: []scriptedReply{{content: extractionJSON}}}
	w := newTestThreadWorker(t, db, model)

	thread := seedThread(t, db, "100", "a")
	require.NoError(t, db.Model(thread).Update("processing_status", models.ThreadPaused).Error)

	_, done := w.Step(context.Background(), "100")
	assert.True(t, done)
	assert.Zero(t, model.callCount())
}

func TestStepStopsForUnknownThread(t *testing.T) {
	w := newTestThreadWorker(t, newTestDB(t), &scriptedModel{})

	_, done := w.Step(context.Background(), "404")
	assert.True(t, done)
}

func TestResumeInterruptedReleasesStuckComments(t *testing.T) {
	db := newTestDB(t)
	w := newTestThreadWorker(t, db, &scriptedModel{replies: []scriptedReply{{content: extractionJSON}}})

	thread := seedThread(t, db, "100", "a")
	require.NoError(t, db.Model(&models.Comment{}).Where("thread_id = ?", "100").
		Update("processing_status", models.CommentProcessing).Error)
	// Leave the thread in processing, as a crash would.
	_ = thread

	require.NoError(t, w.ResumeInterrupted())

	var comment models.Comment
	require.NoError(t, db.Where("thread_id = ?", "100").First(&comment).Error)
	assert.Equal(t, models.CommentUnprocessed, comment.ProcessingStatus)

	// The loop was restarted; give it a moment to work through the comment.
	require.Eventually(t, func() bool {
		return loadThread(t, db, "100").ProcessingStatus == models.ThreadCompleted
	}, 2*time.Second, 10*time.Millisecond)
}
