package services

import (
	"errors"
	"log"
	"time"

	"github.com/justsurfingit/jobseekr/internal/models"
	"gorm.io/gorm"
)

// ErrSearchInProgress is returned when a user already has a live search
// session and tries to start another.
var ErrSearchInProgress = errors.New("a search is already in progress for this user")

const (
	// A pending/in_progress session older than this is considered abandoned,
	// not live.
	sessionActiveWindow = 2 * time.Hour
	// A paused session resumes its cursor within this window; past it the
	// search starts over from page one.
	sessionReuseWindow = 48 * time.Hour
)

// SessionService owns the SearchSession lifecycle: the one-live-search-per-
// user guard, pause/resume cursor reuse and stale-session cleanup.
type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

// AcquireSession returns the session a new search run should use. A live
// session blocks with ErrSearchInProgress. A recent paused session is resumed
// with its cursor intact; an old one is reset to page one. Otherwise a fresh
// session is created.
func (s *SessionService) AcquireSession(userID, jobTitle string, batchSize int) (*models.SearchSession, bool, error) {
	now := time.Now()

	// First search from a new user creates their row.
	if err := s.db.FirstOrCreate(&models.User{}, models.User{ID: userID}).Error; err != nil {
		return nil, false, err
	}

	var live models.SearchSession
	err := s.db.Where("user_id = ? AND status IN ? AND updated_at > ?",
		userID,
		[]string{models.SearchPending, models.SearchInProgress},
		now.Add(-sessionActiveWindow)).
		First(&live).Error
	if err == nil {
		return nil, false, ErrSearchInProgress
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var paused models.SearchSession
	err = s.db.Where("user_id = ? AND status = ?", userID, models.SearchPaused).
		Order("updated_at DESC").
		First(&paused).Error
	if err == nil {
		updates := map[string]any{
			"status":           models.SearchPending,
			"job_title":        jobTitle,
			"batch_size":       batchSize,
			"progress_current": 0,
			"progress_total":   0,
			"progress_message": "",
			"completed_at":     nil,
		}
		if now.Sub(paused.UpdatedAt) > sessionReuseWindow {
			updates["current_page"] = 1
			updates["processed_count"] = 0
			log.Printf("⚠️ Search session %s for user %s expired, restarting from page 1", paused.ID, userID)
		} else {
			log.Printf("Resuming paused search session %s for user %s at page %d", paused.ID, userID, paused.CurrentPage)
		}
		if err := s.db.Model(&paused).Updates(updates).Error; err != nil {
			return nil, false, err
		}
		return s.get(paused.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	session := models.SearchSession{
		UserID:      userID,
		Status:      models.SearchPending,
		JobTitle:    jobTitle,
		CurrentPage: 1,
		BatchSize:   batchSize,
	}
	if err := s.db.Create(&session).Error; err != nil {
		return nil, false, err
	}
	return &session, false, nil
}

func (s *SessionService) get(id string) (*models.SearchSession, bool, error) {
	var session models.SearchSession
	if err := s.db.First(&session, "id = ?", id).Error; err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

// Latest returns the user's most recent session, or nil if they never ran a
// search.
func (s *SessionService) Latest(userID string) (*models.SearchSession, error) {
	var session models.SearchSession
	err := s.db.Where("user_id = ?", userID).Order("updated_at DESC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionService) MarkInProgress(sessionID string) error {
	return s.db.Model(&models.SearchSession{}).Where("id = ?", sessionID).
		Update("status", models.SearchInProgress).Error
}

// UpdateProgress records where the run is, for status polls and resumption.
func (s *SessionService) UpdateProgress(sessionID string, current, total int, message string) error {
	return s.db.Model(&models.SearchSession{}).Where("id = ?", sessionID).
		Updates(map[string]any{
			"progress_current": current,
			"progress_total":   total,
			"progress_message": message,
		}).Error
}

// RecordBatch advances the session's cursor after a batch finishes.
func (s *SessionService) RecordBatch(sessionID string, nextPage, processedDelta int, totalResults int) error {
	updates := map[string]any{
		"current_page":    nextPage,
		"processed_count": gorm.Expr("processed_count + ?", processedDelta),
	}
	if totalResults > 0 {
		updates["total_results"] = totalResults
	}
	return s.db.Model(&models.SearchSession{}).Where("id = ?", sessionID).
		Updates(updates).Error
}

func (s *SessionService) Complete(sessionID string) error {
	now := time.Now()
	return s.db.Model(&models.SearchSession{}).Where("id = ?", sessionID).
		Updates(map[string]any{
			"status":       models.SearchCompleted,
			"completed_at": now,
		}).Error
}

func (s *SessionService) Fail(sessionID, message string) error {
	return s.db.Model(&models.SearchSession{}).Where("id = ?", sessionID).
		Updates(map[string]any{
			"status":           models.SearchFailed,
			"progress_message": message,
		}).Error
}

// Pause parks a session so its cursor survives; used when the client
// disconnects mid-stream or explicitly cancels.
func (s *SessionService) Pause(sessionID string) error {
	return s.db.Model(&models.SearchSession{}).Where("id = ?", sessionID).
		Update("status", models.SearchPaused).Error
}

// PauseLatestLive pauses the user's live session if one exists. Returns the
// paused session, or nil when there was nothing to pause.
func (s *SessionService) PauseLatestLive(userID string) (*models.SearchSession, error) {
	var session models.SearchSession
	err := s.db.Where("user_id = ? AND status IN ?",
		userID, []string{models.SearchPending, models.SearchInProgress}).
		Order("updated_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.Pause(session.ID); err != nil {
		return nil, err
	}
	session.Status = models.SearchPaused
	return &session, nil
}

// ExpireStale fails pending/in_progress sessions nothing has touched within
// the active window. Run periodically; a crashed stream never gets to mark
// its own session.
func (s *SessionService) ExpireStale() (int64, error) {
	res := s.db.Model(&models.SearchSession{}).
		Where("status IN ? AND updated_at < ?",
			[]string{models.SearchPending, models.SearchInProgress},
			time.Now().Add(-sessionActiveWindow)).
		Updates(map[string]any{
			"status":           models.SearchFailed,
			"progress_message": "session expired",
		})
	if res.Error == nil && res.RowsAffected > 0 {
		log.Printf("⚠️ Expired %d stale search sessions", res.RowsAffected)
	}
	return res.RowsAffected, res.Error
}
