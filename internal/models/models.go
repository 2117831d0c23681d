package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Thread processing statuses.
const (
	ThreadIdle       = "idle"
	ThreadFetching   = "fetching"
	ThreadProcessing = "processing"
	ThreadCompleted  = "completed"
	ThreadFailed     = "failed"
	ThreadPaused     = "paused"
)

// Comment processing statuses.
const (
	CommentUnprocessed = "unprocessed"
	CommentProcessing  = "processing"
	CommentCompleted   = "completed"
	CommentFailed      = "failed"
)

// Fit recommendations.
const (
	RecommendApply = "apply"
	RecommendMaybe = "maybe"
	RecommendSkip  = "skip"
)

// Bulk analysis session statuses.
const (
	BulkProcessing = "processing"
	BulkCompleted  = "completed"
	BulkPaused     = "paused"
)

// Search session statuses.
const (
	SearchPending    = "pending"
	SearchInProgress = "in_progress"
	SearchCompleted  = "completed"
	SearchFailed     = "failed"
	SearchPaused     = "paused"
)

// User-settable ProcessedJob statuses.
const (
	JobUnread        = "unread"
	JobApplied       = "applied"
	JobNotInterested = "not_interested"
	JobSavedForLater = "saved_for_later"
)

// MaxProcessingAttempts is the cap before a comment is marked failed for good.
const MaxProcessingAttempts = 3

// DefaultMaxRequestsPerMinute is the LLM request budget per rate window.
const DefaultMaxRequestsPerMinute = 20

type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Thread is one HackerNews "who is hiring" post we track.
type Thread struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ThreadID string `gorm:"uniqueIndex;not null" json:"thread_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Time     int64  `json:"time"`
	URL      string `json:"url,omitempty"`

	ProcessingStatus  string `gorm:"default:'idle';index" json:"processing_status"`
	TotalComments     int    `json:"total_comments"`
	ProcessedComments int    `json:"processed_comments"`

	// Fixed-window rate limiting, persisted so a restart resumes correctly.
	RequestsInCurrentMinute int   `json:"requests_in_current_minute"`
	CurrentMinuteStart      int64 `json:"current_minute_start"`
	MaxRequestsPerMinute    int   `json:"max_requests_per_minute"`

	LastFetched     int64  `json:"last_fetched"`
	LastProcessedAt *int64 `json:"last_processed_at,omitempty"`
}

// Comment is one top-level reply under a Thread, a candidate job posting.
type Comment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CommentID string `gorm:"uniqueIndex;not null" json:"comment_id"`
	ThreadID  string `gorm:"index:idx_comments_thread_status,priority:1;not null" json:"thread_id"`
	Author    string `json:"author"`
	Text      string `gorm:"type:text" json:"text"`
	Time      int64  `json:"time"`

	ProcessingStatus   string `gorm:"default:'unprocessed';index:idx_comments_thread_status,priority:2" json:"processing_status"`
	ProcessingAttempts int    `json:"processing_attempts"`
	// JSON-encoded []string of error messages accumulated across attempts.
	ProcessingErrors string `gorm:"type:text" json:"processing_errors,omitempty"`
	LastAttemptAt    *int64 `json:"last_attempt_at,omitempty"`
	// JSON-encoded extracted job fields. The IsValidJobPosting flag inside is
	// untrusted and must not be used as a query filter: a prompt defect made
	// it always false for older rows.
	JobData string `gorm:"type:text" json:"job_data,omitempty"`
}

// Analysis is one user's LLM fit judgment for one comment. At most one row
// per (user, comment); re-analysis overwrites in place.
type Analysis struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    string `gorm:"uniqueIndex:idx_analyses_user_comment,priority:1;index:idx_analyses_user_thread,priority:1;not null" json:"user_id"`
	CommentID uint   `gorm:"uniqueIndex:idx_analyses_user_comment,priority:2;not null" json:"comment_id"`
	ThreadID  string `gorm:"index:idx_analyses_user_thread,priority:2" json:"thread_id"`

	Recommendation string `json:"recommendation"`
	FitScore       int    `json:"fit_score"`
	Confidence     int    `json:"confidence"`
	JobSummary     string `gorm:"type:text" json:"job_summary"`
	FitSummary     string `gorm:"type:text" json:"fit_summary"`
	CompanySummary string `gorm:"type:text" json:"company_summary,omitempty"`
	// JSON-encoded []string fields.
	WhyGoodFit        string `gorm:"type:text" json:"why_good_fit,omitempty"`
	PotentialConcerns string `gorm:"type:text" json:"potential_concerns,omitempty"`

	SummaryRole        string `json:"summary_role"`
	SummaryCompany     string `json:"summary_company"`
	SummaryLocation    string `json:"summary_location"`
	SummarySalaryRange string `json:"summary_salary_range"`

	AnalysisText string `gorm:"type:text" json:"analysis"`
	// Degraded marks a placeholder verdict written because the LLM call
	// failed, so callers can tell it apart from a genuine "maybe".
	Degraded bool `json:"degraded"`
}

// BulkSession is the per-user cursor for "analyze every comment in a thread".
// Keyed by user id alone: starting against a different thread repurposes the
// same record.
type BulkSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   string `gorm:"uniqueIndex;not null" json:"user_id"`
	ThreadID string `json:"thread_id"`
	Status   string `gorm:"index" json:"status"`

	ResumeText  string `gorm:"type:text" json:"resume_text"`
	Preferences string `gorm:"type:text" json:"preferences"`

	StartedAt       int64  `json:"started_at"`
	CompletedAt     *int64 `json:"completed_at,omitempty"`
	LastProcessedAt *int64 `json:"last_processed_at,omitempty"`

	RequestsInCurrentMinute int   `json:"requests_in_current_minute"`
	CurrentMinuteStart      int64 `json:"current_minute_start"`
	MaxRequestsPerMinute    int   `json:"max_requests_per_minute"`
}

// ProcessedJob is a web-searched job posting that has been fetched,
// classified and analyzed for a user.
type ProcessedJob struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   string `gorm:"index;not null" json:"user_id"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location,omitempty"`
	Salary   string `json:"salary,omitempty"`
	URL      string `gorm:"index" json:"url"`
	Content  string `gorm:"type:text" json:"-"`
	// Fingerprint of the fetched content, used for change detection.
	ContentHash string `json:"content_hash"`

	Recommendation string `json:"recommendation"`
	FitScore       int    `json:"fit_score"`
	Confidence     int    `json:"confidence"`
	Summary        string `gorm:"type:text" json:"summary"`
	Analysis       string `gorm:"type:text" json:"analysis"`
	JobSummary     string `gorm:"type:text" json:"job_summary"`
	FitSummary     string `gorm:"type:text" json:"fit_summary"`
	CompanySummary string `gorm:"type:text" json:"company_summary,omitempty"`
	// JSON-encoded []string fields.
	WhyGoodFit        string `gorm:"type:text" json:"why_good_fit,omitempty"`
	PotentialConcerns string `gorm:"type:text" json:"potential_concerns,omitempty"`
	KeyTechnologies   string `gorm:"type:text" json:"key_technologies,omitempty"`
	Degraded          bool   `json:"degraded"`

	// User-settable triage status, independent of processing.
	Status          string     `gorm:"default:'unread'" json:"status"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
}

func (j *ProcessedJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

// SearchSession is a per-user resumable paginated web-search run.
type SearchSession struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID string `gorm:"index;not null" json:"user_id"`
	Status string `gorm:"index" json:"status"`

	ProgressCurrent int    `json:"progress_current"`
	ProgressTotal   int    `json:"progress_total"`
	ProgressMessage string `json:"progress_message"`

	JobTitle       string     `json:"job_title"`
	CurrentPage    int        `gorm:"default:1" json:"current_page"`
	BatchSize      int        `gorm:"default:30" json:"batch_size"`
	TotalResults   *int       `json:"total_results,omitempty"`
	ProcessedCount int        `json:"processed_count"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (s *SearchSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
