package dtos

type ProcessThreadRequest struct {
	MaxRequestsPerMinute int `json:"max_requests_per_minute"` // 0 keeps the current budget
}

type AnalyzeCommentRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	ResumeText string `json:"resume_text" binding:"required"`

	// Optional Fields
	Preferences string `json:"preferences"`
}

type BulkAnalysisRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	ThreadID   string `json:"thread_id" binding:"required"`
	ResumeText string `json:"resume_text" binding:"required"`

	// Optional Fields
	Preferences string `json:"preferences"`
}

type AnalyzeJobRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	JobURL     string `json:"job_url" binding:"required"`
	ResumeText string `json:"resume_text" binding:"required"`

	// Optional Fields
	Preferences string `json:"preferences"`
	Title       string `json:"title"`
	Company     string `json:"company"`
}

type SearchStreamRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	JobTitle   string `json:"job_title" binding:"required"`
	ResumeText string `json:"resume_text" binding:"required"`

	// Optional Fields
	Preferences string `json:"preferences"`
	BatchSize   int    `json:"batch_size"` // Defaults to 30 if empty
}

type UpdateJobStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type BulkJobStatusRequest struct {
	JobIDs []string `json:"job_ids" binding:"required"`
	Status string   `json:"status" binding:"required"`
}
