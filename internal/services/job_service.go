package services

import (
	"fmt"
	"time"

	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/utils"
	"gorm.io/gorm"
)

// JobService owns the ProcessedJob rows produced by the search pipeline:
// listing, triage status updates and persistence of analyzed postings.
type JobService struct {
	db *gorm.DB
}

func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db}
}

// ProcessedJobView is a ProcessedJob with the JSON-encoded string slices
// decoded for API consumers.
type ProcessedJobView struct {
	models.ProcessedJob
	WhyGoodFitList        []string `json:"why_good_fit_list"`
	PotentialConcernsList []string `json:"potential_concerns_list"`
	KeyTechnologiesList   []string `json:"key_technologies_list"`
}

// ListJobs returns the user's processed jobs newest first, optionally
// filtered by triage status.
func (j *JobService) ListJobs(userID, status string) ([]ProcessedJobView, error) {
	q := j.db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var rows []models.ProcessedJob
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]ProcessedJobView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ProcessedJobView{
			ProcessedJob:          row,
			WhyGoodFitList:        utils.DecodeStringSlice(row.WhyGoodFit),
			PotentialConcernsList: utils.DecodeStringSlice(row.PotentialConcerns),
			KeyTechnologiesList:   utils.DecodeStringSlice(row.KeyTechnologies),
		})
	}
	return views, nil
}

func validJobStatus(status string) bool {
	switch status {
	case models.JobUnread, models.JobApplied, models.JobNotInterested, models.JobSavedForLater:
		return true
	}
	return false
}

// UpdateStatus sets the triage status of one job owned by the user.
func (j *JobService) UpdateStatus(userID, jobID, status string) (*models.ProcessedJob, error) {
	if !validJobStatus(status) {
		return nil, fmt.Errorf("invalid job status %q", status)
	}

	var job models.ProcessedJob
	if err := j.db.Where("id = ? AND user_id = ?", jobID, userID).First(&job).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	if err := j.db.Model(&job).Updates(map[string]any{
		"status":            status,
		"status_updated_at": now,
	}).Error; err != nil {
		return nil, err
	}
	job.Status = status
	job.StatusUpdatedAt = &now
	return &job, nil
}

// BulkUpdateStatus applies one status to many jobs at once and reports how
// many rows actually changed. Ids the user does not own are skipped silently.
func (j *JobService) BulkUpdateStatus(userID string, jobIDs []string, status string) (int64, error) {
	if !validJobStatus(status) {
		return 0, fmt.Errorf("invalid job status %q", status)
	}
	if len(jobIDs) == 0 {
		return 0, nil
	}

	res := j.db.Model(&models.ProcessedJob{}).
		Where("user_id = ? AND id IN ?", userID, jobIDs).
		Updates(map[string]any{
			"status":            status,
			"status_updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// FindByURL returns the user's existing job for a URL, or nil if unseen.
func (j *JobService) FindByURL(userID, url string) (*models.ProcessedJob, error) {
	var job models.ProcessedJob
	err := j.db.Where("user_id = ? AND url = ?", userID, url).First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveAnalyzedJob persists one analyzed posting from the search pipeline.
func (j *JobService) SaveAnalyzedJob(job *models.ProcessedJob) error {
	return j.db.Create(job).Error
}

// ReplaceJob overwrites an existing row with a fresh analysis.
func (j *JobService) ReplaceJob(job *models.ProcessedJob) error {
	return j.db.Save(job).Error
}
