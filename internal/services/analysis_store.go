package services

import (
	"errors"

	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/utils"
	"gorm.io/gorm"
)

// AnalysisStore persists per-(user, comment) fit verdicts. One row per pair;
// analyzing again overwrites the previous verdict in place.
type AnalysisStore struct {
	db *gorm.DB
}

func NewAnalysisStore(db *gorm.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// Upsert writes the verdict for a comment, replacing any earlier one.
func (s *AnalysisStore) Upsert(userID string, comment *models.Comment, result *JobAnalysis) (*models.Analysis, error) {
	row := models.Analysis{
		UserID:             userID,
		CommentID:          comment.ID,
		ThreadID:           comment.ThreadID,
		Recommendation:     result.Recommendation,
		FitScore:           result.FitScore,
		Confidence:         result.Confidence,
		JobSummary:         result.JobSummary,
		FitSummary:         result.FitSummary,
		CompanySummary:     result.CompanySummary,
		WhyGoodFit:         utils.EncodeStringSlice(result.WhyGoodFit),
		PotentialConcerns:  utils.EncodeStringSlice(result.PotentialConcerns),
		SummaryRole:        result.Summary.Role,
		SummaryCompany:     result.Summary.Company,
		SummaryLocation:    result.Summary.Location,
		SummarySalaryRange: result.Summary.SalaryRange,
		AnalysisText:       result.Analysis,
		Degraded:           result.Degraded,
	}

	var existing models.Analysis
	err := s.db.Where("user_id = ? AND comment_id = ?", userID, comment.ID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	}
	if err != nil {
		return nil, err
	}

	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	if err := s.db.Save(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns the user's verdicts, newest first, optionally scoped to one
// thread.
func (s *AnalysisStore) List(userID, threadID string) ([]models.Analysis, error) {
	q := s.db.Where("user_id = ?", userID)
	if threadID != "" {
		q = q.Where("thread_id = ?", threadID)
	}
	var rows []models.Analysis
	if err := q.Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetComment looks a comment up by its HackerNews id.
func (s *AnalysisStore) GetComment(commentID string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.Where("comment_id = ?", commentID).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}
