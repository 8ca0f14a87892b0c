package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"hirehub/internal/database"
)

// SavedJobService 管理收藏职位。
type SavedJobService struct {
	db *gorm.DB
}

// NewSavedJobService 构造 SavedJobService。
func NewSavedJobService(db *gorm.DB) *SavedJobService {
	return &SavedJobService{db: db}
}

// Save 收藏职位；重复收藏返回冲突。
func (s *SavedJobService) Save(ctx context.Context, userID, jobID uint) (*database.SavedJob, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&database.Job{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
		return nil, errors.Wrap(err, "check job")
	}
	if count == 0 {
		return nil, notFound("job not found")
	}

	if err := db.Model(&database.SavedJob{}).Where("user_id = ? AND job_id = ?", userID, jobID).Count(&count).Error; err != nil {
		return nil, errors.Wrap(err, "check saved job")
	}
	if count > 0 {
		return nil, conflict("job already saved")
	}

	saved := database.SavedJob{UserID: userID, JobID: jobID}
	if err := db.Create(&saved).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, conflict("job already saved")
		}
		return nil, errors.Wrap(err, "save job")
	}
	return &saved, nil
}

// Unsave 取消收藏。
func (s *SavedJobService) Unsave(ctx context.Context, userID, jobID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND job_id = ?", userID, jobID).
		Delete(&database.SavedJob{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "unsave job")
	}
	if result.RowsAffected == 0 {
		return notFound("saved job not found")
	}
	return nil
}

// List 返回用户的收藏，最新优先。
func (s *SavedJobService) List(ctx context.Context, userID uint) ([]database.SavedJob, error) {
	var saved []database.SavedJob
	if err := s.db.WithContext(ctx).
		Preload("Job").
		Preload("Job.Company").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&saved).Error; err != nil {
		return nil, errors.Wrap(err, "list saved jobs")
	}
	return saved, nil
}
