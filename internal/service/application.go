package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hirehub/internal/database"
)

// WithdrawnRetention 是撤回的投递在被清理前保留的时长。
const WithdrawnRetention = time.Hour

// StatusChange 描述一次由招聘方触发的状态变更，以及被连带拒绝的投递。
type StatusChange struct {
	Application database.Application
	// AutoRejected 是因接受该投递而被自动拒绝的其他投递。
	AutoRejected []database.Application
}

// ApplicationService 管理投递的状态流转。
type ApplicationService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewApplicationService 构造 ApplicationService。
func NewApplicationService(db *gorm.DB) *ApplicationService {
	return &ApplicationService{db: db, now: time.Now}
}

// WithClock 替换时间源，测试用。
func (s *ApplicationService) WithClock(now func() time.Time) *ApplicationService {
	s.now = now
	return s
}

// Apply 由求职者投递职位；同一职位只能投递一次，
// 已撤回且过期的旧投递会被替换。
func (s *ApplicationService) Apply(ctx context.Context, applicantID, jobID uint) (*database.Application, error) {
	var app database.Application
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applicant, err := loadUser(tx, applicantID)
		if err != nil {
			return err
		}
		if applicant.Role != database.RoleCandidate {
			return forbidden("only candidates can apply to jobs")
		}

		var job database.Job
		if err := tx.First(&job, jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("job not found")
			}
			return errors.Wrap(err, "load job")
		}
		if job.CreatedByID == applicantID {
			return forbidden("you cannot apply to your own job")
		}

		var existing database.Application
		err = tx.Where("job_id = ? AND applicant_id = ?", jobID, applicantID).First(&existing).Error
		switch {
		case err == nil:
			if !s.isExpiredWithdrawal(existing) {
				return conflict("you have already applied to this job")
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return errors.Wrap(err, "replace expired application")
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return errors.Wrap(err, "check existing application")
		}

		app = database.Application{
			JobID:       jobID,
			ApplicantID: applicantID,
			Status:      database.ApplicationPending,
		}
		if err := tx.Create(&app).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return conflict("you have already applied to this job")
			}
			return errors.Wrap(err, "create application")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *ApplicationService) isExpiredWithdrawal(app database.Application) bool {
	return app.Status == database.ApplicationWithdrawn &&
		app.ExpiresAt != nil &&
		!app.ExpiresAt.After(s.now())
}

// ListByApplicant 返回求职者的投递及职位信息。
func (s *ApplicationService) ListByApplicant(ctx context.Context, applicantID uint) ([]database.Application, error) {
	var apps []database.Application
	if err := s.db.WithContext(ctx).
		Preload("Job").
		Preload("Job.Company").
		Where("applicant_id = ?", applicantID).
		Order("created_at DESC").
		Find(&apps).Error; err != nil {
		return nil, errors.Wrap(err, "list applications")
	}
	return apps, nil
}

// ListByJob 返回职位的全部投递，仅发布者可见。
func (s *ApplicationService) ListByJob(ctx context.Context, requesterID, jobID uint) (*database.Job, []database.Application, error) {
	db := s.db.WithContext(ctx)
	job, err := ownedJob(db, requesterID, jobID)
	if err != nil {
		return nil, nil, err
	}

	var apps []database.Application
	if err := db.
		Preload("Applicant").
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&apps).Error; err != nil {
		return nil, nil, errors.Wrap(err, "list job applications")
	}
	return job, apps, nil
}

// Get 返回投递，仅投递者与职位发布者可见。
func (s *ApplicationService) Get(ctx context.Context, requesterID, id uint) (*database.Application, error) {
	var app database.Application
	if err := s.db.WithContext(ctx).Preload("Job").Preload("Job.Company").First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("application not found")
		}
		return nil, errors.Wrap(err, "get application")
	}
	if app.ApplicantID != requesterID && app.Job.CreatedByID != requesterID {
		return nil, forbidden("you cannot view this application")
	}
	return &app, nil
}

// UpdateStatus 由职位发布者接受或拒绝一份待处理投递。
// 接受时同一事务内将该职位其余待处理投递全部置为拒绝，且同一职位至多一份被接受。
func (s *ApplicationService) UpdateStatus(ctx context.Context, recruiterID, id uint, status string) (*StatusChange, error) {
	if status != database.ApplicationAccepted && status != database.ApplicationRejected {
		return nil, invalid("status must be accepted or rejected")
	}

	var change StatusChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var app database.Application
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Job").
			Preload("Job.Company").
			Preload("Applicant").
			First(&app, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("application not found")
			}
			return errors.Wrap(err, "load application")
		}
		if app.Job.CreatedByID != recruiterID {
			return forbidden("you did not post this job")
		}
		if app.Status != database.ApplicationPending {
			return badTransition("only pending applications can be " + status)
		}

		if status == database.ApplicationAccepted {
			var accepted int64
			if err := tx.Model(&database.Application{}).
				Where("job_id = ? AND status = ? AND id <> ?", app.JobID, database.ApplicationAccepted, app.ID).
				Count(&accepted).Error; err != nil {
				return errors.Wrap(err, "check accepted applications")
			}
			if accepted > 0 {
				return conflict("another application has already been accepted for this job")
			}

			if err := tx.Preload("Applicant").
				Where("job_id = ? AND status = ? AND id <> ?", app.JobID, database.ApplicationPending, app.ID).
				Find(&change.AutoRejected).Error; err != nil {
				return errors.Wrap(err, "load pending applications")
			}
			if len(change.AutoRejected) > 0 {
				ids := make([]uint, 0, len(change.AutoRejected))
				for i := range change.AutoRejected {
					ids = append(ids, change.AutoRejected[i].ID)
					change.AutoRejected[i].Status = database.ApplicationRejected
					change.AutoRejected[i].Job = app.Job
				}
				if err := tx.Model(&database.Application{}).
					Where("id IN ?", ids).
					Update("status", database.ApplicationRejected).Error; err != nil {
					return errors.Wrap(err, "reject pending applications")
				}
			}
		}

		if err := tx.Model(&app).Update("status", status).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return conflict("another application has already been accepted for this job")
			}
			return errors.Wrap(err, "update application status")
		}
		app.Status = status
		change.Application = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// Withdraw 由投递者撤回待处理投递，并设置一小时后过期。
func (s *ApplicationService) Withdraw(ctx context.Context, applicantID, id uint) (*database.Application, error) {
	var app database.Application
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&app, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("application not found")
			}
			return errors.Wrap(err, "load application")
		}
		if app.ApplicantID != applicantID {
			return forbidden("you did not submit this application")
		}
		if app.Status != database.ApplicationPending {
			return badTransition("only pending applications can be withdrawn")
		}

		expiresAt := s.now().Add(WithdrawnRetention)
		if err := tx.Model(&app).Updates(map[string]any{
			"status":     database.ApplicationWithdrawn,
			"expires_at": expiresAt,
		}).Error; err != nil {
			return errors.Wrap(err, "withdraw application")
		}
		app.Status = database.ApplicationWithdrawn
		app.ExpiresAt = &expiresAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// PurgeExpiredWithdrawn 删除过期的撤回投递，返回删除数量。
func (s *ApplicationService) PurgeExpiredWithdrawn(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", database.ApplicationWithdrawn, s.now()).
		Delete(&database.Application{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "purge withdrawn applications")
	}
	return result.RowsAffected, nil
}
