package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"hirehub/internal/database"
)

// CompanyInput 是创建/更新公司时的可写字段。
type CompanyInput struct {
	Name        string
	Website     string
	Description string
	Location    string
}

func (in *CompanyInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Website = strings.TrimSpace(in.Website)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
}

// CompanyService 管理公司及其级联删除。
type CompanyService struct {
	db *gorm.DB
}

// NewCompanyService 构造 CompanyService。
func NewCompanyService(db *gorm.DB) *CompanyService {
	return &CompanyService{db: db}
}

// Register 在单个事务内校验唯一性并创建公司。
func (s *CompanyService) Register(ctx context.Context, ownerID uint, in CompanyInput) (*database.Company, error) {
	in.normalize()
	if in.Name == "" {
		return nil, invalid("company name is required")
	}

	var company database.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := loadUser(tx, ownerID)
		if err != nil {
			return err
		}
		if !owner.IsRecruiter() {
			return forbidden("only recruiters can register companies")
		}
		if err := ensureCompanyUnique(tx, in, 0); err != nil {
			return err
		}

		company = database.Company{
			Name:        in.Name,
			Website:     in.Website,
			Description: in.Description,
			Location:    in.Location,
			UserID:      ownerID,
		}
		if err := tx.Create(&company).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return conflict("company already exists")
			}
			return errors.Wrap(err, "create company")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// ListByOwner 返回招聘方名下的公司。
func (s *CompanyService) ListByOwner(ctx context.Context, ownerID uint) ([]database.Company, error) {
	var companies []database.Company
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&companies).Error; err != nil {
		return nil, errors.Wrap(err, "list companies")
	}
	return companies, nil
}

// Get 按 ID 查询公司。
func (s *CompanyService) Get(ctx context.Context, id uint) (*database.Company, error) {
	var company database.Company
	if err := s.db.WithContext(ctx).First(&company, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("company not found")
		}
		return nil, errors.Wrap(err, "get company")
	}
	return &company, nil
}

// Update 覆盖公司资料；唯一性校验排除自身。
func (s *CompanyService) Update(ctx context.Context, ownerID, id uint, in CompanyInput) (*database.Company, error) {
	in.normalize()
	if in.Name == "" {
		return nil, invalid("company name is required")
	}

	var company *database.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		company, err = ownedCompany(tx, ownerID, id)
		if err != nil {
			return err
		}
		if err := ensureCompanyUnique(tx, in, company.ID); err != nil {
			return err
		}
		updates := map[string]any{
			"name":        in.Name,
			"website":     in.Website,
			"description": in.Description,
			"location":    in.Location,
		}
		if err := tx.Model(company).Updates(updates).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return conflict("company already exists")
			}
			return errors.Wrap(err, "update company")
		}
		return tx.First(company, company.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return company, nil
}

// SetLogo 记录新的 Logo 对象键并返回旧值，便于调用方清理存储。
func (s *CompanyService) SetLogo(ctx context.Context, ownerID, id uint, objectKey string) (previous string, err error) {
	company, err := ownedCompany(s.db.WithContext(ctx), ownerID, id)
	if err != nil {
		return "", err
	}
	// Model 会回写新值，旧键需先取出
	previous = company.LogoKey
	if err := s.db.WithContext(ctx).Model(&database.Company{}).Where("id = ?", company.ID).Update("logo_key", objectKey).Error; err != nil {
		return "", errors.Wrap(err, "update company logo")
	}
	return previous, nil
}

// Delete 删除公司及其全部职位、投递与收藏。
func (s *CompanyService) Delete(ctx context.Context, ownerID, id uint) (*database.Company, error) {
	var company *database.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		company, err = ownedCompany(tx, ownerID, id)
		if err != nil {
			return err
		}

		var jobIDs []uint
		if err := tx.Model(&database.Job{}).Where("company_id = ?", company.ID).Pluck("id", &jobIDs).Error; err != nil {
			return errors.Wrap(err, "collect company jobs")
		}
		if err := deleteJobsCascade(tx, jobIDs); err != nil {
			return err
		}
		if err := tx.Delete(&database.Company{}, company.ID).Error; err != nil {
			return errors.Wrap(err, "delete company")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return company, nil
}

func ownedCompany(tx *gorm.DB, ownerID, id uint) (*database.Company, error) {
	var company database.Company
	if err := tx.First(&company, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("company not found")
		}
		return nil, errors.Wrap(err, "load company")
	}
	if company.UserID != ownerID {
		return nil, forbidden("you do not own this company")
	}
	return &company, nil
}

// ensureCompanyUnique 以大小写不敏感方式检查名称与网址。
func ensureCompanyUnique(tx *gorm.DB, in CompanyInput, excludeID uint) error {
	query := tx.Model(&database.Company{}).Where("LOWER(name) = ?", strings.ToLower(in.Name))
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return errors.Wrap(err, "check company name")
	}
	if count > 0 {
		return conflict("company name already registered")
	}

	if in.Website == "" {
		return nil
	}
	query = tx.Model(&database.Company{}).Where("LOWER(website) = ?", strings.ToLower(in.Website))
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return errors.Wrap(err, "check company website")
	}
	if count > 0 {
		return conflict("company website already registered")
	}
	return nil
}

// deleteJobsCascade 删除职位以及依赖它们的投递与收藏。
func deleteJobsCascade(tx *gorm.DB, jobIDs []uint) error {
	if len(jobIDs) == 0 {
		return nil
	}
	if err := tx.Where("job_id IN ?", jobIDs).Delete(&database.Application{}).Error; err != nil {
		return errors.Wrap(err, "delete applications")
	}
	if err := tx.Where("job_id IN ?", jobIDs).Delete(&database.SavedJob{}).Error; err != nil {
		return errors.Wrap(err, "delete saved jobs")
	}
	if err := tx.Where("id IN ?", jobIDs).Delete(&database.Job{}).Error; err != nil {
		return errors.Wrap(err, "delete jobs")
	}
	return nil
}

func loadUser(tx *gorm.DB, id uint) (*database.User, error) {
	var user database.User
	if err := tx.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user not found")
		}
		return nil, errors.Wrap(err, "load user")
	}
	return &user, nil
}
