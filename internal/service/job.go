package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"hirehub/internal/database"
)

// 支持的职位类型。
var jobTypes = map[string]struct{}{
	"full-time":  {},
	"part-time":  {},
	"contract":   {},
	"internship": {},
	"remote":     {},
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage 保证 (page-1)*limit 不会溢出
	maxPage         = 10000
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern 返回大小写不敏感的子串 LIKE 模式，输入中的通配符按字面匹配。
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// JobInput 是创建/更新职位时的可写字段。
type JobInput struct {
	Title           string
	Description     string
	Requirements    []string
	Salary          database.Salary
	Location        string
	JobType         string
	ExperienceLevel int
	Positions       int
	CompanyID       uint
}

func (in *JobInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.JobType = strings.ToLower(strings.TrimSpace(in.JobType))

	if in.Title == "" {
		return invalid("job title is required")
	}
	if in.Description == "" {
		return invalid("job description is required")
	}
	if _, ok := jobTypes[in.JobType]; !ok {
		return invalid("unsupported job type")
	}
	if in.Salary.IsZero() {
		return invalid("salary is required")
	}
	if err := in.Salary.Validate(); err != nil {
		return invalid(err.Error())
	}
	if in.ExperienceLevel < 0 {
		return invalid("experience level must not be negative")
	}
	if in.Positions <= 0 {
		in.Positions = 1
	}
	reqs := make([]string, 0, len(in.Requirements))
	for _, r := range in.Requirements {
		if r = strings.TrimSpace(r); r != "" {
			reqs = append(reqs, r)
		}
	}
	in.Requirements = reqs
	return nil
}

// JobFilter 描述公开职位列表的查询条件。
type JobFilter struct {
	Keyword   string
	Location  string
	JobType   string
	CompanyID uint
	Page      int
	Limit     int
}

// JobPage 是分页结果。
type JobPage struct {
	Items []database.Job
	Total int64
	Page  int
	Limit int
}

// JobService 管理职位。
type JobService struct {
	db *gorm.DB
}

// NewJobService 构造 JobService。
func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db}
}

// Create 由公司所有者发布职位。
func (s *JobService) Create(ctx context.Context, creatorID uint, in JobInput) (*database.Job, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if _, err := ownedCompany(db, creatorID, in.CompanyID); err != nil {
		return nil, err
	}

	job := database.Job{
		Title:           in.Title,
		Description:     in.Description,
		Requirements:    in.Requirements,
		Salary:          in.Salary,
		Location:        in.Location,
		JobType:         in.JobType,
		ExperienceLevel: in.ExperienceLevel,
		Positions:       in.Positions,
		CompanyID:       in.CompanyID,
		CreatedByID:     creatorID,
	}
	if err := db.Create(&job).Error; err != nil {
		return nil, errors.Wrap(err, "create job")
	}
	return s.Get(ctx, job.ID)
}

// List 按条件分页返回职位，最新优先。
func (s *JobService) List(ctx context.Context, f JobFilter) (*JobPage, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Page > maxPage {
		f.Page = maxPage
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	filters := func(db *gorm.DB) *gorm.DB {
		if kw := strings.TrimSpace(f.Keyword); kw != "" {
			like := containsPattern(kw)
			db = db.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, like, like)
		}
		if loc := strings.TrimSpace(f.Location); loc != "" {
			db = db.Where(`LOWER(location) LIKE ? ESCAPE '\'`, containsPattern(loc))
		}
		if jt := strings.ToLower(strings.TrimSpace(f.JobType)); jt != "" {
			db = db.Where("job_type = ?", jt)
		}
		if f.CompanyID != 0 {
			db = db.Where("company_id = ?", f.CompanyID)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&database.Job{}).Scopes(filters).Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count jobs")
	}

	var jobs []database.Job
	if err := s.db.WithContext(ctx).
		Scopes(filters).
		Preload("Company").
		Order("created_at DESC").
		Order("id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}

	return &JobPage{Items: jobs, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Get 按 ID 查询职位并带出公司。
func (s *JobService) Get(ctx context.Context, id uint) (*database.Job, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).Preload("Company").First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("job not found")
		}
		return nil, errors.Wrap(err, "get job")
	}
	return &job, nil
}

// ListByCreator 返回招聘方发布的职位。
func (s *JobService) ListByCreator(ctx context.Context, creatorID uint) ([]database.Job, error) {
	var jobs []database.Job
	if err := s.db.WithContext(ctx).
		Preload("Company").
		Where("created_by_id = ?", creatorID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "list jobs by creator")
	}
	return jobs, nil
}

// ListByCompany 返回公司下的职位。
func (s *JobService) ListByCompany(ctx context.Context, companyID uint) ([]database.Job, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Company{}).Where("id = ?", companyID).Count(&count).Error; err != nil {
		return nil, errors.Wrap(err, "check company")
	}
	if count == 0 {
		return nil, notFound("company not found")
	}

	var jobs []database.Job
	if err := s.db.WithContext(ctx).
		Preload("Company").
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "list jobs by company")
	}
	return jobs, nil
}

// Update 由发布者修改职位；若变更公司，新公司也必须归其所有。
func (s *JobService) Update(ctx context.Context, creatorID, id uint, in JobInput) (*database.Job, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	job, err := ownedJob(db, creatorID, id)
	if err != nil {
		return nil, err
	}
	if in.CompanyID == 0 {
		in.CompanyID = job.CompanyID
	}
	if in.CompanyID != job.CompanyID {
		if _, err := ownedCompany(db, creatorID, in.CompanyID); err != nil {
			return nil, err
		}
	}

	job.Title = in.Title
	job.Description = in.Description
	job.Requirements = in.Requirements
	job.Salary = in.Salary
	job.Location = in.Location
	job.JobType = in.JobType
	job.ExperienceLevel = in.ExperienceLevel
	job.Positions = in.Positions
	job.CompanyID = in.CompanyID
	if err := db.Omit("Company", "Applications").Save(job).Error; err != nil {
		return nil, errors.Wrap(err, "update job")
	}
	return s.Get(ctx, job.ID)
}

// Delete 删除职位及其投递与收藏。
func (s *JobService) Delete(ctx context.Context, creatorID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := ownedJob(tx, creatorID, id)
		if err != nil {
			return err
		}
		return deleteJobsCascade(tx, []uint{job.ID})
	})
}

func ownedJob(tx *gorm.DB, creatorID, id uint) (*database.Job, error) {
	var job database.Job
	if err := tx.First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("job not found")
		}
		return nil, errors.Wrap(err, "load job")
	}
	if job.CreatedByID != creatorID {
		return nil, forbidden("you did not post this job")
	}
	return &job, nil
}
