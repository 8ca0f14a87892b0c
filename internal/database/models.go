package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hirehub/internal/auth"
)

// 角色常量。
const (
	RoleRecruiter = "recruiter"
	RoleCandidate = "candidate"
)

// 投递状态常量。
const (
	ApplicationPending   = "pending"
	ApplicationAccepted  = "accepted"
	ApplicationRejected  = "rejected"
	ApplicationWithdrawn = "withdrawn"
)

// User 表示系统中的账号信息，招聘方与求职者共用一张表。
type User struct {
	gorm.Model
	Name                  string `gorm:"size:128"`
	Email                 string `gorm:"uniqueIndex;size:255"`
	PasswordHash          string `gorm:"size:255"`
	Role                  string `gorm:"size:16;index"`
	Phone                 string `gorm:"size:32"`
	Bio                   string `gorm:"type:text"`
	Skills                datatypes.JSONSlice[string]
	ProfilePictureKey     string `gorm:"size:512"`
	ResumeKey             string `gorm:"size:512"`
	ResumeOriginalName    string `gorm:"size:255"`
	Verified              bool   `gorm:"default:false"`
	MustChangePassword    bool   `gorm:"default:false"`
	TokenVersion          uint   `gorm:"not null;default:0"`
	VerificationTokenHash string `gorm:"size:64;index"`
	VerificationExpiresAt *time.Time
	ResetTokenHash        string `gorm:"size:64;index"`
	ResetExpiresAt        *time.Time
	Companies             []Company `gorm:"constraint:OnDelete:CASCADE"`
}

// TokenSubject 返回签发令牌所需的字段。
func (u User) TokenSubject() auth.Subject {
	return auth.Subject{
		UserID:             u.ID,
		Role:               u.Role,
		TokenVersion:       u.TokenVersion,
		MustChangePassword: u.MustChangePassword,
	}
}

// IsRecruiter 判断用户是否为招聘方。
func (u User) IsRecruiter() bool { return u.Role == RoleRecruiter }

// Company 归属于某个招聘方；名称与网址大小写不敏感唯一（服务层校验，Migrate 建索引兜底）。
type Company struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:255;index"`
	Website     string `gorm:"size:512;index"`
	Description string `gorm:"type:text"`
	Location    string `gorm:"size:255"`
	LogoKey     string `gorm:"size:512"`
	UserID      uint   `gorm:"index"`
	Jobs        []Job  `gorm:"constraint:OnDelete:CASCADE"`
}

// Job 表示一个职位。
type Job struct {
	ID              uint `gorm:"primarykey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Title           string `gorm:"size:255;index"`
	Description     string `gorm:"type:text"`
	Requirements    datatypes.JSONSlice[string]
	Salary          Salary
	Location        string `gorm:"size:255;index"`
	JobType         string `gorm:"size:32;index"`
	ExperienceLevel int
	Positions       int
	CompanyID       uint `gorm:"index"`
	Company         Company
	CreatedByID     uint          `gorm:"index"`
	Applications    []Application `gorm:"constraint:OnDelete:CASCADE"`
}

// Application 是求职者对职位的一次投递，(job_id, applicant_id) 唯一。
type Application struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	JobID       uint `gorm:"uniqueIndex:idx_application_job_applicant"`
	Job         Job
	ApplicantID uint   `gorm:"uniqueIndex:idx_application_job_applicant;index"`
	Applicant   User   `gorm:"constraint:OnDelete:CASCADE"`
	Status      string `gorm:"size:16;index"`
	// ExpiresAt 仅在撤回后设置，过期后由定时任务清理。
	ExpiresAt *time.Time `gorm:"index"`
}

// SavedJob 记录用户收藏的职位，(user_id, job_id) 唯一。
type SavedJob struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UserID    uint `gorm:"uniqueIndex:idx_saved_job_user_job"`
	JobID     uint `gorm:"uniqueIndex:idx_saved_job_user_job;index"`
	Job       Job  `gorm:"constraint:OnDelete:CASCADE"`
}

// Message 表示两名用户之间的一条聊天消息。
type Message struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	SenderID   uint   `gorm:"index:idx_message_pair"`
	ReceiverID uint   `gorm:"index:idx_message_pair;index"`
	Text       string `gorm:"type:text"`
	ImageKey   string `gorm:"size:512"`
	Read       bool   `gorm:"default:false;index"`
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []any {
	return []any{&User{}, &Company{}, &Job{}, &Application{}, &SavedJob{}, &Message{}}
}
