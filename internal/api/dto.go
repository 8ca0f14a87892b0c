package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"hirehub/internal/database"
)

type userResponse struct {
	ID                 uint      `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	Role               string    `json:"role"`
	Phone              string    `json:"phone,omitempty"`
	Bio                string    `json:"bio"`
	Skills             []string  `json:"skills"`
	ProfilePictureURL  string    `json:"profile_picture_url,omitempty"`
	ResumeURL          string    `json:"resume_url,omitempty"`
	ResumeOriginalName string    `json:"resume_original_name,omitempty"`
	Verified           bool      `json:"verified"`
	MustChangePassword bool      `json:"must_change_password,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// toUserResponse 返回本人可见的完整资料。
func toUserResponse(c *gin.Context, store ObjectStorage, u database.User) userResponse {
	skills := []string(u.Skills)
	if skills == nil {
		skills = []string{}
	}
	return userResponse{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		Phone:              u.Phone,
		Bio:                u.Bio,
		Skills:             skills,
		ProfilePictureURL:  presign(c, store, u.ProfilePictureKey),
		ResumeURL:          presign(c, store, u.ResumeKey),
		ResumeOriginalName: u.ResumeOriginalName,
		Verified:           u.Verified,
		MustChangePassword: u.MustChangePassword,
		CreatedAt:          u.CreatedAt,
	}
}

// toPublicUserResponse 去掉邮箱与电话。
func toPublicUserResponse(c *gin.Context, store ObjectStorage, u database.User) userResponse {
	resp := toUserResponse(c, store, u)
	resp.Email = ""
	resp.Phone = ""
	resp.MustChangePassword = false
	return resp
}

type companyResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Website     string    `json:"website"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	LogoURL     string    `json:"logo_url,omitempty"`
	UserID      uint      `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCompanyResponse(c *gin.Context, store ObjectStorage, co database.Company) companyResponse {
	return companyResponse{
		ID:          co.ID,
		Name:        co.Name,
		Website:     co.Website,
		Description: co.Description,
		Location:    co.Location,
		LogoURL:     presign(c, store, co.LogoKey),
		UserID:      co.UserID,
		CreatedAt:   co.CreatedAt,
	}
}

type jobResponse struct {
	ID              uint             `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Requirements    []string         `json:"requirements"`
	Salary          database.Salary  `json:"salary"`
	Location        string           `json:"location"`
	JobType         string           `json:"job_type"`
	ExperienceLevel int              `json:"experience_level"`
	Positions       int              `json:"positions"`
	CompanyID       uint             `json:"company_id"`
	Company         *companyResponse `json:"company,omitempty"`
	CreatedBy       uint             `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toJobResponse(c *gin.Context, store ObjectStorage, j database.Job) jobResponse {
	reqs := []string(j.Requirements)
	if reqs == nil {
		reqs = []string{}
	}
	resp := jobResponse{
		ID:              j.ID,
		Title:           j.Title,
		Description:     j.Description,
		Requirements:    reqs,
		Salary:          j.Salary,
		Location:        j.Location,
		JobType:         j.JobType,
		ExperienceLevel: j.ExperienceLevel,
		Positions:       j.Positions,
		CompanyID:       j.CompanyID,
		CreatedBy:       j.CreatedByID,
		CreatedAt:       j.CreatedAt,
	}
	if j.Company.ID != 0 {
		co := toCompanyResponse(c, store, j.Company)
		resp.Company = &co
	}
	return resp
}

func toJobResponses(c *gin.Context, store ObjectStorage, jobs []database.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(c, store, j))
	}
	return out
}

type applicationResponse struct {
	ID          uint          `json:"id"`
	JobID       uint          `json:"job_id"`
	ApplicantID uint          `json:"applicant_id"`
	Status      string        `json:"status"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Job         *jobResponse  `json:"job,omitempty"`
	Applicant   *userResponse `json:"applicant,omitempty"`
}

func toApplicationResponse(c *gin.Context, store ObjectStorage, a database.Application) applicationResponse {
	resp := applicationResponse{
		ID:          a.ID,
		JobID:       a.JobID,
		ApplicantID: a.ApplicantID,
		Status:      a.Status,
		ExpiresAt:   a.ExpiresAt,
		CreatedAt:   a.CreatedAt,
	}
	if a.Job.ID != 0 {
		j := toJobResponse(c, store, a.Job)
		resp.Job = &j
	}
	if a.Applicant.ID != 0 {
		u := toPublicUserResponse(c, store, a.Applicant)
		// 招聘方需要联系候选人
		u.Email = a.Applicant.Email
		resp.Applicant = &u
	}
	return resp
}

func toApplicationResponses(c *gin.Context, store ObjectStorage, apps []database.Application) []applicationResponse {
	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toApplicationResponse(c, store, a))
	}
	return out
}

type savedJobResponse struct {
	ID        uint         `json:"id"`
	JobID     uint         `json:"job_id"`
	CreatedAt time.Time    `json:"created_at"`
	Job       *jobResponse `json:"job,omitempty"`
}

type messageResponse struct {
	ID         uint      `json:"id"`
	SenderID   uint      `json:"sender_id"`
	ReceiverID uint      `json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

func toMessageResponse(c *gin.Context, store ObjectStorage, m database.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		ImageURL:   presign(c, store, m.ImageKey),
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}
