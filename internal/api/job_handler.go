package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hirehub/internal/database"
	"hirehub/internal/service"
)

// JobHandler 处理职位发布与检索。
type JobHandler struct {
	jobs    *service.JobService
	storage ObjectStorage
}

func NewJobHandler(jobs *service.JobService, store ObjectStorage) *JobHandler {
	return &JobHandler{jobs: jobs, storage: store}
}

type jobRequest struct {
	Title           string          `json:"title" binding:"required,max=255"`
	Description     string          `json:"description" binding:"required"`
	Requirements    []string        `json:"requirements" binding:"max=50"`
	Salary          database.Salary `json:"salary"`
	Location        string          `json:"location" binding:"max=255"`
	JobType         string          `json:"job_type" binding:"required"`
	ExperienceLevel int             `json:"experience_level" binding:"min=0"`
	Positions       int             `json:"positions" binding:"min=0"`
	CompanyID       uint            `json:"company_id"`
}

func (r jobRequest) input() service.JobInput {
	return service.JobInput{
		Title:           r.Title,
		Description:     r.Description,
		Requirements:    r.Requirements,
		Salary:          r.Salary,
		Location:        r.Location,
		JobType:         r.JobType,
		ExperienceLevel: r.ExperienceLevel,
		Positions:       r.Positions,
		CompanyID:       r.CompanyID,
	}
}

func (h *JobHandler) Create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.CompanyID == 0 {
		BadRequest(c, "company_id is required")
		return
	}
	job, err := h.jobs.Create(c.Request.Context(), userID, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job": toJobResponse(c, h.storage, *job)})
}

// List 公开的职位检索，支持关键字、地点、类型与公司过滤。
func (h *JobHandler) List(c *gin.Context) {
	page, ok := intQuery(c, "page")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	companyID, ok := uintQuery(c, "company_id")
	if !ok {
		return
	}

	result, err := h.jobs.List(c.Request.Context(), service.JobFilter{
		Keyword:   c.Query("keyword"),
		Location:  c.Query("location"),
		JobType:   c.Query("job_type"),
		CompanyID: companyID,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": toJobResponses(c, h.storage, result.Items),
		"total": result.Total,
		"page":  result.Page,
		"limit": result.Limit,
	})
}

func (h *JobHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": toJobResponse(c, h.storage, *job)})
}

func (h *JobHandler) ListMine(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobs, err := h.jobs.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": toJobResponses(c, h.storage, jobs)})
}

func (h *JobHandler) ListByCompany(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	jobs, err := h.jobs.ListByCompany(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": toJobResponses(c, h.storage, jobs)})
}

func (h *JobHandler) Update(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.jobs.Update(c.Request.Context(), userID, id, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": toJobResponse(c, h.storage, *job)})
}

func (h *JobHandler) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.jobs.Delete(c.Request.Context(), userID, id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
