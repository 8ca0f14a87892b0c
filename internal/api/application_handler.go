package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hirehub/internal/api/middleware"
	"hirehub/internal/database"
	"hirehub/internal/service"
	"hirehub/internal/tasks"
)

// ApplicationHandler 处理投递、审核与撤回。
type ApplicationHandler struct {
	applications *service.ApplicationService
	storage      ObjectStorage
	queue        TaskEnqueuer
}

func NewApplicationHandler(applications *service.ApplicationService, store ObjectStorage, queue TaskEnqueuer) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, storage: store, queue: queue}
}

func (h *ApplicationHandler) Apply(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	app, err := h.applications.Apply(c.Request.Context(), userID, jobID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	middleware.LoggerFromContext(c).Info("application submitted",
		slog.Uint64("application_id", uint64(app.ID)),
		slog.Uint64("job_id", uint64(jobID)),
	)
	c.JSON(http.StatusCreated, gin.H{"application": toApplicationResponse(c, h.storage, *app)})
}

func (h *ApplicationHandler) ListMine(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	apps, err := h.applications.ListByApplicant(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": toApplicationResponses(c, h.storage, apps)})
}

// ListByJob 职位发布者查看候选人。
func (h *ApplicationHandler) ListByJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	job, apps, err := h.applications.ListByJob(c.Request.Context(), userID, jobID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":          toJobResponse(c, h.storage, *job),
		"applications": toApplicationResponses(c, h.storage, apps),
	})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 接受或拒绝投递，并通知相关求职者。
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	change, err := h.applications.UpdateStatus(c.Request.Context(), userID, id, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.LoggerFromContext(c).Info("application status updated",
		slog.Uint64("application_id", uint64(change.Application.ID)),
		slog.String("status", change.Application.Status),
		slog.Int("auto_rejected", len(change.AutoRejected)),
	)

	h.notifyStatus(c, change.Application)
	for _, rejected := range change.AutoRejected {
		h.notifyStatus(c, rejected)
	}

	c.JSON(http.StatusOK, gin.H{
		"application":   toApplicationResponse(c, h.storage, change.Application),
		"auto_rejected": len(change.AutoRejected),
	})
}

func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	app, err := h.applications.Withdraw(c.Request.Context(), userID, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application": toApplicationResponse(c, h.storage, *app)})
}

func (h *ApplicationHandler) notifyStatus(c *gin.Context, app database.Application) {
	if app.Applicant.Email == "" {
		return
	}
	enqueueEmail(c, h.queue, app.Applicant.Email, tasks.TemplateApplicationStatus, map[string]string{
		"name":      app.Applicant.Name,
		"job_title": app.Job.Title,
		"company":   app.Job.Company.Name,
		"status":    app.Status,
	})
}
