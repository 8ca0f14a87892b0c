package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hirehub/internal/service"
)

// SavedJobHandler 处理职位收藏。
type SavedJobHandler struct {
	saved   *service.SavedJobService
	storage ObjectStorage
}

func NewSavedJobHandler(saved *service.SavedJobService, store ObjectStorage) *SavedJobHandler {
	return &SavedJobHandler{saved: saved, storage: store}
}

func (h *SavedJobHandler) Save(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "jobId")
	if !ok {
		return
	}
	saved, err := h.saved.Save(c.Request.Context(), userID, jobID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved_job": savedJobResponse{
		ID:        saved.ID,
		JobID:     saved.JobID,
		CreatedAt: saved.CreatedAt,
	}})
}

func (h *SavedJobHandler) Unsave(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "jobId")
	if !ok {
		return
	}
	if err := h.saved.Unsave(c.Request.Context(), userID, jobID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SavedJobHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	saved, err := h.saved.List(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]savedJobResponse, 0, len(saved))
	for _, s := range saved {
		job := toJobResponse(c, h.storage, s.Job)
		out = append(out, savedJobResponse{
			ID:        s.ID,
			JobID:     s.JobID,
			CreatedAt: s.CreatedAt,
			Job:       &job,
		})
	}
	c.JSON(http.StatusOK, gin.H{"saved_jobs": out})
}
