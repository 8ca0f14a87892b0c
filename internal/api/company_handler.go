package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hirehub/internal/api/middleware"
	"hirehub/internal/service"
	"hirehub/internal/storage"
)

// CompanyHandler 处理公司注册、资料与 Logo。
type CompanyHandler struct {
	companies *service.CompanyService
	storage   ObjectStorage
	uploads   *uploadGuard
}

func NewCompanyHandler(companies *service.CompanyService, store ObjectStorage, uploads *uploadGuard) *CompanyHandler {
	return &CompanyHandler{companies: companies, storage: store, uploads: uploads}
}

type companyRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Website     string `json:"website" binding:"omitempty,url,max=512"`
	Description string `json:"description" binding:"max=8000"`
	Location    string `json:"location" binding:"max=255"`
}

func (r companyRequest) input() service.CompanyInput {
	return service.CompanyInput{
		Name:        r.Name,
		Website:     r.Website,
		Description: r.Description,
		Location:    r.Location,
	}
}

func (h *CompanyHandler) Register(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	company, err := h.companies.Register(c.Request.Context(), userID, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	middleware.LoggerFromContext(c).Info("company registered", slog.Uint64("company_id", uint64(company.ID)))
	c.JSON(http.StatusCreated, gin.H{"company": toCompanyResponse(c, h.storage, *company)})
}

func (h *CompanyHandler) ListMine(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	companies, err := h.companies.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]companyResponse, 0, len(companies))
	for _, co := range companies {
		out = append(out, toCompanyResponse(c, h.storage, co))
	}
	c.JSON(http.StatusOK, gin.H{"companies": out})
}

func (h *CompanyHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	company, err := h.companies.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": toCompanyResponse(c, h.storage, *company)})
}

func (h *CompanyHandler) Update(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	company, err := h.companies.Update(c.Request.Context(), userID, id, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": toCompanyResponse(c, h.storage, *company)})
}

// UploadLogo 上传公司 Logo；对象键以公司 ID 分目录。
func (h *CompanyHandler) UploadLogo(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	// 先确认归属，避免为无权操作的请求写入对象
	company, err := h.companies.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if company.UserID != userID {
		Forbidden(c, "you do not own this company")
		return
	}

	file, ok := h.uploads.accept(c, "file", imageMIMEs, true)
	if !ok {
		return
	}
	key, ok := storeUpload(c, h.storage, storage.PrefixLogo, id, file)
	if !ok {
		return
	}
	previous, err := h.companies.SetLogo(c.Request.Context(), userID, id, key)
	if err != nil {
		discardObject(c, h.storage, key)
		respondServiceError(c, err)
		return
	}
	discardObject(c, h.storage, previous)

	company.LogoKey = key
	c.JSON(http.StatusOK, gin.H{"company": toCompanyResponse(c, h.storage, *company)})
}

// Delete 删除公司及其职位、投递与收藏，随后清理 Logo 目录。
func (h *CompanyHandler) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	company, err := h.companies.Delete(c.Request.Context(), userID, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.Uint64("company_id", uint64(company.ID)))
	if err := h.storage.DeletePrefix(c.Request.Context(), storage.OwnerPrefix(storage.PrefixLogo, company.ID)); err != nil {
		logger.Warn("delete company logos failed", slog.Any("error", err))
	}
	logger.Info("company deleted")
	c.Status(http.StatusNoContent)
}
