package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hirehub/internal/service"
	"hirehub/internal/storage"
)

// UserHandler 处理个人资料、头像与简历。
type UserHandler struct {
	users   *service.UserService
	storage ObjectStorage
	uploads *uploadGuard
}

func NewUserHandler(users *service.UserService, store ObjectStorage, uploads *uploadGuard) *UserHandler {
	return &UserHandler{users: users, storage: store, uploads: uploads}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(c, h.storage, *user)})
}

type profileRequest struct {
	Name   string   `json:"name" binding:"required,max=128"`
	Phone  string   `json:"phone" binding:"max=32"`
	Bio    string   `json:"bio" binding:"max=4000"`
	Skills []string `json:"skills" binding:"max=50,dive,max=64"`
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), userID, service.ProfileInput{
		Name:   req.Name,
		Phone:  req.Phone,
		Bio:    req.Bio,
		Skills: req.Skills,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(c, h.storage, *user)})
}

// UploadPicture 上传头像并删除旧对象。
func (h *UserHandler) UploadPicture(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	file, ok := h.uploads.accept(c, "file", imageMIMEs, true)
	if !ok {
		return
	}
	key, ok := storeUpload(c, h.storage, storage.PrefixAvatar, userID, file)
	if !ok {
		return
	}

	previous, err := h.users.SetProfilePicture(c.Request.Context(), userID, key)
	if err != nil {
		discardObject(c, h.storage, key)
		respondServiceError(c, err)
		return
	}
	discardObject(c, h.storage, previous)

	h.replyCurrent(c, userID)
}

// UploadResume 仅求职者可用，只接受 PDF。
func (h *UserHandler) UploadResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	file, ok := h.uploads.accept(c, "file", resumeMIMEs, true)
	if !ok {
		return
	}
	key, ok := storeUpload(c, h.storage, storage.PrefixResume, userID, file)
	if !ok {
		return
	}

	previous, err := h.users.SetResume(c.Request.Context(), userID, key, file.Filename)
	if err != nil {
		discardObject(c, h.storage, key)
		respondServiceError(c, err)
		return
	}
	discardObject(c, h.storage, previous)

	h.replyCurrent(c, userID)
}

// GetPublic 返回他人的公开资料。
func (h *UserHandler) GetPublic(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toPublicUserResponse(c, h.storage, *user)})
}

func (h *UserHandler) replyCurrent(c *gin.Context, userID uint) {
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(c, h.storage, *user)})
}
