package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hirehub/internal/api/middleware"
	"hirehub/internal/auth"
	"hirehub/internal/config"
	"hirehub/internal/database"
	"hirehub/internal/tasks"
)

const (
	refreshTokenCookieName = "refresh_token"
	verificationTokenTTL   = 24 * time.Hour
	resetTokenTTL          = time.Hour
	resendPerHour          = 3
)

// AuthHandler 处理注册、邮箱验证、登录、令牌轮换与密码找回。
type AuthHandler struct {
	db                    *gorm.DB
	authService           *auth.AuthService
	redis                 redis.UniversalClient
	queue                 TaskEnqueuer
	storage               ObjectStorage
	logger                *slog.Logger
	loginRateLimitPerHour int
	loginLockThreshold    int
	loginLockTTL          time.Duration
	cookieDomain          string
	frontendBaseURL       string
	requireVerified       bool
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(
	db *gorm.DB,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	queue TaskEnqueuer,
	store ObjectStorage,
	logger *slog.Logger,
	apiCfg config.APIConfig,
	limits config.LimitsConfig,
) *AuthHandler {
	return &AuthHandler{
		db:                    db,
		authService:           authService,
		redis:                 redisClient,
		queue:                 queue,
		storage:               store,
		logger:                logger,
		loginRateLimitPerHour: limits.LoginRatePerHour,
		loginLockThreshold:    limits.LoginLockThreshold,
		loginLockTTL:          limits.LoginLockTTL,
		cookieDomain:          strings.TrimSpace(apiCfg.CookieDomain),
		frontendBaseURL:       strings.TrimRight(apiCfg.FrontendBaseURL, "/"),
		requireVerified:       apiCfg.RequireVerifiedLogin,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"required,oneof=recruiter candidate"`
}

// Register 创建账号并投递验证邮件。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		logger.Info("register conflict: email already registered")
		Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	plain, tokenHash, err := auth.NewOneTimeToken()
	if err != nil {
		logger.Error("generate verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	expires := time.Now().Add(verificationTokenTTL)

	user := database.User{
		Name:                  strings.TrimSpace(req.Name),
		Email:                 email,
		PasswordHash:          hashed,
		Role:                  req.Role,
		VerificationTokenHash: tokenHash,
		VerificationExpiresAt: &expires,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			Conflict(c, "email already registered")
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.sendVerification(c, user, plain)
	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, gin.H{"user": toUserResponse(c, h.storage, user)})
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyEmail 使用邮件中的令牌完成邮箱验证。
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var user database.User
	err := h.db.WithContext(ctx).
		Where("verification_token_hash = ?", auth.HashOneTimeToken(req.Token)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && expired(user.VerificationExpiresAt)) {
		BadRequest(c, "invalid or expired token")
		return
	}
	if err != nil {
		logger.Error("verify email lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"verified":                true,
		"verification_token_hash": "",
		"verification_expires_at": nil,
	}).Error; err != nil {
		logger.Error("mark email verified failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("email verified", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, gin.H{"message": "email verified"})
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResendVerification 重新发送验证邮件；无论账号是否存在都返回 200。
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))
	reply := func() {
		c.JSON(http.StatusOK, gin.H{"message": "if the account exists and is unverified, a new email has been sent"})
	}

	count, err := incrWithTTL(ctx, h.redis, resendRatePrefix+email, time.Hour)
	if err == nil && count > resendPerHour {
		TooManyRequests(c, "too many requests")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("resend lookup failed", slog.Any("error", err))
		}
		reply()
		return
	}
	if user.Verified {
		reply()
		return
	}

	plain, tokenHash, err := auth.NewOneTimeToken()
	if err != nil {
		logger.Error("generate verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	expires := time.Now().Add(verificationTokenTTL)
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"verification_token_hash": tokenHash,
		"verification_expires_at": expires,
	}).Error; err != nil {
		logger.Error("store verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.sendVerification(c, user, plain)
	reply()
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验口令，写入 access/refresh Cookie。
func (h *AuthHandler) Login(c *gin.Context) {
	ip := c.ClientIP()
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	// 速率限制：每 IP+邮箱 每小时
	rateKey := loginRatePrefix + ip + ":" + email + ":" + time.Now().UTC().Format("2006010215")
	count, err := incrWithTTL(ctx, h.redis, rateKey, time.Hour)
	if err != nil {
		logger.Warn("login rate counter unavailable", slog.Any("error", err))
		count = 0
	}
	if count > int64(h.loginRateLimitPerHour) {
		TooManyRequests(c, "rate limit exceeded")
		return
	}

	if ttl, _ := h.redis.TTL(ctx, loginLockPrefix+email).Result(); ttl > 0 {
		TooManyRequests(c, "account temporarily locked")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			auth.BurnPasswordCheck(req.Password)
			_ = h.incrementLoginFail(ctx, email)
			Error(c, http.StatusUnauthorized, "invalid email or password")
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		_ = h.incrementLoginFail(ctx, email)
		Error(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if h.requireVerified && !user.Verified {
		Forbidden(c, "email not verified")
		return
	}

	_ = h.redis.Del(ctx, loginFailPrefix+email).Err()

	tokenPair, err := h.authService.GenerateTokenPair(user.TokenSubject())
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)))
	h.replyWithTokenPair(c, tokenPair, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并轮换。
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken := h.extractRefreshToken(c)
	if refreshToken == "" {
		Unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	claims, ok := h.claimRefreshToken(c, refreshToken)
	if !ok {
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	// 改密或重置后版本号递增，此前签发的刷新令牌一律失效
	if claims.TokenVersion != user.TokenVersion {
		logger.Info("refresh token version stale",
			slog.Uint64("user_id", uint64(user.ID)),
			slog.Uint64("token_version", uint64(claims.TokenVersion)))
		Unauthorized(c)
		return
	}

	tokenPair, err := h.authService.GenerateTokenPair(user.TokenSubject())
	if err != nil {
		logger.Error("refresh generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.replyWithTokenPair(c, tokenPair, user)
}

// Logout 吊销刷新令牌并清除 Cookie；重复调用也返回 200。
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if refreshToken := h.extractRefreshToken(c); refreshToken != "" {
		claims, err := h.authService.ValidateToken(refreshToken)
		if err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.revokeRefreshToken(ctx, refreshBlacklistPrefix+claims.ID, claims.ExpiresAt); err != nil {
				logger.Error("logout revoke token failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ForgotPassword 投递重置邮件；无论账号是否存在都返回 200。
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))
	reply := func() {
		c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset email has been sent"})
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("forgot password lookup failed", slog.Any("error", err))
		}
		reply()
		return
	}

	plain, tokenHash, err := auth.NewOneTimeToken()
	if err != nil {
		logger.Error("generate reset token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	expires := time.Now().Add(resetTokenTTL)
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"reset_token_hash": tokenHash,
		"reset_expires_at": expires,
	}).Error; err != nil {
		logger.Error("store reset token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	enqueueEmail(c, h.queue, user.Email, tasks.TemplateResetPassword, map[string]string{
		"name": user.Name,
		"link": h.frontendBaseURL + "/reset-password?token=" + url.QueryEscape(plain),
	})
	reply()
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// ResetPassword 使用重置令牌设置新密码。
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var user database.User
	err := h.db.WithContext(ctx).
		Where("reset_token_hash = ?", auth.HashOneTimeToken(req.Token)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && expired(user.ResetExpiresAt)) {
		BadRequest(c, "invalid or expired token")
		return
	}
	if err != nil {
		logger.Error("reset lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"reset_token_hash":     "",
		"reset_expires_at":     nil,
		"must_change_password": false,
		"token_version":        gorm.Expr("token_version + 1"),
	}).Error; err != nil {
		logger.Error("reset password update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	_ = h.redis.Del(ctx, loginFailPrefix+user.Email, loginLockPrefix+user.Email).Err()
	logger.Info("password reset", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
}

// ChangePassword 校验当前密码并更新为新密码，同时轮换令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		logger.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		BadRequest(c, "current password is incorrect")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		BadRequest(c, "new password must be different from current password")
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
		"token_version":        gorm.Expr("token_version + 1"),
	}).Error; err != nil {
		logger.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	// Expr 不会回写，重新读取以签发新版本号的令牌
	if err := h.db.WithContext(ctx).First(&user, user.ID).Error; err != nil {
		logger.Error("change password: reload user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if refreshToken, err := c.Cookie(refreshTokenCookieName); err == nil && refreshToken != "" {
		if claims, err := h.authService.ValidateToken(refreshToken); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.revokeRefreshToken(ctx, refreshBlacklistPrefix+claims.ID, claims.ExpiresAt); err != nil {
				logger.Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	tokenPair, err := h.authService.GenerateTokenPair(user.TokenSubject())
	if err != nil {
		logger.Error("change password: generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.replyWithTokenPair(c, tokenPair, user)
}

// Me 返回当前登录用户。
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c)
			return
		}
		middleware.LoggerFromContext(c).Error("load current user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(c, h.storage, user)})
}

type tokenResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
}

func (h *AuthHandler) replyWithTokenPair(c *gin.Context, tokenPair auth.TokenPair, user database.User) {
	h.setCookie(c, middleware.AccessTokenCookie, tokenPair.AccessToken, h.authService.AccessTokenTTL())
	h.setCookie(c, refreshTokenCookieName, tokenPair.RefreshToken, h.authService.RefreshTokenTTL())
	c.JSON(http.StatusOK, tokenResponse{
		User:        toUserResponse(c, h.storage, user),
		AccessToken: tokenPair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.authService.AccessTokenTTL().Seconds()),
	})
}

func (h *AuthHandler) sendVerification(c *gin.Context, user database.User, plain string) {
	enqueueEmail(c, h.queue, user.Email, tasks.TemplateVerifyEmail, map[string]string{
		"name": user.Name,
		"link": h.frontendBaseURL + "/verify-email?token=" + url.QueryEscape(plain),
	})
}

// claimRefreshToken 校验刷新令牌类型与 jti，并用 SETNX 原子占用 jti 完成轮换：
// 同一令牌并发刷新时只有一个请求能占用成功。失败时已写入响应。
func (h *AuthHandler) claimRefreshToken(c *gin.Context, refreshToken string) (*auth.TokenClaims, bool) {
	logger := middleware.LoggerFromContext(c)

	claims, err := h.authService.ValidateToken(refreshToken)
	if err != nil {
		logger.Info("refresh token invalid", slog.Any("error", err))
		Unauthorized(c)
		return nil, false
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		logger.Info("refresh token wrong type", slog.String("token_type", claims.TokenType))
		Unauthorized(c)
		return nil, false
	}

	key := refreshBlacklistPrefix + claims.ID
	claimed, err := h.redis.SetNX(c.Request.Context(), key, "revoked", h.revocationTTL(claims.ExpiresAt)).Result()
	if err != nil {
		logger.Error("refresh token claim failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, false
	}
	if !claimed {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   h.cookieDomain,
		Expires:  time.Now().Add(ttl),
	})
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   isHTTPSRequest(c),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Domain:   h.cookieDomain,
		})
	}
}

func (h *AuthHandler) revokeRefreshToken(ctx context.Context, key string, expiresAt *jwt.NumericDate) error {
	return h.redis.Set(ctx, key, "revoked", h.revocationTTL(expiresAt)).Err()
}

// revocationTTL 让黑名单条目与令牌同时过期。
func (h *AuthHandler) revocationTTL(expiresAt *jwt.NumericDate) time.Duration {
	var ttl time.Duration
	if expiresAt == nil {
		ttl = h.authService.RefreshTokenTTL()
	} else {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (h *AuthHandler) incrementLoginFail(ctx context.Context, email string) error {
	count, err := incrWithTTL(ctx, h.redis, loginFailPrefix+email, h.loginLockTTL)
	if err != nil {
		return err
	}
	if count >= int64(h.loginLockThreshold) {
		return h.redis.Set(ctx, loginLockPrefix+email, "1", h.loginLockTTL).Err()
	}
	return nil
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func expired(t *time.Time) bool {
	return t == nil || time.Now().After(*t)
}
