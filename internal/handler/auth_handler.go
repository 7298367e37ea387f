package handler

import (
	"errors"
	"net/http"

	"careerkit-go/internal/service"
	"careerkit-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责模拟登录与两步验证。
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChallengeRequest 定义了发送验证码 API 的请求体结构。
type ChallengeRequest struct {
	Challenge string `json:"challenge" binding:"required"`
}

// VerifyRequest 定义了校验验证码 API 的请求体结构。
type VerifyRequest struct {
	Challenge string `json:"challenge" binding:"required"`
	Code      string `json:"code"`
}

// Login 处理登录请求，成功后进入两步验证。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	_ = c.ShouldBindJSON(&req)

	challenge, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"challenge": challenge}})
}

// SendCode 生成一个新的演示验证码。
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, service.ErrUnknownChallenge)
		return
	}
	code, err := h.authService.SendCode(c.Request.Context(), req.Challenge)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Demo code (for prototype only): " + code,
		"data":    gin.H{"code": code},
	})
}

// Verify 校验验证码并签发会话 token。
func (h *AuthHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, service.ErrUnknownChallenge)
		return
	}
	sessionToken, err := h.authService.Verify(c.Request.Context(), req.Challenge, req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Code verified.", "data": gin.H{"token": sessionToken}})
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrUnknownChallenge),
		errors.Is(err, service.ErrNoCode):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrIncorrectCode):
		status = http.StatusUnauthorized
	default:
		log.Errorf("Auth: unexpected error: %v", err)
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}
