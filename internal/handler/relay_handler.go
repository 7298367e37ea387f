// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"

	"careerkit-go/internal/service"
	"careerkit-go/pkg/llm"
	"careerkit-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RelayHandler 实现 POST /api/ai。它的响应格式是浏览器端已经依赖的扁平 JSON，不使用 code/message 信封。
type RelayHandler struct {
	relayService service.RelayService
}

// NewRelayHandler 创建一个新的 RelayHandler 实例。
func NewRelayHandler(relayService service.RelayService) *RelayHandler {
	return &RelayHandler{relayService: relayService}
}

// AIRequest 定义了中继接口的请求体结构。
type AIRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	UserPrompt   string `json:"userPrompt"`
}

// Generate 把两段 prompt 转发给上游模型并返回生成的文本。
func (h *RelayHandler) Generate(c *gin.Context) {
	var req AIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Relay: Invalid request payload, error: %v", err)
		req = AIRequest{}
	}

	text, err := h.relayService.Generate(c.Request.Context(), req.SystemPrompt, req.UserPrompt)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"text": text})
		return
	}

	var upErr *llm.UpstreamError
	switch {
	case errors.Is(err, service.ErrMissingPrompts):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing prompts"})
	case errors.Is(err, service.ErrUpstreamNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "HF API key not configured",
			"details": "Set HF_API_KEY in your environment before running the server.",
		})
	case errors.As(err, &upErr):
		c.JSON(upErr.StatusCode, gin.H{
			"error":   fmt.Sprintf("HF error %d", upErr.StatusCode),
			"details": upErr.Body,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
