package handler

import (
	"errors"
	"io"
	"net/http"

	"careerkit-go/internal/model"
	"careerkit-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ToolHandler 负责运行三个工具面板。
type ToolHandler struct {
	toolService service.ToolService
}

// NewToolHandler 创建一个新的 ToolHandler 实例。
func NewToolHandler(toolService service.ToolService) *ToolHandler {
	return &ToolHandler{toolService: toolService}
}

// RunToolRequest 定义了运行工具的请求体结构。
type RunToolRequest struct {
	Input string `json:"input"`
}

// Panels 返回各面板当前的忙碌状态和按钮文案。
func (h *ToolHandler) Panels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.toolService.Panels()})
}

// Run 运行一个工具。中继失败时 output 是固定的错误文案，状态码仍为 200。
func (h *ToolHandler) Run(c *gin.Context) {
	tool, err := model.ParseTool(c.Param("tool"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	// 空请求体等同于空输入，面板自行决定拒绝还是使用默认值
	var req RunToolRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	output, err := h.toolService.Run(c.Request.Context(), tool, req.Input)
	if err != nil {
		var inputErr *service.InputError
		switch {
		case errors.As(err, &inputErr):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": inputErr.Message, "data": nil})
		case errors.Is(err, service.ErrPanelBusy):
			c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": service.BusyLabel, "data": nil})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": nil})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"output": output}})
}
