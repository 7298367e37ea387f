package handler

import (
	"errors"
	"net/http"
	"strconv"

	"careerkit-go/internal/model"
	"careerkit-go/internal/service"
	"careerkit-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SavedHandler 负责已保存回答的列表、新增、删除、搜索与导出。
type SavedHandler struct {
	store         service.SavedResponseService
	searchService service.SearchService
	exportService service.ExportService
}

// NewSavedHandler 创建一个新的 SavedHandler 实例。
func NewSavedHandler(store service.SavedResponseService, searchService service.SearchService, exportService service.ExportService) *SavedHandler {
	return &SavedHandler{store: store, searchService: searchService, exportService: exportService}
}

// SaveRequest 定义了保存接口的请求体结构。
type SaveRequest struct {
	Tool   string `json:"tool" binding:"required"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// List 返回全部已保存回答，最新的在前，并附带存储状态。
func (h *SavedHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"items":  h.store.List(),
			"status": h.store.Status(),
		},
	})
}

// Create 保存一条工具输出。输出为空时不保存。
func (h *SavedHandler) Create(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SaveResponse: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：tool 不能为空", "data": nil})
		return
	}
	tool, err := model.ParseTool(req.Tool)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}

	item, ok := h.store.Add(c.Request.Context(), tool, req.Input, req.Output)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Nothing to save", "data": gin.H{"saved": false, "status": h.store.Status()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Saved",
		"data":    gin.H{"saved": true, "item": item, "status": h.store.Status()},
	})
}

// Delete 删除指定 ID 的记录。不存在的 ID 不报错。
func (h *SavedHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 ID", "data": nil})
		return
	}
	deleted := h.store.Delete(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"deleted": deleted, "status": h.store.Status()},
	})
}

// Search 在已保存回答中全文搜索。
func (h *SavedHandler) Search(c *gin.Context) {
	results, err := h.searchService.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		log.Errorf("Search failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "搜索失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": results})
}

// Export 把当前列表导出到对象存储，并返回下载地址。
func (h *SavedHandler) Export(c *gin.Context) {
	res, err := h.exportService.Export(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrExportDisabled) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": res})
}
