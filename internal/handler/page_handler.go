package handler

import (
	"html/template"
	"net/http"

	"careerkit-go/internal/model"
	"careerkit-go/internal/service"
	"careerkit-go/internal/view"
	"careerkit-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// PageHandler 输出服务端渲染的应用页面。
type PageHandler struct {
	store       service.SavedResponseService
	toolService service.ToolService
}

// NewPageHandler 创建一个新的 PageHandler 实例。
func NewPageHandler(store service.SavedResponseService, toolService service.ToolService) *PageHandler {
	return &PageHandler{store: store, toolService: toolService}
}

// Show 渲染整页，已保存列表留空，验证通过后由 /ws/saved 推送填充。
func (h *PageHandler) Show(c *gin.Context) {
	h.render(c, "")
}

// ShowSaved 渲染带有当前已保存列表的整页，需要会话 token。
func (h *PageHandler) ShowSaved(c *gin.Context) {
	h.render(c, template.HTML(h.store.Render()))
}

func (h *PageHandler) render(c *gin.Context, savedList template.HTML) {
	data := view.PageData{SavedList: savedList}
	for _, tool := range model.Tools {
		p, ok := h.toolService.Panel(tool)
		if !ok {
			continue
		}
		data.Panels = append(data.Panels, view.PagePanel{
			Tool:        p.Tool,
			Title:       p.Title,
			Placeholder: p.Placeholder,
			ButtonLabel: p.ButtonLabel,
		})
	}

	page, err := view.RenderPage(data)
	if err != nil {
		log.Error("页面渲染失败", err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
