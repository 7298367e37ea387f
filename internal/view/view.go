// Package view 负责把内存中的状态渲染成页面片段。
// 渲染只读取传入的数据，不会修改任何状态，可以被重复调用。
package view

import (
	"bytes"
	"embed"
	"html/template"

	"careerkit-go/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"localtime": func(r model.SavedResponse) string { return model.LocalTime(r.CreatedAt).String() },
}).ParseFS(templateFS, "templates/*.html"))

// SavedListData 是已保存回答列表片段的渲染输入。
type SavedListData struct {
	Items []model.SavedResponse
}

// PagePanel 描述一个工具面板在页面上的静态信息。
type PagePanel struct {
	Tool        model.Tool
	Title       string
	Placeholder string
	ButtonLabel string
}

// PageData 是整页渲染的输入。
type PageData struct {
	Panels    []PagePanel
	SavedList template.HTML
}

// RenderSavedList 渲染已保存回答列表。每次调用都会生成完整的片段，用于整体替换旧内容。
func RenderSavedList(items []model.SavedResponse) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "saved_list.html", SavedListData{Items: items}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPage 渲染应用主页面。
func RenderPage(data PageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "page.html", data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
