// Package model 包含了应用的数据模型定义。
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tool 标识生成回答的工具面板。
type Tool string

const (
	ToolResume    Tool = "resume"
	ToolAdvisor   Tool = "advisor"
	ToolInterview Tool = "interview"
)

// Tools 按界面顺序列出所有工具。
var Tools = []Tool{ToolResume, ToolAdvisor, ToolInterview}

// ErrUnknownTool 表示工具名不在固定枚举内。
var ErrUnknownTool = errors.New("unknown tool")

// ParseTool 将字符串解析为 Tool。
func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
	return t, nil
}

// Valid 判断 Tool 是否属于固定枚举。
func (t Tool) Valid() bool {
	switch t {
	case ToolResume, ToolAdvisor, ToolInterview:
		return true
	}
	return false
}

// SavedResponse 是用户保存的一次 AI 交互记录。
// 记录一经创建不会被原地修改，只能整体删除。
type SavedResponse struct {
	ID        int64     `json:"id"`
	Tool      Tool      `json:"tool"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate 校验从持久化存储中读出的记录。
func (r SavedResponse) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("invalid id %d", r.ID)
	}
	if !r.Tool.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, r.Tool)
	}
	if strings.TrimSpace(r.Output) == "" {
		return errors.New("empty output")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("missing createdAt")
	}
	return nil
}
