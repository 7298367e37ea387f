package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"careerkit-go/internal/model"
	"careerkit-go/pkg/log"
)

// BusyLabel 是面板请求进行中时触发按钮上显示的文字。
const BusyLabel = "Thinking..."

// ErrPanelBusy 表示同一面板已有一个未完成的请求。
var ErrPanelBusy = errors.New("panel is busy")

// InputError 表示用户输入不满足面板要求，Message 直接展示给用户。
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Relayer 调用 AI 中继，失败时返回固定的展示文案而不是错误。
type Relayer interface {
	Call(ctx context.Context, systemPrompt, userPrompt string) string
}

// Panel 定义一个工具面板：固定的 system prompt 与用户输入的组装方式。
type Panel struct {
	Tool         model.Tool
	Title        string
	Placeholder  string
	ButtonLabel  string
	SystemPrompt string
	// EmptyMessage 非空时，空输入会被拒绝并返回该提示；否则使用 DefaultInput。
	EmptyMessage string
	DefaultInput string
	InputLabel   string

	busy atomic.Bool
}

// UserPrompt 给用户的原始输入加上标签。
func (p *Panel) UserPrompt(input string) string {
	return p.InputLabel + input
}

// enter 进入忙碌状态，返回的函数恢复就绪状态。
func (p *Panel) enter() (release func(), err error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrPanelBusy
	}
	return func() { p.busy.Store(false) }, nil
}

// PanelState 是面板对外展示的状态。
type PanelState struct {
	Tool        model.Tool `json:"tool"`
	Title       string     `json:"title"`
	Busy        bool       `json:"busy"`
	ButtonLabel string     `json:"buttonLabel"`
}

// DefaultPanels 返回三个工具面板的定义。
func DefaultPanels() []*Panel {
	return []*Panel{
		{
			Tool:        model.ToolResume,
			Title:       "Resume Feedback",
			Placeholder: "Paste a resume bullet...",
			ButtonLabel: "Get AI feedback",
			SystemPrompt: "You help underserved students improve resume bullets. " +
				"Give kind, specific feedback and one improved version. " +
				"Avoid exaggeration and stay ethical.",
			EmptyMessage: "Paste a resume bullet first.",
			InputLabel:   "Resume bullet:\n",
		},
		{
			Tool:        model.ToolAdvisor,
			Title:       "Career Advisor",
			Placeholder: "Describe the student's background...",
			ButtonLabel: "Get career suggestions",
			SystemPrompt: "You are an ethical career counselor serving underserved students. " +
				"Suggest realistic paths, explain tradeoffs, and note missing info.",
			EmptyMessage: "Describe the student's background first.",
			InputLabel:   "Student background:\n",
		},
		{
			Tool:        model.ToolInterview,
			Title:       "Interview Practice",
			Placeholder: "Target role (optional)",
			ButtonLabel: "Generate practice questions",
			SystemPrompt: "Generate clear interview questions for students. " +
				"Mix behavioral and role-specific questions. Number them.",
			DefaultInput: "entry level opportunity",
			InputLabel:   "Target role: ",
		},
	}
}

// ToolService 运行工具面板。
type ToolService interface {
	Run(ctx context.Context, tool model.Tool, input string) (string, error)
	Panels() []PanelState
	Panel(tool model.Tool) (*Panel, bool)
}

type toolService struct {
	relay  Relayer
	panels []*Panel
	byTool map[model.Tool]*Panel
}

// NewToolService 创建一个新的 ToolService 实例。
func NewToolService(relay Relayer, panels []*Panel) ToolService {
	byTool := make(map[model.Tool]*Panel, len(panels))
	for _, p := range panels {
		byTool[p.Tool] = p
	}
	return &toolService{relay: relay, panels: panels, byTool: byTool}
}

// Run 校验输入、进入忙碌状态、调用中继并在任何退出路径上恢复面板。
// 同一面板同时只能有一个请求；不同面板之间互不影响。
func (s *toolService) Run(ctx context.Context, tool model.Tool, input string) (string, error) {
	p, ok := s.byTool[tool]
	if !ok {
		return "", model.ErrUnknownTool
	}

	text := strings.TrimSpace(input)
	if text == "" {
		if p.EmptyMessage != "" {
			return "", &InputError{Message: p.EmptyMessage}
		}
		text = p.DefaultInput
	}

	release, err := p.enter()
	if err != nil {
		return "", err
	}
	defer release()

	log.Infof("[ToolService] 调用中继, tool: %s", tool)
	return s.relay.Call(ctx, p.SystemPrompt, p.UserPrompt(text)), nil
}

func (s *toolService) Panels() []PanelState {
	states := make([]PanelState, 0, len(s.panels))
	for _, p := range s.panels {
		st := PanelState{Tool: p.Tool, Title: p.Title, ButtonLabel: p.ButtonLabel}
		if p.busy.Load() {
			st.Busy = true
			st.ButtonLabel = BusyLabel
		}
		states = append(states, st)
	}
	return states
}

func (s *toolService) Panel(tool model.Tool) (*Panel, bool) {
	p, ok := s.byTool[tool]
	return p, ok
}
