// Package toolkit 提供按次计费的工具执行：字段校验、余额预检、计算与扣费
package toolkit

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/internal/workflow/prompt"
)

// 工具 ID
const (
	ToolSentimentAnalysis   = "sentiment-analysis"
	ToolReleaseNotes        = "release-notes"
	ToolOnboardingChecklist = "onboarding-checklist"
	ToolToneAdjustment      = "tone-adjustment"
	ToolTextSummarization   = "text-summarization"
	ToolObjectionHandling   = "objection-handling"
	ToolPersonaGeneration   = "persona-generation"
	ToolCompetitorAnalysis  = "competitor-analysis"
	ToolPostScheduler       = "post-scheduler"
)

// 支持的回复语言
const (
	LanguageEnglish = "en"
	LanguageTurkish = "tr"
)

// NormalizeLanguage 非 en/tr 一律回落到 en
func NormalizeLanguage(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), LanguageTurkish) {
		return LanguageTurkish
	}
	return LanguageEnglish
}

// Request 一次工具调用的输入
type Request struct {
	UserID    string
	Language  string
	RequestID string
	Fields    map[string]string
}

// Field 返回去除首尾空白后的字段值
func (r *Request) Field(name string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[name])
}

// FieldOr 字段为空时返回默认值
func (r *Request) FieldOr(name, fallback string) string {
	if v := r.Field(name); v != "" {
		return v
	}
	return fallback
}

// Tool 一个计费工具的定义
type Tool struct {
	ID          string
	DisplayName string
	Cost        int64
	ResultField string
	Required    []string
	Compute     func(ctx context.Context, req *Request) (any, error)
	// Preview 为空时使用 defaultPreview
	Preview func(req *Request, result any) (in, out string)
}

// Free 免费工具不经过账本
func (t *Tool) Free() bool {
	return t.Cost <= 0
}

func (t *Tool) previews(req *Request, result any) (string, string) {
	var in, out string
	if t.Preview != nil {
		in, out = t.Preview(req, result)
	} else {
		in, out = defaultPreview(t.Required, req, result)
	}
	return entity.TruncatePreview(in), entity.TruncatePreview(out)
}

func defaultPreview(fields []string, req *Request, result any) (string, string) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := req.Field(f); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | "), stringifyResult(result)
}

func stringifyResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Deps 工具计算依赖
type Deps struct {
	Generator  service.TextGenerator
	Classifier service.TextClassifier
	Summarizer service.TextSummarizer
	Prompts    *prompt.Registry
	Now        func() time.Time
}

// Catalog 工具目录
type Catalog struct {
	tools map[string]*Tool
}

// NewCatalog 构建全部工具，costs 覆盖默认价格
func NewCatalog(deps Deps, costs map[string]int64) *Catalog {
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewRegistry()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	tools := []*Tool{
		newSentimentTool(deps.Classifier),
		newLLMTool(deps, llmToolDef{
			id: ToolReleaseNotes, name: "Release Notes Generator", cost: 2,
			resultField: "releaseNotes", required: []string{"changes"},
			prompt: prompt.PromptReleaseNotesV1,
		}),
		newLLMTool(deps, llmToolDef{
			id: ToolOnboardingChecklist, name: "Onboarding Checklist", cost: 2,
			resultField: "checklist", required: []string{"product"},
			prompt:   prompt.PromptOnboardingChecklistV1,
			optional: map[string]string{"audience": "new customers"},
		}),
		newLLMTool(deps, llmToolDef{
			id: ToolToneAdjustment, name: "Tone Adjuster", cost: 2,
			resultField: "adjustedText", required: []string{"text", "tone"},
			prompt: prompt.PromptToneAdjustmentV1,
		}),
		newSummarizationTool(deps.Summarizer),
		newLLMTool(deps, llmToolDef{
			id: ToolObjectionHandling, name: "Objection Handler", cost: 3,
			resultField: "response", required: []string{"message"},
			prompt:   prompt.PromptObjectionHandlingV1,
			optional: map[string]string{"product": "our product"},
		}),
		newLLMTool(deps, llmToolDef{
			id: ToolPersonaGeneration, name: "Persona Generator", cost: 3,
			resultField: "persona", required: []string{"product"},
			prompt:   prompt.PromptPersonaGenerationV1,
			optional: map[string]string{"industry": "general"},
		}),
		newCompetitorTool(),
		newSchedulerTool(deps.Now),
	}

	c := &Catalog{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if cost, ok := costs[t.ID]; ok && cost >= 0 {
			t.Cost = cost
		}
		c.tools[t.ID] = t
	}
	return c
}

// Get 按 ID 获取工具
func (c *Catalog) Get(id string) (*Tool, error) {
	t, ok := c.tools[id]
	if !ok {
		return nil, ErrUnknownTool
	}
	return t, nil
}

// List 按价格、ID 排序返回全部工具
func (c *Catalog) List() []*Tool {
	out := make([]*Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	return out
}
