package toolkit

import (
	"context"
	"errors"

	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/internal/workflow/prompt"
)

var errGeneratorUnavailable = errors.New("text generator not configured")

type llmToolDef struct {
	id          string
	name        string
	cost        int64
	resultField string
	required    []string
	prompt      prompt.PromptID
	// optional 可选字段及其默认值
	optional map[string]string
}

func newLLMTool(deps Deps, td llmToolDef) *Tool {
	return &Tool{
		ID:          td.id,
		DisplayName: td.name,
		Cost:        td.cost,
		ResultField: td.resultField,
		Required:    td.required,
		Compute: func(ctx context.Context, req *Request) (any, error) {
			if deps.Generator == nil {
				return nil, errGeneratorUnavailable
			}

			vars := make(map[string]any, len(td.required)+len(td.optional)+1)
			for _, f := range td.required {
				vars[f] = req.Field(f)
			}
			for f, def := range td.optional {
				vars[f] = req.FieldOr(f, def)
			}
			vars[prompt.VarLanguageInstruction] = prompt.LanguageInstruction(req.Language)

			msgs, err := deps.Prompts.Render(ctx, td.prompt, vars)
			if err != nil {
				return nil, err
			}
			return deps.Generator.Generate(service.WithTool(ctx, td.id), msgs)
		},
	}
}
