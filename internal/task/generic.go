package task

import (
	"context"
	"errors"

	"github.com/KaramelBytes/analyst/internal/llm"
	"github.com/KaramelBytes/analyst/internal/utils"
)

const genericSystemPrompt = `You are a data analyst. Answer the user's questions exactly in the
requested structure. Reply with a single JSON value (array or object) and nothing else.`

// maxPromptRunes bounds the task text forwarded to the model.
const maxPromptRunes = 24000

func (d *Dispatcher) generic(ctx context.Context, t Descriptor) (any, error) {
	placeholder := func() (any, error) {
		uri, err := d.defaultPlot(ctx, t)()
		if err != nil {
			return nil, err
		}
		return []any{"Analysis completed", "Generic result", 0.5, uri}, nil
	}
	if d.deps.LLM == nil {
		return placeholder()
	}
	return d.answer(ctx, KindGeneric, 0, t.Text, placeholder, func() (any, error) {
		reply, err := d.deps.LLM.Complete(ctx, genericSystemPrompt, utils.Truncate(t.Text, maxPromptRunes, "\n[truncated]"))
		if err != nil {
			return nil, err
		}
		v, err := llm.DecodeJSON(reply)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, errors.New("model returned null")
		}
		return v, nil
	})
}
