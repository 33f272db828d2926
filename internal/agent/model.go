package agent

import (
	"context"
	"fmt"
	"time"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
)

// modelCaller funnels every language-model call through the shared rate
// limiter and reports it on the notice bus.
type modelCaller struct {
	provider domain.Provider
	limiter  *RateLimiter
	notices  *bus.NoticeBus
	source   string
}

func (m modelCaller) chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if m.provider == nil {
		return "", fmt.Errorf("%s: no model provider configured", m.source)
	}
	if m.limiter != nil {
		waited, err := m.limiter.Wait(ctx)
		if err != nil {
			return "", err
		}
		if waited > 0 {
			m.notices.Emit(bus.Notice{Type: bus.NoticeModelThrottled, Source: m.source, Payload: map[string]any{"wait": waited}})
		}
	}
	start := time.Now()
	resp, err := m.provider.Chat(ctx, req)
	m.notices.Emit(bus.Notice{
		Type:   bus.NoticeModelRequest,
		Source: m.source,
		Payload: map[string]any{
			"provider": m.provider.Name(),
			"duration": time.Since(start),
			"failed":   err != nil,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", m.provider.Name(), err)
	}
	if resp == nil {
		return "", fmt.Errorf("%s: empty response", m.provider.Name())
	}
	return resp.Content, nil
}

func userPrompt(prompt string) []domain.Message {
	return []domain.Message{{Role: "user", Content: prompt}}
}
