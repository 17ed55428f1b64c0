package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

var systemPrompts = map[model.Mode]string{
	model.ModePropertySearch: "You help buyers narrow down properties on a real-estate marketplace. Ask about budget, location, size and must-haves. Keep answers short.",
	model.ModeGeneralInquiry: "You answer general questions about buying and selling homes on a real-estate marketplace. Keep answers short.",
	model.ModeRecommendation: "You recommend listings that match the stated preferences of a home buyer. Explain each pick in one sentence.",
	model.ModeSupport:        "You are the support desk of a real-estate marketplace. Help with account, listing and viewing problems.",
}

// historyWindow bounds how many past messages are sent with each request.
const historyWindow = 20

// Responder turns a chat history into the next assistant reply.
type Responder struct {
	client Client
	model  string
}

// NewResponder creates a responder over client; an empty modelName uses the provider default.
func NewResponder(client Client, modelName string) *Responder {
	return &Responder{client: client, model: modelName}
}

// Reply generates the assistant answer to the last user message in history.
func (r *Responder) Reply(ctx context.Context, mode model.Mode, history []model.Message, chatCtx model.Context) (string, error) {
	system := systemPrompts[mode]
	if system == "" {
		system = systemPrompts[model.ModeGeneralInquiry]
	}
	if len(chatCtx) > 0 {
		if data, err := json.Marshal(chatCtx); err == nil {
			system += "\nKnown search context: " + string(data)
		}
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	messages := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := r.client.Complete(ctx, &CompletionRequest{
		Model:     r.model,
		System:    system,
		Messages:  messages,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", r.client.Name(), err)
	}
	return resp.Content, nil
}
