package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

type recordingClient struct {
	last *CompletionRequest
	err  error
}

func (c *recordingClient) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	c.last = req
	if c.err != nil {
		return nil, c.err
	}
	return &CompletionResponse{Content: "Here are three homes."}, nil
}

func (c *recordingClient) Name() string { return "recording" }

func TestResponderReply(t *testing.T) {
	client := &recordingClient{}
	r := NewResponder(client, "")

	history := []model.Message{
		{Role: model.RoleSystem, Content: "welcome"},
		{Role: model.RoleUser, Content: "3 bedrooms in Austin"},
	}
	reply, err := r.Reply(context.Background(), model.ModePropertySearch, history, model.Context{"city": "Austin"})
	require.NoError(t, err)

	assert.Equal(t, "Here are three homes.", reply)
	require.Len(t, client.last.Messages, 1, "system messages are not replayed")
	assert.Equal(t, "user", client.last.Messages[0].Role)
	assert.Contains(t, client.last.System, "Austin")
}

func TestResponderTrimsHistory(t *testing.T) {
	client := &recordingClient{}
	r := NewResponder(client, "")

	var history []model.Message
	for i := 0; i < 50; i++ {
		history = append(history, model.Message{Role: model.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	_, err := r.Reply(context.Background(), model.ModeSupport, history, nil)
	require.NoError(t, err)

	require.Len(t, client.last.Messages, historyWindow)
	assert.Equal(t, "m49", client.last.Messages[historyWindow-1].Content)
}

func TestResponderWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewResponder(&recordingClient{err: boom}, "")

	_, err := r.Reply(context.Background(), model.ModeSupport, []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	assert.ErrorIs(t, err, boom)
}
