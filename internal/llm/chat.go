package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

// chatProvider implements Provider over the chat completions API.
type chatProvider struct {
	name   string
	client openai.Client
	model  string
}

func newChatProvider(name, apiKey, model, baseURL string, headers map[string]string) *chatProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &chatProvider{
		name:   name,
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (p *chatProvider) Name() string {
	return p.name + "/" + p.model
}

func (p *chatProvider) params(req Request) (openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("request has no messages")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported role %q", m.Role)
		}
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params, nil
}

func (p *chatProvider) Complete(ctx context.Context, req Request) (string, error) {
	params, err := p.params(req)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s API", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *chatProvider) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	events := make(chan Event, 16)
	go p.handleStream(ctx, stream, events)
	return events, nil
}

func (p *chatProvider) handleStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], events chan<- Event) {
	defer close(events)
	defer stream.Close()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if !send(Event{Text: chunk.Choices[0].Delta.Content}) {
			return
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		send(Event{Err: fmt.Errorf("%s stream: %w", p.name, err)})
	}
}
