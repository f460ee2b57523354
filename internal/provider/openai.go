package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jwulff/panelscribe/internal/backend"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures Whisper and chat access. Zero fields take
// defaults.
type OpenAIOptions struct {
	WhisperModel string  // default whisper-1
	ChatModel    string  // default gpt-4
	Temperature  float32 // default 0.3
	MaxTokens    int     // default 2000
	BaseURL      string
}

// OpenAI implements both Transcriber (Whisper) and Analyzer (chat).
type OpenAI struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAI returns a client using key.
func NewOpenAI(key string, opts OpenAIOptions) (*OpenAI, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	if opts.WhisperModel == "" {
		opts.WhisperModel = openai.Whisper1
	}
	if opts.ChatModel == "" {
		opts.ChatModel = openai.GPT4
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2000
	}
	cfg := openai.DefaultConfig(key)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), opts: opts}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Model() string { return o.opts.ChatModel }

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.opts.WhisperModel,
		Reader:   bytes.NewReader(audio),
		FilePath: "segment" + backend.Extension(mimeType),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return resp.Text, nil
}

func (o *OpenAI) Analyze(ctx context.Context, prompt, conversation string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.opts.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserMessage(prompt, conversation)},
		},
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
