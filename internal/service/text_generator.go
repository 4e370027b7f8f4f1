package service

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/pkg/apperror"
)

// TextGenerator turns a prompt into a single completion.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type openAIGenerator struct {
	client *openai.Client
	model  string
	ready  bool
}

func NewTextGenerator(cfg config.OpenAIConfig, opts ...option.RequestOption) TextGenerator {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	cl := openai.NewClient(reqOpts...)
	return &openAIGenerator{client: &cl, model: model, ready: cfg.APIKey != ""}
}

func (g *openAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if !g.ready {
		return "", apperror.Config("OPENAI_API_KEY")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", apperror.Validation("prompt is empty")
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", apperror.FromHTTPStatus(apiErr.StatusCode, "text generation failed")
		}
		return "", apperror.Wrap(apperror.KindUpstream, err, "text generation unavailable")
	}
	if len(resp.Choices) == 0 {
		return "", apperror.Upstream("text generation returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
