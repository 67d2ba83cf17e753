// Package ai drafts training blocks with the OpenAI chat completion API.
package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultModel supports structured outputs with strict JSON schemas.
const DefaultModel = "gpt-4o-2024-08-06"

var (
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	ErrRefused     = errors.New("model refused to author the block")
	ErrNoContent   = errors.New("chat completion has no content")
)

//go:embed blockschema.json
var blockSchema []byte

const systemPrompt = `You are a strength and conditioning coach who writes multi-week training blocks
of 1 to 52 weeks. Every day of the block repeats in each week. Write the sets of week one only; the progression rule
derives the later weeks. Use kilograms for weights and meters for distances. Strength sets need reps.
Conditioning sets need at least one of durationSeconds, rounds, distanceMeters, calories or
effortDescriptor. Index the sets of each exercise from 0 without gaps.`

// Author drafts blocks in the authored JSON format.
type Author struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewAuthor creates an author using apiKey. Extra request options are applied after the key, which lets callers
// point the client at another endpoint.
func NewAuthor(apiKey, model string, logger *slog.Logger, opts ...option.RequestOption) *Author {
	if model == "" {
		model = DefaultModel
	}
	return &Author{
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:  model,
		logger: logger,
	}
}

// AuthorBlock asks the model for a block matching prompt and returns the JSON it produced. The output conforms to
// the block schema but is not otherwise validated.
func (a *Author) AuthorBlock(ctx context.Context, prompt string) ([]byte, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{ //nolint:exhaustruct // only need a few fields.
		Name:        "training_block",
		Description: openai.String("A multi-week training block with its training days, exercises and sets"),
		Schema:      json.RawMessage(blockSchema),
		Strict:      openai.Bool(true),
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "sending chat completion request",
		slog.String("model", a.model), slog.Int("prompt_length", len(prompt)))

	chat, err := a.client.Chat.Completions.New(ctx,
		openai.ChatCompletionNewParams{ //nolint:exhaustruct // only need to set a few fields.
			Model: openai.ChatModel(a.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(prompt),
			},
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{ //nolint:exhaustruct // one variant.
				OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{ //nolint:exhaustruct // type has a default.
					JSONSchema: schemaParam,
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "received chat completion response",
		slog.Int64("prompt_tokens", chat.Usage.PromptTokens),
		slog.Int64("completion_tokens", chat.Usage.CompletionTokens),
		slog.Int64("total_tokens", chat.Usage.TotalTokens))

	if len(chat.Choices) == 0 {
		return nil, ErrNoContent
	}
	message := chat.Choices[0].Message
	if message.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefused, message.Refusal)
	}
	if message.Content == "" {
		return nil, ErrNoContent
	}
	return []byte(message.Content), nil
}
