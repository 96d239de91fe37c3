package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/core"
)

// OpenAILLM streams completions from any OpenAI compatible endpoint.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

func NewOpenAILLM(baseURL, apiKey, model string) *OpenAILLM {
	var options []option.RequestOption
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	if apiKey == "" {
		log.Info("OPENAI_API_KEY is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(options...)
	return &OpenAILLM{client: &client, model: model}
}

func (o *OpenAILLM) GenerateStream(ctx context.Context, systemPrompt, userPrompt string, onChunk func(string) error) error {
	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model: o.model,
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onChunk(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai generate: %w", err)
	}
	return nil
}

var _ core.LLMProvider = (*OpenAILLM)(nil)
