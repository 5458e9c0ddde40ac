package service

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAIService is the fallback answer generator used when the primary
// provider fails.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Chat sends a single-turn prompt and returns the generated text.
func (s *OpenAIService) Chat(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: temperature,
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}
