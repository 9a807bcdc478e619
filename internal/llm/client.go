package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured
	ErrMissingAPIKey = errors.New("OpenAI API key is required")
	// ErrEmptyCompletion is returned when the model produced no choices
	ErrEmptyCompletion = errors.New("completion returned no choices")
)

// Completion is a finished model response
type Completion struct {
	Content    string
	Model      string
	TokensUsed int
}

// StreamChunk is a single delta of a streaming completion
type StreamChunk struct {
	Delta        string
	FinishReason string
	Error        string
}

// Completer generates assistant replies from conversation history
type Completer interface {
	Complete(ctx context.Context, model string, history []models.Message) (*Completion, error)
	StreamComplete(ctx context.Context, model string, history []models.Message) (<-chan StreamChunk, error)
}

// Client wraps the OpenAI API as a Completer
type Client struct {
	client       *openai.Client
	defaultModel string
}

// NewClient creates an OpenAI-backed client
func NewClient(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if defaultModel == "" {
		defaultModel = openai.GPT4oMini
	}
	return &Client{
		client:       openai.NewClient(apiKey),
		defaultModel: defaultModel,
	}, nil
}

// Complete performs a non-streaming completion over the conversation history
func (c *Client) Complete(ctx context.Context, model string, history []models.Message) (*Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(model, history, false))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// StreamComplete performs a streaming completion over the conversation history
func (c *Client) StreamComplete(ctx context.Context, model string, history []models.Message) (<-chan StreamChunk, error) {
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(model, history, true))
		if err != nil {
			chunks <- StreamChunk{Error: err.Error()}
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				chunks <- StreamChunk{FinishReason: "stop"}
				return
			}
			if err != nil {
				chunks <- StreamChunk{Error: err.Error()}
				return
			}

			if len(response.Choices) > 0 {
				choice := response.Choices[0]
				chunk := StreamChunk{Delta: choice.Delta.Content}
				if choice.FinishReason != "" {
					chunk.FinishReason = string(choice.FinishReason)
				}
				chunks <- chunk
			}
		}
	}()

	return chunks, nil
}

func (c *Client) buildRequest(model string, history []models.Message, stream bool) openai.ChatCompletionRequest {
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if msg.Sender == models.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	return openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
}
