package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxOutputTokens = 8192

// AnthropicModel is a ChatModel backed by the Anthropic Messages API. Responses are streamed and accumulated so that
// long replies don't hit the non-streaming request timeout.
type AnthropicModel struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicModel creates an Anthropic client for the named model. httpClient may be nil.
func NewAnthropicModel(apiKey string, modelName string, httpClient *http.Client) *AnthropicModel {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(5),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicModel{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(modelName),
	}
}

func (am *AnthropicModel) Send(ctx context.Context, history []Turn, message string) (string, error) {
	messages := toAnthropicMessages(TrimDangling(history))
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	params := anthropic.MessageNewParams{
		Model:     am.model,
		MaxTokens: anthropicMaxOutputTokens,
		Messages:  messages,
	}

	response, err := am.stream(ctx, params)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}

	log.Printf("Token usage - Input: %d, Output: %d", response.Usage.InputTokens, response.Usage.OutputTokens)
	if response.StopReason == "refusal" {
		return "", &UpstreamError{Err: fmt.Errorf("response refused"), Feedback: string(response.StopReason)}
	}

	return anthropicText(response), nil
}

func (am *AnthropicModel) stream(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error) {
	stream := am.client.Messages.NewStreaming(ctx, params)
	response := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		err := response.Accumulate(event)
		if err != nil {
			return anthropic.Message{}, fmt.Errorf("failed to accumulate response content stream: %w", err)
		}
	}
	if stream.Err() != nil {
		return anthropic.Message{}, fmt.Errorf("failed to stream response: %w", stream.Err())
	}
	if response.StopReason == "" {
		b, err := json.Marshal(response)
		if err != nil {
			log.Printf("error while marshalling corrupt message for inspection: %v", err)
		}
		return anthropic.Message{}, fmt.Errorf("malformed message: %v", string(b))
	}
	return response, nil
}

func toAnthropicMessages(history []Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			blocks = append(blocks, anthropic.NewTextBlock(p))
		}
		switch turn.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		case RoleModel:
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case RoleSystem:
		}
	}
	return messages
}

func anthropicText(response anthropic.Message) string {
	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}
