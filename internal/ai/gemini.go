package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiMaxOutputTokens = 8192

// GeminiModel is a ChatModel backed by the Gemini API
type GeminiModel struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiModel creates a Gemini client for the named model. Call Close when done.
func NewGeminiModel(ctx context.Context, apiKey string, modelName string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetMaxOutputTokens(geminiMaxOutputTokens)
	model.SafetySettings = geminiSafetySettings()

	return &GeminiModel{
		client: client,
		model:  model,
	}, nil
}

func geminiSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockMediumAndAbove,
		})
	}
	return settings
}

func (gm *GeminiModel) Close() error {
	return gm.client.Close()
}

// Send starts a chat seeded with history and sends message as the next user turn
func (gm *GeminiModel) Send(ctx context.Context, history []Turn, message string) (string, error) {
	chat := gm.model.StartChat()
	chat.History = toGeminiHistory(TrimDangling(history))

	resp, err := chat.SendMessage(ctx, genai.Text(message))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", &UpstreamError{Err: err, Feedback: geminiFeedback(blocked)}
		}
		return "", &UpstreamError{Err: err}
	}
	if len(resp.Candidates) == 0 {
		return "", &UpstreamError{Err: errors.New("response contained no candidates")}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("Warning: Gemini candidate %d finished with reason %s", i, cand.FinishReason)
		}
	}

	return geminiText(resp), nil
}

func toGeminiHistory(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var role string
		switch turn.Role {
		case RoleUser:
			role = "user"
		case RoleModel:
			role = "model"
		case RoleSystem:
			continue
		}
		parts := make([]genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.Text(p))
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func geminiText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

func geminiFeedback(blocked *genai.BlockedError) string {
	var v any
	if blocked.PromptFeedback != nil {
		v = blocked.PromptFeedback
	} else if blocked.Candidate != nil {
		v = blocked.Candidate.SafetyRatings
	} else {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
