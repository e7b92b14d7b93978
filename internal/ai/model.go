package ai

import (
	"context"
	"fmt"
	"strings"
)

// ChatModel sends one user message on top of a normalized history and returns the model's full text reply
type ChatModel interface {
	Send(ctx context.Context, history []Turn, message string) (string, error)
}

// UpstreamError reports a failed or blocked model call. It is fatal for the current turn only.
type UpstreamError struct {
	Err error
	// Feedback carries the provider's explanation when a prompt or response was blocked, e.g. safety ratings
	Feedback string
}

func (ue *UpstreamError) Error() string {
	msg := fmt.Sprintf("Error processing chat request: %s", ue.Err)
	if ue.Feedback != "" {
		msg += fmt.Sprintf(" (Prompt Feedback: %s)", ue.Feedback)
	} else if strings.Contains(ue.Err.Error(), "candidates") {
		msg += " (This may be due to safety settings blocking the response or a malformed request)"
	}
	return msg
}

func (ue *UpstreamError) Unwrap() error {
	return ue.Err
}
