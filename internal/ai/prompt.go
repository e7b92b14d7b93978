package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed prompt_template.tmpl
var promptTemplate string

var parsedPromptTemplate = template.Must(template.New("prompt").Parse(promptTemplate))

// ContextFile is a project file included in the prompt. Content holds a placeholder line when the file could not be
// read.
type ContextFile struct {
	Path    string
	Content string
}

// PromptData is everything the prompt template needs for one turn
type PromptData struct {
	Files []ContextFile
	Query string
}

// GeneratePrompt renders the message sent to the model for the current turn
func GeneratePrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := parsedPromptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
