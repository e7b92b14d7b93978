package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadTranscript reads a list of turns from a YAML or JSON file. The format is chosen by file extension, with YAML as
// the default since it is a superset of JSON.
func LoadTranscript(path string) ([]Turn, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return ParseTranscript(b, filepath.Ext(path))
}

// ParseTranscript decodes a list of turns. ext selects the decoder (".json", ".yaml", ".yml"); anything else is
// decoded as YAML.
func ParseTranscript(b []byte, ext string) ([]Turn, error) {
	var turns []Turn
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(b, &turns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &turns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
		}
	}
	return turns, nil
}
