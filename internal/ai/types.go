// Package ai provides chat transcript handling and the language model backends chatedit talks to.
package ai

import (
	"fmt"
	"strings"
)

// Role identifies the author of a turn
type Role int

const (
	RoleUser Role = iota
	RoleModel
	// RoleSystem marks UI-local notes. They are shown in the transcript but never sent to a model.
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleModel:
		return "model"
	case RoleSystem:
		return "system"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleUser, RoleModel, RoleSystem:
		return []byte(r.String()), nil
	}
	return nil, fmt.Errorf("unknown role %d", int(r))
}

// UnmarshalText implements encoding.TextUnmarshaler. "assistant" is accepted as an alias of "model"
func (r *Role) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "user":
		*r = RoleUser
	case "model", "assistant":
		*r = RoleModel
	case "system":
		*r = RoleSystem
	default:
		return fmt.Errorf("unknown role '%s'", string(text))
	}
	return nil
}

// Turn is one authored message in a conversation
type Turn struct {
	Role  Role     `json:"role" yaml:"role"`
	Parts []string `json:"parts" yaml:"parts"`
}

// NewTurn creates a turn from one or more text parts
func NewTurn(role Role, parts ...string) Turn {
	return Turn{Role: role, Parts: parts}
}

// Text returns the turn's parts joined by newlines
func (t Turn) Text() string {
	return strings.Join(t.Parts, "\n")
}
