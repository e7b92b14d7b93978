package ai

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole_RoundTripText(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleModel, RoleSystem} {
		b, err := role.MarshalText()
		require.NoError(t, err)
		var decoded Role
		require.NoError(t, decoded.UnmarshalText(b))
		require.Equal(t, role, decoded)
	}
}

func TestRole_AssistantAlias(t *testing.T) {
	var r Role
	require.NoError(t, r.UnmarshalText([]byte("Assistant")))
	require.Equal(t, RoleModel, r)
}

func TestRole_Unknown(t *testing.T) {
	var r Role
	require.Error(t, r.UnmarshalText([]byte("tool")))
	_, err := Role(42).MarshalText()
	require.Error(t, err)
	require.Equal(t, "Role(42)", Role(42).String())
}

func TestParseTranscript_YAML(t *testing.T) {
	input := `
- role: system
  parts: ["Opened project"]
- role: user
  parts:
    - add a README
- role: model
  parts:
    - done
`
	turns, err := ParseTranscript([]byte(input), ".yaml")
	require.NoError(t, err)
	require.Equal(t, []Turn{
		NewTurn(RoleSystem, "Opened project"),
		NewTurn(RoleUser, "add a README"),
		NewTurn(RoleModel, "done"),
	}, turns)
}

func TestParseTranscript_JSON(t *testing.T) {
	input := `[{"role":"user","parts":["a","b"]},{"role":"assistant","parts":["c"]}]`
	turns, err := ParseTranscript([]byte(input), ".json")
	require.NoError(t, err)
	require.Equal(t, []Turn{NewTurn(RoleUser, "a", "b"), NewTurn(RoleModel, "c")}, turns)
}

func TestParseTranscript_UnknownRole(t *testing.T) {
	_, err := ParseTranscript([]byte(`[{"role":"tool","parts":["x"]}]`), ".json")
	require.Error(t, err)
}

func TestTurn_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(NewTurn(RoleModel, "hi"))
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"model","parts":["hi"]}`, string(b))
}

func TestLoadTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yml")
	require.NoError(t, os.WriteFile(path, []byte("- role: user\n  parts: [hello]\n"), 0644))

	turns, err := LoadTranscript(path)
	require.NoError(t, err)
	require.Equal(t, []Turn{NewTurn(RoleUser, "hello")}, turns)
}

func TestLoadTranscript_Missing(t *testing.T) {
	_, err := LoadTranscript(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
