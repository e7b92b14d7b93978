package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/filesystem"
	"github.com/cchalm/chatedit/internal/session"
)

type scriptedModel struct {
	responses []string
	err       error
	messages  []string
}

func (sm *scriptedModel) Send(ctx context.Context, history []ai.Turn, message string) (string, error) {
	sm.messages = append(sm.messages, message)
	if sm.err != nil {
		return "", sm.err
	}
	response := sm.responses[0]
	sm.responses = sm.responses[1:]
	return response, nil
}

func testProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	flags.Project, flags.Provider, flags.Model, flags.Verbose = "", "", "", false
	applyFlags.Response, applyFlags.DryRun = "", false
	filesLimit = filesystem.DefaultListLimit

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func testChat(t *testing.T, model *scriptedModel, files map[string]string) (*chat, *bytes.Buffer, string) {
	t.Helper()
	root := testProject(t, files)
	fs, err := filesystem.NewOSFileSystem(root)
	require.NoError(t, err)
	sess, err := session.New(session.Options{Model: model, ModelName: "Gemini", FS: fs, Root: root})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	var out bytes.Buffer
	return &chat{sess: sess, out: &out}, &out, root
}

func block(path, content string) string {
	return "```FILEPATH: " + path + "\n<<FILE_CONTENT_START>>\n" + content + "\n<<FILE_CONTENT_END>>\n```"
}

func TestApply_WritesFiles(t *testing.T) {
	root := testProject(t, map[string]string{"a.txt": "old"})
	response := "Here you go.\n" + block("a.txt", "new") + "\n" + block("pkg/b.txt", "B")

	out, err := runCommand(t, response, "apply", "--project", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied change: a.txt")
	assert.Contains(t, out, "Created directory: pkg")
	assert.Contains(t, out, "2 applied, 0 failed")

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
	got, err = os.ReadFile(filepath.Join(root, "pkg", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "B", string(got))
}

func TestApply_DryRun(t *testing.T) {
	root := testProject(t, map[string]string{"a.txt": "old"})
	responseFile := filepath.Join(t.TempDir(), "response.md")
	require.NoError(t, os.WriteFile(responseFile, []byte(block("new/c.txt", "C")), 0644))

	out, err := runCommand(t, "", "apply", "--project", root, "--response", responseFile, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run, nothing was written")
	assert.Contains(t, out, "new/c.txt")

	_, err = os.Stat(filepath.Join(root, "new"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply_EscapingPathFails(t *testing.T) {
	root := testProject(t, nil)

	out, err := runCommand(t, block("../escape.txt", "x"), "apply", "--project", root)
	require.Error(t, err)
	assert.Contains(t, out, "path_escape")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestApply_NoBlocks(t *testing.T) {
	root := testProject(t, nil)

	out, err := runCommand(t, "Nothing to change here.", "apply", "--project", root)
	require.NoError(t, err)
	require.Contains(t, out, "No file blocks found.")
}

func TestFiles(t *testing.T) {
	root := testProject(t, map[string]string{
		"main.go":             "package main",
		"internal/x/x.go":     "package x",
		"node_modules/m/m.js": "",
	})

	out, err := runCommand(t, "", "files", "--project", root)
	require.NoError(t, err)
	require.Equal(t, "internal/x/x.go\nmain.go\n", out)
}

func TestChat_LoopKeepsTranscript(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"Sure.\n" + block("a.txt", "A2"),
		"No changes needed.",
	}}
	c, out, root := testChat(t, model, map[string]string{"a.txt": "A1"})

	input := "/files a.txt\nchange a\n\nthanks\n/quit\nignored\n"
	require.NoError(t, c.loop(context.Background(), strings.NewReader(input)))

	require.Len(t, model.messages, 2)
	assert.Contains(t, model.messages[0], "A1")
	assert.Contains(t, model.messages[0], "change a")

	require.Len(t, c.transcript, 4)
	assert.Equal(t, ai.RoleUser, c.transcript[0].Role)
	assert.Equal(t, "change a", c.transcript[0].Text())
	assert.Equal(t, ai.RoleModel, c.transcript[1].Role)
	assert.Equal(t, "thanks", c.transcript[2].Text())

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "A2", string(got))

	assert.Contains(t, out.String(), "Target files: a.txt")
	assert.Contains(t, out.String(), "1 applied, 0 failed")
}

func TestChat_FailedTurnLeavesTranscript(t *testing.T) {
	model := &scriptedModel{err: errors.New("quota exceeded")}
	c, out, _ := testChat(t, model, nil)

	err := c.send(context.Background(), "hello")
	require.Error(t, err)
	require.Empty(t, c.transcript)
	require.Contains(t, out.String(), "Error processing chat request: quota exceeded")

	// The loop reports the failure and keeps going
	require.NoError(t, c.loop(context.Background(), strings.NewReader("again\n")))
	require.Len(t, model.messages, 2)
}

func TestChat_ClosedSessionStopsLoop(t *testing.T) {
	c, _, _ := testChat(t, &scriptedModel{}, nil)
	require.NoError(t, c.sess.Close())

	err := c.loop(context.Background(), strings.NewReader("hello\n"))
	require.ErrorIs(t, err, session.ErrClosed)
}
