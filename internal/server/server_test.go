package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/filesystem"
	"github.com/cchalm/chatedit/internal/session"
)

type stubModel struct {
	response string
	err      error
}

func (sm stubModel) Send(ctx context.Context, history []ai.Turn, message string) (string, error) {
	return sm.response, sm.err
}

// blockingModel holds Send until release is closed
type blockingModel struct {
	response string
	started  chan struct{}
	release  chan struct{}
}

func (bm *blockingModel) Send(ctx context.Context, history []ai.Turn, message string) (string, error) {
	close(bm.started)
	<-bm.release
	return bm.response, nil
}

func testServer(t *testing.T, model ai.ChatModel, files map[string]string) (*Server, *httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	srv := New(func(ctx context.Context) (*session.Session, error) {
		fs, err := filesystem.NewOSFileSystem(root)
		if err != nil {
			return nil, err
		}
		return session.New(session.Options{Model: model, ModelName: "Gemini", FS: fs, Root: root})
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return srv, ts, root
}

func postChat(t *testing.T, ts *httptest.Server, body string) (int, ChatResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var chat ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	return resp.StatusCode, chat
}

func openProject(t *testing.T, ts *httptest.Server) OpenProjectResponse {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/project/open", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var open OpenProjectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&open))
	return open
}

func TestServer_Health(t *testing.T) {
	_, ts, _ := testServer(t, stubModel{}, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestServer_ChatWithoutProject(t *testing.T) {
	_, ts, _ := testServer(t, stubModel{}, nil)

	status, chat := postChat(t, ts, `{"conversation":[{"role":"user","parts":["hi"]}]}`)
	require.Equal(t, http.StatusConflict, status)
	require.False(t, chat.Success)
	require.Equal(t, ErrNoProject.Error(), chat.Text)
}

func TestServer_ChatAppliesEdits(t *testing.T) {
	response := "Done.\n```FILEPATH: src/a.txt\n<<FILE_CONTENT_START>>\nhello\n<<FILE_CONTENT_END>>\n```"
	_, ts, root := testServer(t, stubModel{response: response}, nil)
	open := openProject(t, ts)
	require.Equal(t, root, open.Root)
	require.NotEmpty(t, open.SessionID)

	status, chat := postChat(t, ts, `{"conversation":[{"role":"user","parts":["make a"]}],"targetFiles":""}`)
	require.Equal(t, http.StatusOK, status)
	require.True(t, chat.Success)
	require.Equal(t, "chatResponse", chat.Command)
	require.Equal(t, response, chat.Text)
	require.Equal(t, "edits", chat.Outcome)
	require.NotEmpty(t, chat.TurnID)
	require.Len(t, chat.Results, 1)
	assert.Equal(t, "src/a.txt", chat.Results[0].Path)
	assert.True(t, chat.Results[0].OK)
	assert.True(t, chat.Results[0].Created)
	assert.Equal(t, []string{"src"}, chat.Results[0].CreatedDirs)

	got, err := os.ReadFile(filepath.Join(root, "src", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestServer_ChatEmptyConversation(t *testing.T) {
	_, ts, _ := testServer(t, stubModel{}, nil)
	openProject(t, ts)

	status, chat := postChat(t, ts, `{"conversation":[]}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, chat.Success)
	require.Equal(t, "Error: Conversation history is empty.", chat.Text)
}

func TestServer_ChatUpstreamError(t *testing.T) {
	_, ts, _ := testServer(t, stubModel{err: errors.New("quota exceeded")}, nil)
	openProject(t, ts)

	status, chat := postChat(t, ts, `{"conversation":[{"role":"user","parts":["hi"]}]}`)
	require.Equal(t, http.StatusBadGateway, status)
	require.False(t, chat.Success)
	require.Contains(t, chat.Text, "quota exceeded")
}

func TestServer_ChatInvalidBody(t *testing.T) {
	_, ts, _ := testServer(t, stubModel{}, nil)
	openProject(t, ts)

	status, chat := postChat(t, ts, `{"conversation":`)
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, chat.Success)
}

func TestServer_Files(t *testing.T) {
	_, ts, _ := testServer(t, stubModel{}, map[string]string{
		"b.txt":             "b",
		"dir/a.txt":         "a",
		"node_modules/x.js": "x",
		".git/HEAD":         "ref",
	})
	openProject(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/files")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var files FilesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))
	require.Equal(t, "workspaceFiles", files.Command)
	require.Equal(t, []string{"b.txt", "dir/a.txt"}, files.Files)
	require.Empty(t, files.Error)
}

func TestServer_OpenProjectReplacesSession(t *testing.T) {
	srv, ts, _ := testServer(t, stubModel{}, nil)

	first := openProject(t, ts)
	old, err := srv.session()
	require.NoError(t, err)

	second := openProject(t, ts)
	require.NotEqual(t, first.SessionID, second.SessionID)

	_, err = old.Submit(context.Background(), session.Request{
		Conversation: []ai.Turn{ai.NewTurn(ai.RoleUser, "hi")},
	}, nil)
	require.ErrorIs(t, err, session.ErrClosed)
}

func TestServer_StatusWebSocket(t *testing.T) {
	response := "```FILEPATH: a.txt\n<<FILE_CONTENT_START>>\nA\n<<FILE_CONTENT_END>>\n```"
	srv, ts, _ := testServer(t, stubModel{response: response}, nil)
	openProject(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/status"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.hub.connectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	status, _ := postChat(t, ts, `{"conversation":[{"role":"user","parts":["hi"]}]}`)
	require.Equal(t, http.StatusOK, status)

	var statuses []string
	var final ChatResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for final.Command == "" {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		switch msg["command"] {
		case "statusUpdate":
			statuses = append(statuses, msg["message"].(string))
		case "chatResponse":
			require.NoError(t, json.Unmarshal(data, &final))
		}
	}

	require.True(t, final.Success)
	require.Contains(t, statuses, "Processing request with Gemini...")
	require.Contains(t, statuses, "Applied change: a.txt")
}

func TestServer_OpenProjectLetsRunningTurnFinish(t *testing.T) {
	response := "```FILEPATH: a.txt\n<<FILE_CONTENT_START>>\nA\n<<FILE_CONTENT_END>>\n```"
	model := &blockingModel{response: response, started: make(chan struct{}), release: make(chan struct{})}
	_, ts, root := testServer(t, model, nil)
	openProject(t, ts)

	type chatReply struct {
		status int
		chat   ChatResponse
	}
	replies := make(chan chatReply, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json",
			strings.NewReader(`{"conversation":[{"role":"user","parts":["hi"]}]}`))
		if err != nil {
			replies <- chatReply{}
			return
		}
		defer resp.Body.Close()
		var chat ChatResponse
		_ = json.NewDecoder(resp.Body).Decode(&chat)
		replies <- chatReply{status: resp.StatusCode, chat: chat}
	}()
	<-model.started

	reopened := make(chan OpenProjectResponse, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/api/v1/project/open", "application/json", nil)
		if err != nil {
			close(reopened)
			return
		}
		defer resp.Body.Close()
		var open OpenProjectResponse
		_ = json.NewDecoder(resp.Body).Decode(&open)
		reopened <- open
	}()

	select {
	case <-reopened:
		t.Fatal("project reopened while a turn was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(model.release)
	reply := <-replies
	require.Equal(t, http.StatusOK, reply.status)
	require.True(t, reply.chat.Success)

	open, ok := <-reopened
	require.True(t, ok)
	require.NotEmpty(t, open.SessionID)

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "A", string(got))
}
