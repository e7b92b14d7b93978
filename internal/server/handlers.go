package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/edit"
	"github.com/cchalm/chatedit/internal/session"
)

// ChatResponse is the reply to a chat submission. It is also pushed to websocket clients.
type ChatResponse struct {
	Command string       `json:"command"`
	Success bool         `json:"success"`
	Text    string       `json:"text"`
	TurnID  string       `json:"turnId,omitempty"`
	Outcome string       `json:"outcome,omitempty"`
	Results []FileResult `json:"results"`
}

// FileResult is the outcome of one edit as seen by the UI
type FileResult struct {
	Path        string   `json:"path"`
	OK          bool     `json:"ok"`
	Kind        string   `json:"kind"`
	Error       string   `json:"error,omitempty"`
	Created     bool     `json:"created"`
	CreatedDirs []string `json:"createdDirs,omitempty"`
}

type FilesResponse struct {
	Command string   `json:"command"`
	Files   []string `json:"files"`
	Error   string   `json:"error,omitempty"`
}

type OpenProjectResponse struct {
	Root      string `json:"root"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req session.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ChatResponse{Command: "chatResponse", Text: "Invalid request body: " + err.Error()})
		return
	}

	sess, err := s.session()
	if err != nil {
		writeJSON(w, http.StatusConflict, ChatResponse{Command: "chatResponse", Text: err.Error()})
		return
	}

	result, err := sess.Submit(r.Context(), req, s.hub)
	resp := toChatResponse(result)
	s.hub.Send(resp)

	writeJSON(w, chatStatus(err), resp)
}

func chatStatus(err error) int {
	var upstream *ai.UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, ai.ErrEmptyTranscript), errors.Is(err, ai.ErrCurrentNotUser):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toChatResponse(result session.Result) ChatResponse {
	resp := ChatResponse{
		Command: "chatResponse",
		Success: result.Success,
		Text:    result.Text,
		TurnID:  result.TurnID,
		Results: make([]FileResult, 0, len(result.Results)),
	}
	if result.Success {
		resp.Outcome = result.Extraction.Outcome().String()
	}
	for _, r := range result.Results {
		fr := FileResult{
			Path:        r.Path,
			OK:          r.OK,
			Kind:        r.Kind.String(),
			Created:     r.Created,
			CreatedDirs: r.CreatedDirs,
		}
		if r.Kind != edit.KindNone && r.Err != nil {
			fr.Error = r.Err.Error()
		}
		resp.Results = append(resp.Results, fr)
	}
	return resp
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session()
	if err != nil {
		writeJSON(w, http.StatusConflict, FilesResponse{Command: "workspaceFiles", Files: []string{}, Error: err.Error()})
		return
	}

	files, err := sess.ListFiles(r.Context())
	if err != nil {
		log.Printf("Error fetching workspace files: %v", err)
		writeJSON(w, http.StatusInternalServerError, FilesResponse{
			Command: "workspaceFiles",
			Files:   []string{},
			Error:   "Error fetching files: " + err.Error(),
		})
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, FilesResponse{Command: "workspaceFiles", Files: files})
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	sess, err := s.OpenProject(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.hub.Status("Opened project: " + sess.Root())
	writeJSON(w, http.StatusOK, OpenProjectResponse{Root: sess.Root(), SessionID: sess.ID()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
