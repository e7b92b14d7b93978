// Package server exposes a session over HTTP for a browser or editor UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cchalm/chatedit/internal/session"
)

var ErrNoProject = errors.New("no project is open")

// SessionFactory opens a fresh session on the configured project root
type SessionFactory func(ctx context.Context) (*session.Session, error)

// Server owns at most one active session and replaces it when the UI asks to open the project again
type Server struct {
	newSession SessionFactory
	hub        *Hub

	mu      sync.Mutex
	current *session.Session
}

func New(newSession SessionFactory) *Server {
	return &Server{
		newSession: newSession,
		hub:        NewHub(),
	}
}

// OpenProject opens a new session and disposes the current one, if any. A turn still running on the old session
// finishes before OpenProject returns.
func (s *Server) OpenProject(ctx context.Context) (*session.Session, error) {
	sess, err := s.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}

	s.mu.Lock()
	old := s.current
	s.current = sess
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("Warning: failed to close session %s: %v", old.ID(), err)
		}
	}
	return sess, nil
}

func (s *Server) session() (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoProject
	}
	return s.current, nil
}

// Close disposes the active session and disconnects status clients
func (s *Server) Close() error {
	s.hub.CloseAll()

	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess != nil {
		return sess.Close()
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/files", s.handleFiles)
		r.Post("/project/open", s.handleOpenProject)
		r.Get("/status", s.hub.HandleWebSocket)
	})

	return r
}
