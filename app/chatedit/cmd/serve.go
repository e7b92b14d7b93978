package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatedit/internal/server"
	"github.com/cchalm/chatedit/internal/session"
)

var serveFlags = struct {
	Addr   string
	Github string
}{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API for a browser or editor UI",
	Long: `Starts an HTTP server exposing the project to a UI shell:

  POST /api/v1/chat           submit a conversation
  GET  /api/v1/files          list project files
  POST /api/v1/project/open   start a fresh session on the project
  GET  /api/v1/status         websocket of status updates
  GET  /health`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Addr, "addr", "127.0.0.1:8420", "Address to listen on")
	serveCmd.Flags().StringVar(&serveFlags.Github, "github", "", "Read target files from a GitHub repository (owner/repo[@ref]) instead of the project")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// The server always logs
	log.SetOutput(os.Stderr)

	ctx := setupContext()

	tp, err := createTelemetryProvider(ctx)
	if err != nil {
		return fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Printf("Warning: failed to shut down telemetry: %v", err)
		}
	}()

	srv := server.New(func(ctx context.Context) (*session.Session, error) {
		// Clients created here outlive the request that opened the project
		sess, _, err := openSession(context.WithoutCancel(ctx), tp, sessionOptions{githubProject: serveFlags.Github})
		return sess, err
	})
	defer srv.Close()

	// The UI can retry through /project/open, e.g. after fixing the .env file
	if _, err := srv.OpenProject(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}

	httpServer := &http.Server{
		Addr:              serveFlags.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Serving %s on http://%s", flags.Project, serveFlags.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
