// Package session runs chat turns against one project: it normalizes the transcript, calls the model, extracts file
// blocks from the reply, and applies them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/edit"
	"github.com/cchalm/chatedit/internal/filesystem"
	"github.com/cchalm/chatedit/internal/telemetry"
)

var (
	ErrTurnInProgress = errors.New("a chat request is already in progress for this session")
	ErrClosed         = errors.New("session is closed")
)

// Options configures a Session
type Options struct {
	// Model answers chat turns. If it implements io.Closer, Close closes it.
	Model ai.ChatModel
	// ModelName labels the model in status lines and telemetry
	ModelName string
	Provider  string

	// FS is the project tree that edits are applied to
	FS filesystem.FileSystem
	// ContextFS, if set, is where target files are read from instead of FS
	ContextFS filesystem.ReadOnlyFileSystem
	// Root describes the project root for display
	Root string

	Extractor edit.Extractor
	Telemetry *telemetry.Provider
	// Timeout bounds the model call. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Request is one submission from the UI
type Request struct {
	// Conversation is the full transcript. Its last turn is the message being sent and must be from the user.
	Conversation []ai.Turn `json:"conversation"`
	// TargetFiles is a comma-separated list of project paths whose contents should accompany the message
	TargetFiles string `json:"targetFiles"`
}

// Result is the outcome of one turn
type Result struct {
	Success bool
	// Text is the model's full reply on success, or the error shown to the user on failure
	Text       string
	TurnID     string
	Extraction edit.Extraction
	Results    []edit.ApplyResult
}

// Session is the chat pipeline for one project root. At most one turn runs at a time.
type Session struct {
	id   string
	opts Options

	mu        sync.Mutex // held for the duration of a turn
	turnIndex int
	closed    atomic.Bool
}

func New(opts Options) (*Session, error) {
	if opts.Model == nil {
		return nil, errors.New("session requires a chat model")
	}
	if opts.FS == nil {
		return nil, errors.New("session requires a project file system")
	}
	if opts.ContextFS == nil {
		opts.ContextFS = opts.FS
	}
	if opts.Extractor == nil {
		opts.Extractor = edit.NewExtractor()
	}
	if opts.ModelName == "" {
		opts.ModelName = "the model"
	}

	s := &Session{
		id:   telemetry.NewSessionID(),
		opts: opts,
	}
	log.Printf("Opened session %s on %s", s.id, opts.Root)
	return s, nil
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Root() string { return s.opts.Root }

// Close disposes the session. Later submissions fail with ErrClosed. A turn already in flight finishes first, so
// Close blocks until it does.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("Closed session %s", s.id)
	if closer, ok := s.opts.Model.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ListFiles returns the project's files as slash-separated relative paths
func (s *Session) ListFiles(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	files, err := filesystem.ListFiles(ctx, s.opts.FS, filesystem.DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}
	return files, nil
}

// Submit runs one chat turn. Progress lines go to reporter, which may be nil. The returned error is non-nil when the
// turn failed as a whole; Result.Text then holds the message to show the user. Failures of individual edits are
// reported in Result.Results and do not fail the turn.
func (s *Session) Submit(ctx context.Context, req Request, reporter edit.Reporter) (Result, error) {
	if s.closed.Load() {
		return failed("", ErrClosed)
	}
	if !s.mu.TryLock() {
		return failed("", ErrTurnInProgress)
	}
	defer s.mu.Unlock()
	if s.closed.Load() {
		return failed("", ErrClosed)
	}

	if reporter == nil {
		reporter = edit.ReporterFunc(func(string) {})
	}
	s.turnIndex++
	turnID := telemetry.NewTurnID()

	ctx, span := s.opts.Telemetry.StartTurn(ctx, telemetry.TurnTelemetry{
		SessionID:     s.id,
		TurnID:        turnID,
		TurnIndex:     s.turnIndex,
		HistoryLength: len(req.Conversation),
		Provider:      s.opts.Provider,
		Model:         s.opts.ModelName,
	})

	result, err := s.runTurn(ctx, req, reporter, span)
	result.TurnID = turnID
	span.End(err)
	return result, err
}

func (s *Session) runTurn(ctx context.Context, req Request, reporter edit.Reporter, span *telemetry.TurnSpan) (Result, error) {
	reporter.Status(fmt.Sprintf("Processing request with %s...", s.opts.ModelName))

	history, current, err := ai.SplitCurrent(req.Conversation)
	if errors.Is(err, ai.ErrEmptyTranscript) {
		return failed("Error: Conversation history is empty.", err)
	} else if errors.Is(err, ai.ErrCurrentNotUser) {
		return failed("Error: Internal - last message expected to be user.", err)
	} else if err != nil {
		return failed("", err)
	}

	var files []ai.ContextFile
	if targets := ParseTargetFiles(req.TargetFiles); len(targets) > 0 {
		reporter.Status(fmt.Sprintf("Reading target files: %s", strings.Join(targets, ", ")))
		files = ReadContextFiles(ctx, s.opts.ContextFS, targets)
		if tokens := contextTokens(files); tokens > 0 {
			reporter.Status(fmt.Sprintf("Target files add about %d tokens of context", tokens))
		}
	}

	prompt, err := ai.GeneratePrompt(ai.PromptData{Files: files, Query: current.Text()})
	if err != nil {
		return failed("", err)
	}

	reporter.Status(fmt.Sprintf("Sending prompt to %s...", s.opts.ModelName))
	log.Printf("Sending turn %d of session %s with %d history turns", s.turnIndex, s.id, len(history))

	response, err := s.send(ctx, history, prompt)
	if err != nil {
		return failed("", err)
	}

	reporter.Status(fmt.Sprintf("Received response from %s. Processing...", s.opts.ModelName))

	extraction := s.opts.Extractor.Extract(response)
	switch extraction.Outcome() {
	case edit.OutcomeNoEdits:
		if extraction.AcknowledgedNoChanges() {
			reporter.Status("No changes needed.")
		}
	case edit.OutcomeUnparsed:
		reporter.Status(fmt.Sprintf("Warning: the response contained %d file block(s) that could not be parsed", extraction.Unmatched))
	case edit.OutcomeEdits:
		if extraction.Unmatched > 0 {
			reporter.Status(fmt.Sprintf("Warning: skipped %d malformed file block(s)", extraction.Unmatched))
		}
	}

	applicator := edit.NewApplicator(s.opts.FS, reporter)
	results := applicator.Apply(ctx, extraction.Edits)
	for i, r := range results {
		span.RecordEdit(telemetry.EditTelemetry{
			Path:      r.Path,
			OK:        r.OK,
			ErrorKind: r.Kind.String(),
			Created:   r.Created,
			NewDirs:   len(r.CreatedDirs),
			Bytes:     len(extraction.Edits[i].Content),
		})
	}
	_, failures := edit.Summary(results)
	span.RecordResponse(len(response), extraction.Outcome().String(), len(results), failures)

	return Result{
		Success:    true,
		Text:       response,
		Extraction: extraction,
		Results:    results,
	}, nil
}

// send calls the model under the session timeout. Every failure comes back as an *ai.UpstreamError.
func (s *Session) send(ctx context.Context, history []ai.Turn, prompt string) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	response, err := s.opts.Model.Send(ctx, history, prompt)
	if err != nil {
		var upstream *ai.UpstreamError
		if !errors.As(err, &upstream) {
			err = &ai.UpstreamError{Err: err}
		}
		log.Printf("Error calling %s: %v", s.opts.ModelName, err)
		return "", err
	}
	return response, nil
}

// failed builds the result for a turn that did not complete. An empty text uses the error's message.
func failed(text string, err error) (Result, error) {
	if text == "" {
		text = err.Error()
	}
	return Result{Success: false, Text: text}, err
}
