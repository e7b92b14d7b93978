package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/session"
)

var chatFlags = struct {
	Transcript  string
	TargetFiles string
	DryRun      bool
	Github      string
	Message     string
}{}

var errTurnFailed = errors.New("chat request failed")

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model about the project",
	Long: `Starts an interactive chat. Each line you enter is sent to the model along with the conversation so far
and the contents of the target files. File blocks in the model's replies are written into the project.

Inside the chat:
  /files a.go, b/c.go   set the target files for later messages
  /files                clear the target files
  /quit                 exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.Transcript, "transcript", "", "YAML or JSON file with earlier turns to seed the conversation")
	chatCmd.Flags().StringVarP(&chatFlags.TargetFiles, "files", "f", "", "Comma-separated project files to send as context")
	chatCmd.Flags().BoolVar(&chatFlags.DryRun, "dry-run", false, "Show the edits without writing them")
	chatCmd.Flags().StringVar(&chatFlags.Github, "github", "", "Read target files from a GitHub repository (owner/repo[@ref]) instead of the project")
	chatCmd.Flags().StringVarP(&chatFlags.Message, "message", "m", "", "Send a single message and exit")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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

	sess, overlay, err := openSession(ctx, tp, sessionOptions{dryRun: chatFlags.DryRun, githubProject: chatFlags.Github})
	if err != nil {
		return err
	}
	defer sess.Close()

	var transcript []ai.Turn
	if chatFlags.Transcript != "" {
		transcript, err = ai.LoadTranscript(chatFlags.Transcript)
		if err != nil {
			return err
		}
		log.Printf("Loaded %d turns from %s", len(transcript), chatFlags.Transcript)
	}

	c := &chat{
		sess:        sess,
		out:         cmd.OutOrStdout(),
		transcript:  transcript,
		targetFiles: chatFlags.TargetFiles,
	}

	if chatFlags.Message != "" {
		if err := c.send(ctx, chatFlags.Message); err != nil {
			return errTurnFailed
		}
	} else {
		fmt.Fprintln(c.out, statusStyle.Render(fmt.Sprintf("Chatting with %s about %s. /quit to exit.", modelLabel(cfg.Provider), sess.Root())))
		err = c.loop(ctx, cmd.InOrStdin())
	}
	if err != nil {
		return err
	}

	if overlay != nil {
		return renderDryRun(c.out, overlay)
	}
	return nil
}

// chat is a REPL over one session. The transcript lives in memory only.
type chat struct {
	sess        *session.Session
	out         io.Writer
	transcript  []ai.Turn
	targetFiles string
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/files" || strings.HasPrefix(line, "/files "):
			c.targetFiles = strings.TrimSpace(strings.TrimPrefix(line, "/files"))
			c.printTargets()
			continue
		}

		if err := c.send(ctx, line); errors.Is(err, session.ErrClosed) {
			return err
		}
	}
}

func (c *chat) printTargets() {
	targets := session.ParseTargetFiles(c.targetFiles)
	if len(targets) == 0 {
		fmt.Fprintln(c.out, statusStyle.Render("No target files"))
		return
	}
	fmt.Fprintln(c.out, statusStyle.Render("Target files: "+strings.Join(targets, ", ")))
}

// send submits one user message. A failed turn is shown and leaves the transcript as it was, so the message can be
// retried.
func (c *chat) send(ctx context.Context, message string) error {
	transcript := append(c.transcript[:len(c.transcript):len(c.transcript)], ai.NewTurn(ai.RoleUser, message))

	result, err := c.sess.Submit(ctx, session.Request{
		Conversation: transcript,
		TargetFiles:  c.targetFiles,
	}, statusPrinter{w: c.out})
	if err != nil {
		fmt.Fprintln(c.out, failStyle.Render(result.Text))
		return err
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, modelStyle.Render(modelLabel(cfg.Provider)))
	fmt.Fprintln(c.out, result.Text)
	renderResults(c.out, result.Results)

	c.transcript = append(transcript, ai.NewTurn(ai.RoleModel, result.Text))
	return nil
}
