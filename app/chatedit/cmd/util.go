package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/config"
	"github.com/cchalm/chatedit/internal/filesystem"
	"github.com/cchalm/chatedit/internal/session"
	"github.com/cchalm/chatedit/internal/telemetry"
	"github.com/cchalm/chatedit/internal/transport"
)

func setupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Println("Interrupt signal detected, shutting down gracefully...")
		cancel()
		<-interrupt
		log.Fatal("Forcing shutdown")
	}()

	return ctx
}

// modelLabel is how the model is named in status lines
func modelLabel(provider config.Provider) string {
	switch provider {
	case config.ProviderAnthropic:
		return "Claude"
	case config.ProviderGemini:
		return "Gemini"
	}
	return string(provider)
}

func createModel(ctx context.Context, c config.Config) (ai.ChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Provider {
	case config.ProviderAnthropic:
		return ai.NewAnthropicModel(c.AnthropicAPIKey, c.Model, transport.NewClient()), nil
	case config.ProviderGemini:
		return ai.NewGeminiModel(ctx, c.GeminiAPIKey, c.Model)
	}
	return nil, fmt.Errorf("unknown provider %q", c.Provider)
}

func createTelemetryProvider(ctx context.Context) (*telemetry.Provider, error) {
	telemetryConfig := telemetry.TelemetryConfig{
		Enabled:        cfg.TelemetryEnabled,
		Endpoint:       cfg.OTLPEndpoint,
		ServiceVersion: versionInfo.Version,
	}
	return telemetry.NewProvider(ctx, telemetryConfig)
}

type sessionOptions struct {
	// dryRun keeps edits in memory instead of writing them to the project
	dryRun bool
	// githubProject, if set, is an owner/repo[@ref] that target files are read from
	githubProject string
}

// openSession builds a session on the --project root. When dry-running, the returned overlay holds the edits.
func openSession(ctx context.Context, tp *telemetry.Provider, opts sessionOptions) (*session.Session, *filesystem.MemDiffFileSystem, error) {
	model, err := createModel(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	osfs, err := filesystem.NewOSFileSystem(flags.Project)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open project: %w", err)
	}

	var fs filesystem.FileSystem = osfs
	var overlay *filesystem.MemDiffFileSystem
	if opts.dryRun {
		overlay = filesystem.NewMemDiffFileSystem(osfs)
		fs = overlay
	}

	var contextFS filesystem.ReadOnlyFileSystem
	if opts.githubProject != "" {
		owner, repo, ref, err := filesystem.ParseGithubProject(opts.githubProject)
		if err != nil {
			return nil, nil, err
		}
		contextFS = filesystem.NewGithubFileSystem(ctx, cfg.GithubToken, owner, repo, ref)
	}

	sess, err := session.New(session.Options{
		Model:     model,
		ModelName: modelLabel(cfg.Provider),
		Provider:  string(cfg.Provider),
		FS:        fs,
		ContextFS: contextFS,
		Root:      osfs.Root(),
		Telemetry: tp,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, overlay, nil
}
