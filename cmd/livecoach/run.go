package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/livecoach/capture"
	"github.com/AltairaLabs/livecoach/config"
	"github.com/AltairaLabs/livecoach/history"
	"github.com/AltairaLabs/livecoach/logger"
	metrics "github.com/AltairaLabs/livecoach/metrics/prometheus"
	"github.com/AltairaLabs/livecoach/providers"
	"github.com/AltairaLabs/livecoach/session"
	"github.com/AltairaLabs/livecoach/telemetry"
)

const quitCommand = "/quit"

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a coaching session",
		Long: `Start a session with the configured provider and keep it open until
interrupted or stdin is closed. Each line typed on stdin is sent as a
question; "/quit" ends the session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
				logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringP("provider", "p", "", "Provider id (gemini, groq, openrouter)")
	cmd.Flags().String("profile", "", "Prompt profile (interview, sales, meeting, ...)")
	cmd.Flags().String("language", "", "BCP-47 language code, e.g. en-US")
	cmd.Flags().String("custom-prompt", "", "Extra instructions appended to the profile prompt")
	cmd.Flags().StringSlice("tools", nil, "Provider tools to enable, e.g. googleSearch")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().String("history", "", "History backend (memory, redis, none)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	_ = v.BindPFlag("provider", cmd.Flags().Lookup("provider"))
	_ = v.BindPFlag("profile", cmd.Flags().Lookup("profile"))
	_ = v.BindPFlag("language", cmd.Flags().Lookup("language"))
	_ = v.BindPFlag("custom_prompt", cmd.Flags().Lookup("custom-prompt"))
	_ = v.BindPFlag("tools", cmd.Flags().Lookup("tools"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("history.backend", cmd.Flags().Lookup("history"))
	_ = v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

// runSession starts the configured session and runs capture, history and
// the input loop until ctx is done or the user quits.
func runSession(ctx context.Context, cfg *config.Config, in io.Reader, out, errOut io.Writer) error {
	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, "livecoach")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		telemetry.Install(tp)
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Trace shutdown failed", "error", err)
			}
		}()
	}

	orch := session.New(session.WithProviderConfig(cfg.ProviderConfig))
	orch.Subscribe(newConsole(out, errOut))
	ended := make(chan error, 1)
	orch.Subscribe(providers.ObserverFuncs{Closed: func(err error) {
		select {
		case ended <- err:
		default:
		}
	}})

	store, closeStore, err := openHistory(cfg.History)
	if err != nil {
		return err
	}
	defer closeStore()
	var recorder *history.Recorder
	if store != nil {
		recorder = history.NewRecorder(store, 0)
		orch.Subscribe(recorder)
	}

	res := orch.Start(ctx, session.StartRequest{
		Provider:     cfg.Provider,
		APIKey:       cfg.APIKey,
		Profile:      cfg.Profile,
		Language:     cfg.Language,
		CustomPrompt: cfg.CustomPrompt,
		EnabledTools: cfg.Tools,
	})
	if !res.Success {
		return fmt.Errorf("failed to start %s session: %w", cfg.Provider, res.Error)
	}
	defer func() {
		if err := orch.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Session close failed", "error", err)
		}
	}()
	if rec, ok := orch.Current(); ok {
		logger.Info("Session started", "session_id", rec.ID, "provider", rec.Provider, "profile", rec.Profile)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		exp := metrics.NewExporter(cfg.Metrics.Addr)
		g.Go(func() error { return exp.Serve(gctx) })
	}
	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}
	if err := startCapture(gctx, g, cfg, orch); err != nil {
		return err
	}
	g.Go(func() error { return readInput(gctx, in, orch) })
	g.Go(func() error {
		select {
		case err := <-ended:
			return fmt.Errorf("session ended by %s: %w", cfg.Provider, err)
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// openHistory returns the configured store, or nil when history is off.
func openHistory(cfg config.HistoryConfig) (history.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.HistoryNone:
		return nil, noop, nil
	case config.HistoryRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Redis close failed", "error", err)
			}
		}
		return history.NewRedisStore(client, history.WithTTL(cfg.TTL)), closeFn, nil
	case config.HistoryMemory, "":
		return history.NewMemoryStore(cfg.TTL), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func startCapture(ctx context.Context, g *errgroup.Group, cfg *config.Config, orch *session.Orchestrator) error {
	caps, _ := orch.Capabilities()
	if cfg.Audio.Command != "" {
		if !caps.SupportsRealtimeAudio {
			logger.Warn("Audio capture disabled; provider needs transcribed text", "provider", cfg.Provider)
		} else {
			proc, err := capture.NewAudioProcess(capture.AudioConfig{
				Command:      cfg.Audio.Command,
				Args:         cfg.Audio.Args,
				Channels:     cfg.Audio.Channels,
				DebugDumpDir: cfg.Audio.DebugDumpDir,
			}, orch)
			if err != nil {
				return err
			}
			g.Go(func() error { return proc.Run(ctx) })
		}
	}
	if cfg.Screenshots.Command != "" {
		pump := capture.NewScreenshotPump(capture.ScreenshotConfig{
			Command:  cfg.Screenshots.Command,
			Args:     cfg.Screenshots.Args,
			Interval: cfg.Screenshots.Interval,
			MaxWidth: cfg.Screenshots.MaxWidth,
			Quality:  cfg.Screenshots.Quality,
		}, orch)
		g.Go(func() error { return pump.Run(ctx) })
	}
	return nil
}

// errQuit ends the errgroup when the user leaves.
var errQuit = errors.New("quit")

// readInput sends each non-empty line from in as a question. It returns
// errQuit on EOF or /quit so the other workers stop.
func readInput(ctx context.Context, in io.Reader, orch *session.Orchestrator) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == quitCommand {
				return errQuit
			}
			if res := orch.SendText(ctx, line); !res.Success {
				logger.Warn("Question failed", "kind", string(res.Kind), "error", res.Error)
			}
		}
	}
}
