package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/frontdesk/internal/api"
	"github.com/kalambet/frontdesk/internal/config"
	"github.com/kalambet/frontdesk/internal/escalation"
	"github.com/kalambet/frontdesk/internal/ledger"
	"github.com/kalambet/frontdesk/internal/livekit"
	"github.com/kalambet/frontdesk/internal/notify"
	"github.com/kalambet/frontdesk/internal/speech"
	"github.com/kalambet/frontdesk/internal/storage"
	"github.com/kalambet/frontdesk/internal/sweeper"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the frontdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running frontdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show frontdesk status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP supervisor tools on stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "frontdesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openStore selects the snapshot backend. The returned closer is never nil.
func openStore(ctx context.Context, cfg config.StorageConfig) (ledger.Store, func() error, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		if info, ok, err := store.Info(ctx); err != nil {
			slog.Warn("could not read snapshot info", "error", err)
		} else if ok {
			slog.Info("sqlite snapshot found", "requests", info.Requests, "learned", info.Learned, "saved_at", info.SavedAt)
		}
		return store, store.Close, nil
	default:
		store := ledger.NewJSONFileStore(cfg.LedgerPath())
		slog.Info("using json snapshot", "path", store.Path())
		return store, func() error { return nil }, nil
	}
}

// buildNotifier always logs and adds the webhook and Redis sinks when
// configured. The closer releases the Redis connection.
func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, func() error) {
	notifiers := notify.Multi{notify.NewLogNotifier(nil)}
	closer := func() error { return nil }

	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, nil))
		slog.Info("webhook notifications enabled")
	}
	if cfg.RedisAddr != "" {
		client := notify.DialRedis(cfg.RedisAddr, cfg.RedisPassword)
		notifiers = append(notifiers, notify.NewRedisNotifier(client, cfg.RedisChannel))
		closer = client.Close
		slog.Info("redis notifications enabled", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}
	return notifiers, closer
}

func buildSynthesizer(cfg config.SpeechConfig) speech.Synthesizer {
	switch cfg.Provider {
	case "command":
		return speech.NewCommandSynthesizer(cfg.Command, cfg.Voice)
	case "none":
		return speech.Nop{}
	default:
		return speech.NewHTTPSynthesizer(cfg.BaseURL, cfg.Lang, nil)
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "frontdesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	// Refuse to start twice: check the health endpoint, then write the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg.Server) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("frontdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("frontdesk is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	l, err := ledger.Open(ctx, store,
		ledger.WithExpiry(cfg.Ledger.Expiry),
		ledger.WithSaveTimeout(cfg.Storage.SaveTimeout),
		ledger.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	slog.Info("ledger loaded", "pending", len(l.Requests(ledger.StatusPending)), "learned", len(l.LearnedAnswers()))

	notifier, closeNotifier := buildNotifier(cfg.Notify)
	defer closeNotifier()

	audio, err := speech.NewAudioStore(cfg.Storage.AudioDir())
	if err != nil {
		return err
	}

	synth := buildSynthesizer(cfg.Speech)
	if err := speech.EnsureReady(ctx, synth, os.Stderr); err != nil {
		printWarning("continuing without audio until speech recovers: %v", err)
	}

	policy := escalation.NewPolicy(l, notifier, nil, escalation.WithLogger(slog.Default()))
	deps := api.Deps{
		Ledger:     l,
		Policy:     policy,
		Speech:     synth,
		Audio:      audio,
		LiveKitURL: cfg.LiveKit.URL,
		Logger:     slog.Default(),
	}
	if issuer := livekit.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL); issuer.Configured() {
		deps.Tokens = issuer
	} else {
		slog.Info("livekit credentials not set, token endpoint disabled")
	}
	if cfg.RateLimit.RPS > 0 {
		deps.RateLimiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("frontdesk listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	worker := sweeper.NewWorker(l, cfg.Ledger.Expiry, cfg.Ledger.SweepInterval)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if deps.RateLimiter != nil {
		g.Go(func() error {
			deps.RateLimiter.Run(gctx)
			return nil
		})
	}

	if withMCP {
		// The MCP session ending (stdin closed) must not stop the HTTP server.
		go serveMCP(gctx, l, deps.Policy, os.Stdin, os.Stdout)
	}

	err = g.Wait()
	// Let escalation alerts already in flight reach the supervisor before the
	// notifiers are closed.
	policy.Wait()
	return err
}

func serveMCP(ctx context.Context, l *ledger.Ledger, policy api.Answerer, in io.Reader, out io.Writer) {
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Ledger:  l,
		Policy:  policy,
		Version: version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("MCP stdio server error", "error", err)
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("frontdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop frontdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to frontdesk (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    serverURL(cfg.Server),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	running := false
	if resp, err := client.get(ctx, "/health"); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if resp, err := client.get(ctx, "/requests"); err == nil {
			var pending []ledger.Request
			if decodeJSON(resp, &pending) == nil {
				printStatus("Pending requests", "%d", len(pending))
			}
		}
		if resp, err := client.get(ctx, "/learned"); err == nil {
			var learned map[string]string
			if decodeJSON(resp, &learned) == nil {
				printStatus("Learned answers", "%d", len(learned))
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Speech", "%s", cfg.Speech.Provider)
	if cfg.LiveKit.APIKey != "" && cfg.LiveKit.APISecret != "" {
		printStatus("LiveKit", "configured")
	} else {
		printStatus("LiveKit", "not configured")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
