// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/queueplayer/internal/api/connect"
	"github.com/osa030/queueplayer/internal/api/web"
	"github.com/osa030/queueplayer/internal/app/notification"
	"github.com/osa030/queueplayer/internal/app/player"
	"github.com/osa030/queueplayer/internal/app/registry"
	"github.com/osa030/queueplayer/internal/app/sdk"
	"github.com/osa030/queueplayer/internal/infra/backend"
	"github.com/osa030/queueplayer/internal/infra/config"
	"github.com/osa030/queueplayer/internal/infra/logger"
	"github.com/osa030/queueplayer/internal/infra/spotify"
)

var (
	app        = kingpin.New("queueplayer-server", "queueplayer page and remote control server")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	launch     = app.Flag("launch", "Launch link or query (token=...) opened as a session at startup").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendClient, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.BackendTimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create backend client")
	}

	playerSDK, err := sdk.NewFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create player sdk")
	}

	notifications := notification.NewManager()
	sessions := registry.New(ctx, player.Deps{
		Config:  cfg,
		Backend: backendClient,
		SDK:     playerSDK,
		NewAPI: func(token string) player.PlaybackAPI {
			return spotify.NewWebClient(ctx, token, cfg.Spotify.APIBaseURL)
		},
	}, notifications)

	playerService := apiconnect.NewPlayerService(notifications)

	mux := http.NewServeMux()
	web.NewHandler(sessions).Register(mux)
	servicePath, serviceHandler := apiconnect.NewPlayerServiceHandler(playerService, sessions)
	mux.Handle(servicePath, serviceHandler)

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Sessions created before this point wait for the runtime in their ready hooks.
	playerSDK.Load(ctx)

	if *launch != "" {
		params, err := launchParams(*launch)
		if err != nil {
			return errors.Wrap(err, "invalid launch link")
		}
		entry := sessions.Create(params)
		zlog.Info().Msgf("Launched session: page=%s", strings.TrimRight(cfg.Server.PublicURL, "/")+web.PagePath(entry.ID))
	}

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// End streams and sessions first so Shutdown does not wait on them
	playerService.Close()
	sessions.CloseAll()
	notifications.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// launchParams accepts either a full launch link or its bare query string.
func launchParams(link string) (url.Values, error) {
	if !strings.Contains(link, "?") {
		return url.ParseQuery(link)
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	return u.Query(), nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
