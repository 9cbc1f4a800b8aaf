package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/spbui00/mockr/pkg/dialog"
	"github.com/spbui00/mockr/pkg/gateway/config"
	gatewayserver "github.com/spbui00/mockr/pkg/gateway/server"
	"github.com/spbui00/mockr/pkg/store"
	"github.com/spbui00/mockr/pkg/voice/deepgram"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, *slog.Logger) (*gatewayserver.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: buildGateway,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildGateway wires the external collaborators from config. The returned
// cleanup closes the archive.
func buildGateway(cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	dialogClient, err := dialog.NewClient(dialog.Options{
		BaseURL:    cfg.DialogAPIURL,
		APIKey:     cfg.DialogAPIKey,
		Logger:     logger,
		MaxRetries: cfg.DialogMaxRetries,
		RetryBase:  cfg.DialogRetryBase,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build dialog client: %w", err)
	}

	deps := gatewayserver.Dependencies{Dialog: dialogClient}

	if cfg.DeepgramAPIKey != "" {
		speech := deepgram.NewWithBaseURL(cfg.DeepgramAPIKey, cfg.DeepgramBaseURL, nil)
		deps.Transcriber = speech
		deps.Synthesizer = speech
	}

	cleanup := func() {}
	if cfg.ArchiveDSN != "" {
		archive, err := store.NewSQLiteArchive(cfg.ArchiveDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		deps.Archive = archive
		cleanup = func() {
			if err := archive.Close(); err != nil {
				logger.Warn("close archive", "error", err)
			}
		}
	}

	return gatewayserver.New(cfg, logger, deps), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, cleanup, err := deps.newGateway(cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr,
		"speech_enabled", cfg.DeepgramAPIKey != "",
		"archive_enabled", cfg.ArchiveDSN != "")

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Tracker().Wait(waitCtx) {
		gw.Tracker().CancelAll()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "mockr: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "mockr: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
