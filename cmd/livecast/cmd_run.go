package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"livecast/internal/config"
	"livecast/internal/delivery"
	"livecast/internal/media"
)

var listenAddr string

// runCmd airs the livestream until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the livestream loop and serve the overlay hub",
	Long: `Starts the overlay hub (websocket /livestream and /artifacts/) and airs
collections until SIGINT or SIGTERM.`,
	RunE: runLivestream,
}

func runLivestream(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, ws)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nStopping livestream")
			cancel()
		case <-ctx.Done():
		}
	}()

	addr := listenAddr
	if addr == "" {
		addr = cfg.Delivery.Listen
	}
	srv := &http.Server{Addr: addr, Handler: a.hub, ReadHeaderTimeout: 10 * time.Second}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			cancel()
		}
		close(srvErr)
	}()
	logger.Info("Overlay hub listening", zap.String("addr", addr))

	topicPath := filepath.Join(config.Resolve(ws, cfg.Media.OutputDir), media.TopicFile)
	watcher, err := delivery.NewTopicWatcher(topicPath)
	if err != nil {
		logger.Warn("Topic watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("Topic watcher failed to start", zap.Error(err))
	}

	runErr := a.controller.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	a.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Overlay hub shutdown", zap.Error(err))
	}
	if watcher != nil {
		topics := watcher.Stop()
		logger.Info("Topics aired", zap.Int("count", len(topics)), zap.Strings("topics", topics))
	}

	if err := <-srvErr; err != nil {
		return fmt.Errorf("overlay hub: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
