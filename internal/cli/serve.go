package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start an HTTP server exposing the cropper and the pipeline:

  GET  /healthz   liveness
  POST /v1/crop   multipart "image", returns the square crop as PNG
  POST /v1/runs   multipart "image" and optional "seed", returns the manifest

Pipeline runs are executed one at a time.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "address to listen on")
	serveCmd.Flags().String("runs-dir", "", "directory for per-run outputs")
	serveCmd.Flags().String("detector", "", "face locator: yolo|pigo|ollama|llamacpp")
	serveCmd.Flags().String("stylizer", "", "style transfer backend: sdwebui|openai|gemini")
	serveCmd.Flags().String("upscaler", "", "upscaler: onnx|resample")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupWithFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = ortenv.Shutdown() }()

	setString(cmd, "addr", &cfg.Server.Addr)
	setString(cmd, "runs-dir", &cfg.Server.RunsDir)
	// progress bars would interleave with request logs
	cfg.Pipeline.Progress = false

	ctx := cmd.Context()
	d, p, err := newDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv := server.New(cfg.Server, d, p, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
