package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/internal/utils"
	"github.com/menta2k/uwuifier/pkg/upscale"
)

var upscaleCmd = &cobra.Command{
	Use:   "upscale <image>",
	Short: "Upscale an image with the configured super-resolution model",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpscale,
}

func init() {
	rootCmd.AddCommand(upscaleCmd)
	upscaleCmd.Flags().StringP("output", "o", "", "output directory")
	upscaleCmd.Flags().String("upscaler", "", "upscaler: onnx|resample")
}

func runUpscale(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupWithFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = ortenv.Shutdown() }()

	u, err := newUpscaler(cfg, newHub(cfg, logger), logger)
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(cfg.Pipeline.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out := utils.GenerateOutputFilename(args[0], cfg.Pipeline.OutputDir, "_upscaled", "png")

	img, err := upscale.File(cmd.Context(), u, newProcessor(cfg), args[0], out)
	if err != nil {
		return err
	}
	b := img.Bounds()
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d, %s)\n", out, b.Dx(), b.Dy(), u.Name())
	return nil
}
