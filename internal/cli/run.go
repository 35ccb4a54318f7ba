package cli

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/config"
	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/internal/utils"
	"github.com/menta2k/uwuifier/pkg/processing"
)

var runCmd = &cobra.Command{
	Use:   "run <image|url>",
	Short: "Crop, stylize and upscale one photo",
	Long: `Run the whole pipeline on one photo. The outputs are written to the
output directory:

  <name>_square.<ext>            face-centered square crop
  control.png                    lineart control image (sdwebui only)
  <name>_square_anime.png        stylized square
  <name>_square_anime_upscaled.png
  <name>_run.json                run manifest`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addPipelineFlags(runCmd)
	addBackendFlags(runCmd)
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output directory")
	cmd.Flags().Int64("seed", -1, "generation seed, -1 draws a random one")
	cmd.Flags().String("prompt", "", "positive prompt")
	cmd.Flags().String("negative-prompt", "", "negative prompt")
	cmd.Flags().Int("steps", 0, "diffusion steps")
	cmd.Flags().Int("size", 0, "stylization resolution in pixels")
	cmd.Flags().Bool("debug", false, "write a debug overlay next to the square crop")
	cmd.Flags().Bool("no-progress", false, "hide progress bars")
}

func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().String("detector", "", "face locator: yolo|pigo|ollama|llamacpp")
	cmd.Flags().String("stylizer", "", "style transfer backend: sdwebui|openai|gemini")
	cmd.Flags().String("upscaler", "", "upscaler: onnx|resample")
}

// applyFlags copies the flags the user set onto cfg. Flags the command does
// not define are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	setString(cmd, "output", &cfg.Pipeline.OutputDir)
	setString(cmd, "prompt", &cfg.Pipeline.Prompt)
	setString(cmd, "negative-prompt", &cfg.Pipeline.NegativePrompt)
	setInt(cmd, "steps", &cfg.Pipeline.Steps)
	setInt(cmd, "size", &cfg.Pipeline.Size)
	setString(cmd, "detector", &cfg.Detection.Backend)
	setString(cmd, "stylizer", &cfg.Stylize.Backend)
	setString(cmd, "upscaler", &cfg.Upscale.Backend)

	if cmd.Flags().Changed("seed") {
		if seed := mustGetInt64(cmd, "seed"); seed >= 0 {
			cfg.Pipeline.Seed = &seed
		} else {
			cfg.Pipeline.Seed = nil
		}
	}
	if cmd.Flags().Changed("debug") {
		cfg.Pipeline.Debug = mustGetBool(cmd, "debug")
	}
	if cmd.Flags().Changed("no-progress") {
		cfg.Pipeline.Progress = !mustGetBool(cmd, "no-progress")
	}
}

// setupWithFlags is setup with the command's flags applied before validation
func setupWithFlags(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cmd, cfg)
	return setupFrom(cfg)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupWithFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = ortenv.Shutdown() }()

	ctx := cmd.Context()
	d, p, err := newDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	input, err := localInput(ctx, p, args[0], cfg.Pipeline.OutputDir)
	if err != nil {
		return err
	}

	m, err := d.Run(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s (seed %d)\n", m.RunID, m.Seed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Square:   %s\n", m.SquarePath)
	if m.ControlPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  Control:  %s\n", m.ControlPath)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Stylized: %s\n", m.StylizedPath)
	fmt.Fprintf(cmd.OutOrStdout(), "  Upscaled: %s\n", m.UpscaledPath)
	return nil
}

// localInput downloads URL inputs into dir so every stage works on a file
func localInput(ctx context.Context, p *processing.Processor, source, dir string) (string, error) {
	if !processing.IsURL(source) {
		return source, nil
	}

	img, err := p.LoadImageSmart(ctx, source)
	if err != nil {
		return "", err
	}

	name := "download.png"
	if u, err := url.Parse(source); err == nil {
		if base := utils.SanitizeFilename(path.Base(u.Path)); base != "" && utils.IsImageFile(base) {
			name = base
		}
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	local := filepath.Join(dir, name)
	if err := p.SaveImage(img, local); err != nil {
		return "", fmt.Errorf("failed to save downloaded image: %w", err)
	}
	return local, nil
}
