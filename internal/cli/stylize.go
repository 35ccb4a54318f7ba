package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/menta2k/uwuifier/internal/utils"
	"github.com/menta2k/uwuifier/pkg/pipeline"
	"github.com/menta2k/uwuifier/pkg/stylize"
)

var stylizeCmd = &cobra.Command{
	Use:   "stylize <square-image>",
	Short: "Restyle an already cropped square as anime art",
	Args:  cobra.ExactArgs(1),
	RunE:  runStylize,
}

func init() {
	rootCmd.AddCommand(stylizeCmd)
	stylizeCmd.Flags().StringP("output", "o", "", "output directory")
	stylizeCmd.Flags().Int64("seed", -1, "generation seed, -1 draws a random one")
	stylizeCmd.Flags().String("prompt", "", "positive prompt")
	stylizeCmd.Flags().String("negative-prompt", "", "negative prompt")
	stylizeCmd.Flags().Int("steps", 0, "diffusion steps")
	stylizeCmd.Flags().Int("size", 0, "stylization resolution in pixels")
	stylizeCmd.Flags().String("stylizer", "", "style transfer backend: sdwebui|openai|gemini")
}

func runStylize(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupWithFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	s, err := newStylizer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	p := newProcessor(cfg)

	img, err := p.LoadImage(args[0])
	if err != nil {
		return err
	}

	seed := pipeline.NewSeed(nil)
	if cfg.Pipeline.Seed != nil {
		seed = *cfg.Pipeline.Seed
	}
	req := stylize.Request{
		Prompt:         cfg.Pipeline.Prompt,
		NegativePrompt: cfg.Pipeline.NegativePrompt,
		Seed:           seed,
		Steps:          cfg.Pipeline.Steps,
		Size:           cfg.Pipeline.Size,
	}

	outDir := cfg.Pipeline.OutputDir
	if err := utils.EnsureDir(outDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if cp, ok := s.(stylize.ControlProducer); ok {
		if ctrl := cp.ControlImage(img, req.Size); ctrl != nil {
			ctrlPath := filepath.Join(outDir, "control.png")
			if err := p.SaveImage(ctrl, ctrlPath); err != nil {
				return fmt.Errorf("failed to save control image: %w", err)
			}
			req.Control = ctrl
			fmt.Fprintf(cmd.OutOrStdout(), "Control: %s\n", ctrlPath)
		}
	}

	out, err := s.Stylize(ctx, img, req)
	if err != nil {
		return &pipeline.StageError{Stage: pipeline.StageStylize, Err: err}
	}

	outPath := utils.GenerateOutputFilename(args[0], outDir, "_anime", "png")
	if err := p.SaveImage(out, outPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, seed %d)\n", outPath, s.Name(), seed)
	return nil
}
