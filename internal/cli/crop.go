package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/internal/utils"
)

var cropCmd = &cobra.Command{
	Use:   "crop <image>",
	Short: "Crop a photo to a square centered on its face",
	Long: `Crop a photo to the largest square that keeps its single face as close
to the center as the image edges allow. Photos with no face or more than one
face are rejected and nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runCrop,
}

func init() {
	rootCmd.AddCommand(cropCmd)
	cropCmd.Flags().StringP("output", "o", "", "output directory")
	cropCmd.Flags().Bool("debug", false, "write a debug overlay next to the square crop")
	cropCmd.Flags().String("detector", "", "face locator: yolo|pigo|ollama|llamacpp")
}

func runCrop(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupWithFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = ortenv.Shutdown() }()

	c, err := newCropper(cfg, newProcessor(cfg), newHub(cfg, logger), logger)
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(cfg.Pipeline.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out := utils.GenerateOutputFilename(args[0], cfg.Pipeline.OutputDir, "_square", "")

	res, err := c.CropFile(cmd.Context(), args[0], out)
	if err != nil {
		return err
	}

	r := res.Region
	fmt.Fprintf(cmd.OutOrStdout(), "Face:   (%.0f, %.0f) - (%.0f, %.0f)\n", res.Face.X0, res.Face.Y0, res.Face.X1, res.Face.Y1)
	fmt.Fprintf(cmd.OutOrStdout(), "Crop:   (%.0f, %.0f) - (%.0f, %.0f), side %.0f\n", r.Left, r.Top, r.Right, r.Bottom, r.Side())
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote:  %s\n", res.Path)
	if res.DebugPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Debug:  %s\n", res.DebugPath)
	}
	return nil
}
