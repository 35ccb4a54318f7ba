package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/pkg/detection"
)

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "List the faces found in a photo",
	Long: `Run the configured face locator and print the boxes as JSON.

With --describe and a vision model backend (ollama, llamacpp), the model is
first asked to describe the image, which checks that it can see it at all.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().String("detector", "", "face locator: yolo|pigo|ollama|llamacpp")
	detectCmd.Flags().Bool("describe", false, "ask the vision model to describe the image first")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupWithFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = ortenv.Shutdown() }()

	p := newProcessor(cfg)
	c, err := newCropper(cfg, p, newHub(cfg, logger), logger)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "describe") {
		vl, ok := c.Locator().(*detection.VisionLocator)
		if !ok {
			return fmt.Errorf("--describe needs a vision model detector, got %s", c.Locator().Name())
		}
		img, err := p.LoadImage(args[0])
		if err != nil {
			return err
		}
		desc, err := vl.TestVision(cmd.Context(), img)
		if err != nil {
			return fmt.Errorf("vision test failed: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Model sees: %s\n", desc)
	}

	boxes, err := c.DetectFaces(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"locator": c.Locator().Name(),
		"faces":   boxes,
	})
}
