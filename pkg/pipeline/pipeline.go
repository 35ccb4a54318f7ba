// Package pipeline runs crop, stylize and upscale in order, handing each
// stage's output file to the next.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/utils"
	"github.com/menta2k/uwuifier/pkg/cropper"
	"github.com/menta2k/uwuifier/pkg/processing"
	"github.com/menta2k/uwuifier/pkg/stylize"
	"github.com/menta2k/uwuifier/pkg/types"
	"github.com/menta2k/uwuifier/pkg/upscale"
)

// MaxSeed is the largest seed drawn for a run
const MaxSeed = 1_000_000

// Stage names used in logs, timings and errors
const (
	StageCrop    = "crop"
	StageStylize = "stylize"
	StageUpscale = "upscale"
)

// StageError reports which stage aborted a run
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewSeed draws a seed uniformly from [0, MaxSeed]. A nil r uses the
// global source.
func NewSeed(r *rand.Rand) int64 {
	if r == nil {
		return rand.Int64N(MaxSeed + 1)
	}
	return r.Int64N(MaxSeed + 1)
}

// Paths are the files one run produces
type Paths struct {
	Square   string
	Control  string
	Stylized string
	Upscaled string
	Manifest string
}

// PathsFor derives the output files for input inside outputDir
func PathsFor(input, outputDir string) Paths {
	stem := utils.Stem(input)
	return Paths{
		Square:   utils.GenerateOutputFilename(input, outputDir, "_square", ""),
		Control:  filepath.Join(outputDir, "control.png"),
		Stylized: filepath.Join(outputDir, stem+"_square_anime.png"),
		Upscaled: filepath.Join(outputDir, stem+"_square_anime_upscaled.png"),
		Manifest: filepath.Join(outputDir, stem+"_run.json"),
	}
}

// Options controls a Driver
type Options struct {
	OutputDir      string
	Prompt         string
	NegativePrompt string
	// Seed fixes the generation seed; nil draws a new one per run
	Seed  *int64
	Steps int
	Size  int
	// Progress receives the stage progress bar; nil hides it
	Progress io.Writer
}

// Driver sequences the stages
type Driver struct {
	cropper   *cropper.Cropper
	stylizer  stylize.Stylizer
	upscaler  upscale.Upscaler
	processor *processing.Processor
	opts      Options
	logger    *zap.Logger
	rand      *rand.Rand
}

// New creates a driver
func New(c *cropper.Cropper, s stylize.Stylizer, u upscale.Upscaler, p *processing.Processor, opts Options, logger *zap.Logger) *Driver {
	if p == nil {
		p = processing.NewProcessor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Prompt == "" {
		opts.Prompt = stylize.DefaultPrompt
	}
	if opts.NegativePrompt == "" {
		opts.NegativePrompt = stylize.DefaultNegativePrompt
	}
	return &Driver{
		cropper:   c,
		stylizer:  s,
		upscaler:  u,
		processor: p,
		opts:      opts,
		logger:    logger,
	}
}

// WithRand makes seed selection use r
func (d *Driver) WithRand(r *rand.Rand) *Driver {
	d.rand = r
	return d
}

// WithSeed returns a copy of d that uses seed for every run
func (d *Driver) WithSeed(seed int64) *Driver {
	cp := *d
	cp.opts.Seed = &seed
	return &cp
}

// Cropper returns the crop stage
func (d *Driver) Cropper() *cropper.Cropper {
	return d.cropper
}

// Run processes inputPath through every stage. The first failing stage
// aborts the run; files already written are left in place.
func (d *Driver) Run(ctx context.Context, inputPath string) (*types.Manifest, error) {
	return d.RunInto(ctx, inputPath, d.opts.OutputDir)
}

// RunInto is Run with an explicit output directory
func (d *Driver) RunInto(ctx context.Context, inputPath, outputDir string) (*types.Manifest, error) {
	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := PathsFor(inputPath, outputDir)
	seed := d.seed()
	m := &types.Manifest{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now().UTC(),
		Input:          inputPath,
		Seed:           seed,
		Prompt:         d.opts.Prompt,
		NegativePrompt: d.opts.NegativePrompt,
		Locator:        d.cropper.Locator().Name(),
		Stylizer:       d.stylizer.Name(),
		Upscaler:       d.upscaler.Name(),
	}
	logger := d.logger.With(zap.String("run_id", m.RunID), zap.String("input", inputPath))
	logger.Info("starting run", zap.Int64("seed", seed), zap.String("output_dir", outputDir))

	bar := d.newBar()
	stage := func(name string, fn func() error) error {
		bar.Describe(name)
		start := time.Now()
		if err := fn(); err != nil {
			logger.Error("stage failed", zap.String("stage", name), zap.Error(err))
			return &StageError{Stage: name, Err: err}
		}
		elapsed := time.Since(start)
		m.Timings = append(m.Timings, types.StageTiming{Stage: name, Duration: elapsed})
		logger.Info("stage finished", zap.String("stage", name), zap.Duration("elapsed", elapsed))
		_ = bar.Add(1)
		return nil
	}

	err := stage(StageCrop, func() error {
		res, err := d.cropper.CropFile(ctx, inputPath, paths.Square)
		if err != nil {
			return err
		}
		m.SquarePath = res.Path
		m.Face = res.Face
		m.Crop = res.Region
		m.Source = res.Source
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = stage(StageStylize, func() error {
		square, err := d.processor.LoadImage(paths.Square)
		if err != nil {
			return err
		}

		req := stylize.Request{
			Prompt:         d.opts.Prompt,
			NegativePrompt: d.opts.NegativePrompt,
			Seed:           seed,
			Steps:          d.opts.Steps,
			Size:           d.opts.Size,
		}
		if cp, ok := d.stylizer.(stylize.ControlProducer); ok {
			if ctrl := cp.ControlImage(square, d.opts.Size); ctrl != nil {
				if err := d.processor.SaveImage(ctrl, paths.Control); err != nil {
					return fmt.Errorf("failed to save control image: %w", err)
				}
				req.Control = ctrl
				m.ControlPath = paths.Control
			}
		}

		out, err := d.stylizer.Stylize(ctx, square, req)
		if err != nil {
			return err
		}
		if err := d.processor.SaveImage(out, paths.Stylized); err != nil {
			return fmt.Errorf("failed to save stylized image: %w", err)
		}
		m.StylizedPath = paths.Stylized
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = stage(StageUpscale, func() error {
		if _, err := upscale.File(ctx, d.upscaler, d.processor, paths.Stylized, paths.Upscaled); err != nil {
			return err
		}
		m.UpscaledPath = paths.Upscaled
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = bar.Finish()

	if err := writeManifest(paths.Manifest, m); err != nil {
		return nil, err
	}
	logger.Info("run complete", zap.String("output", m.UpscaledPath), zap.String("manifest", paths.Manifest))
	return m, nil
}

func (d *Driver) seed() int64 {
	if d.opts.Seed != nil {
		return *d.opts.Seed
	}
	return NewSeed(d.rand)
}

func (d *Driver) newBar() *progressbar.ProgressBar {
	w := d.opts.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(3,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(d.opts.Progress != nil),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

func writeManifest(path string, m *types.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
