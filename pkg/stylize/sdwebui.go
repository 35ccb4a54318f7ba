package stylize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/pkg/processing"
)

// DefaultSDWebUIURL is where a local Stable Diffusion WebUI listens
const DefaultSDWebUIURL = "http://127.0.0.1:7860"

// SDWebUIConfig configures the Stable Diffusion WebUI backend
type SDWebUIConfig struct {
	URL string `json:"url" yaml:"url"`
	// Checkpoint switches the base model; empty keeps the loaded one
	Checkpoint string  `json:"checkpoint" yaml:"checkpoint"`
	Sampler    string  `json:"sampler" yaml:"sampler"`
	CFGScale   float64 `json:"cfg_scale" yaml:"cfg_scale"`
	// ControlModel and ControlModule select the ControlNet unit
	ControlModel  string  `json:"control_model" yaml:"control_model"`
	ControlModule string  `json:"control_module" yaml:"control_module"`
	ControlWeight float64 `json:"control_weight" yaml:"control_weight"`
	// LocalControl builds the lineart control image in-process and sends it
	// with module "none"
	LocalControl bool          `json:"local_control" yaml:"local_control"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultSDWebUIConfig returns settings matching SD 1.5 with the
// lineart-anime ControlNet
func DefaultSDWebUIConfig() SDWebUIConfig {
	return SDWebUIConfig{
		URL:           DefaultSDWebUIURL,
		Sampler:       "UniPC",
		CFGScale:      7.5,
		ControlModel:  "control_v11p_sd15s2_lineart_anime",
		ControlModule: "lineart_anime",
		ControlWeight: 1.0,
		Timeout:       10 * time.Minute,
	}
}

// TXT2IMGRequest is the body of /sdapi/v1/txt2img
type TXT2IMGRequest struct {
	Prompt           string                 `json:"prompt"`
	NegativePrompt   string                 `json:"negative_prompt,omitempty"`
	Seed             int64                  `json:"seed"`
	Steps            int                    `json:"steps"`
	Width            int                    `json:"width"`
	Height           int                    `json:"height"`
	CFGScale         float64                `json:"cfg_scale"`
	SamplerName      string                 `json:"sampler_name,omitempty"`
	BatchSize        int                    `json:"batch_size"`
	OverrideSettings map[string]interface{} `json:"override_settings,omitempty"`
	AlwaysOnScripts  map[string]interface{} `json:"alwayson_scripts,omitempty"`
	SendImages       bool                   `json:"send_images"`
	SaveImages       bool                   `json:"save_images"`
}

// ControlNetUnit is one ControlNet extension argument
type ControlNetUnit struct {
	Enabled      bool    `json:"enabled"`
	Image        string  `json:"image"`
	Module       string  `json:"module"`
	Model        string  `json:"model"`
	Weight       float64 `json:"weight"`
	PixelPerfect bool    `json:"pixel_perfect"`
	ResizeMode   string  `json:"resize_mode"`
}

// TXT2IMGResponse is the answer of /sdapi/v1/txt2img
type TXT2IMGResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// SDWebUIStylizer drives AUTOMATIC1111-compatible WebUI servers with the
// ControlNet extension
type SDWebUIStylizer struct {
	config     SDWebUIConfig
	processor  *processing.Processor
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSDWebUIStylizer creates the backend
func NewSDWebUIStylizer(cfg SDWebUIConfig, logger *zap.Logger) *SDWebUIStylizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultSDWebUIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &SDWebUIStylizer{
		config:     cfg,
		processor:  processing.NewProcessor(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name returns "sdwebui"
func (s *SDWebUIStylizer) Name() string {
	return "sdwebui"
}

// ControlImage returns the local lineart control image, or nil when the
// WebUI runs the annotator itself
func (s *SDWebUIStylizer) ControlImage(img image.Image, size int) image.Image {
	if !s.config.LocalControl {
		return nil
	}
	return LineArt(Prepare(img, size))
}

// Stylize runs txt2img guided by the ControlNet unit
func (s *SDWebUIStylizer) Stylize(ctx context.Context, img image.Image, req Request) (image.Image, error) {
	size := req.size()
	input := Prepare(img, size)

	control := req.Control
	module := s.config.ControlModule
	if control == nil {
		control = s.ControlImage(input, size)
	}
	if control != nil {
		module = "none"
	} else {
		control = input
	}

	controlB64, err := encodePNGBase64(control)
	if err != nil {
		return nil, fmt.Errorf("failed to encode control image: %w", err)
	}

	payload := TXT2IMGRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Steps:          req.steps(),
		Width:          size,
		Height:         size,
		CFGScale:       s.config.CFGScale,
		SamplerName:    s.config.Sampler,
		BatchSize:      1,
		SendImages:     true,
		AlwaysOnScripts: map[string]interface{}{
			"controlnet": map[string]interface{}{
				"args": []ControlNetUnit{{
					Enabled:      true,
					Image:        controlB64,
					Module:       module,
					Model:        s.config.ControlModel,
					Weight:       s.config.ControlWeight,
					PixelPerfect: true,
					ResizeMode:   "Crop and Resize",
				}},
			},
		},
	}
	if s.config.Checkpoint != "" {
		payload.OverrideSettings = map[string]interface{}{"sd_model_checkpoint": s.config.Checkpoint}
	}

	s.logger.Debug("sending txt2img request",
		zap.String("url", s.config.URL),
		zap.Int64("seed", req.Seed),
		zap.Int("steps", payload.Steps),
		zap.String("control_module", module))

	body, err := s.sendRequest(ctx, "/sdapi/v1/txt2img", payload)
	if err != nil {
		return nil, err
	}

	var resp TXT2IMGResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode txt2img response: %w", err)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("txt2img returned no images")
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURL(resp.Images[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}
	return s.processor.DecodeImage(data)
}

func (s *SDWebUIStylizer) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(s.config.URL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sdwebui returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// stripDataURL drops a "data:image/png;base64," prefix
func stripDataURL(s string) string {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+len(";base64,"):]
	}
	return s
}
