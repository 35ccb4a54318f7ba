package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/uwuifier/internal/ortenv"
	"github.com/menta2k/uwuifier/pkg/detection"
	"github.com/menta2k/uwuifier/pkg/hub"
	"github.com/menta2k/uwuifier/pkg/llamacpp"
	"github.com/menta2k/uwuifier/pkg/ollama"
	"github.com/menta2k/uwuifier/pkg/pipeline"
	"github.com/menta2k/uwuifier/pkg/stylize"
	"github.com/menta2k/uwuifier/pkg/upscale"
)

// Config holds the application configuration
type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Stylize   StylizeConfig   `json:"stylize" yaml:"stylize"`
	Upscale   UpscaleConfig   `json:"upscale" yaml:"upscale"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Hub       HubConfig       `json:"hub" yaml:"hub"`
	ONNX      ONNXConfig      `json:"onnx" yaml:"onnx"`
	Server    ServerConfig    `json:"server" yaml:"server"`
}

// LogConfig selects the log level and encoding
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// PipelineConfig holds run-wide settings
type PipelineConfig struct {
	OutputDir      string `json:"output_dir" yaml:"output_dir"`
	Prompt         string `json:"prompt" yaml:"prompt"`
	NegativePrompt string `json:"negative_prompt" yaml:"negative_prompt"`
	// Seed fixes the generation seed; unset draws a random one per run
	Seed     *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Steps    int    `json:"steps" yaml:"steps"`
	Size     int    `json:"size" yaml:"size"`
	Debug    bool   `json:"debug" yaml:"debug"`
	Progress bool   `json:"progress" yaml:"progress"`
}

// DetectionConfig selects and tunes the face locator
type DetectionConfig struct {
	Backend       string               `json:"backend" yaml:"backend"`
	MinConfidence float64              `json:"min_confidence" yaml:"min_confidence"`
	YOLO          detection.YOLOParams `json:"yolo" yaml:"yolo"`
	Pigo          PigoConfig           `json:"pigo" yaml:"pigo"`
	Ollama        VisionModelConfig    `json:"ollama" yaml:"ollama"`
	LlamaCpp      VisionModelConfig    `json:"llamacpp" yaml:"llamacpp"`
}

// PigoConfig points at the cascade file and tunes the scan
type PigoConfig struct {
	CascadePath          string `json:"cascade_path" yaml:"cascade_path"`
	detection.PigoParams `yaml:",inline"`
}

// VisionModelConfig addresses a vision-language model server
type VisionModelConfig struct {
	URL   string `json:"url" yaml:"url"`
	Model string `json:"model" yaml:"model"`
}

// StylizeConfig selects and tunes the style-transfer backend
type StylizeConfig struct {
	Backend string                `json:"backend" yaml:"backend"`
	SDWebUI stylize.SDWebUIConfig `json:"sdwebui" yaml:"sdwebui"`
	OpenAI  APIConfig             `json:"openai" yaml:"openai"`
	Gemini  APIConfig             `json:"gemini" yaml:"gemini"`
}

// APIConfig holds hosted model credentials
type APIConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// UpscaleConfig selects and tunes the upscaler
type UpscaleConfig struct {
	Backend string             `json:"backend" yaml:"backend"`
	ONNX    upscale.ONNXParams `json:"onnx" yaml:"onnx"`
	// Scale is used by the resample backend
	Scale float64 `json:"scale" yaml:"scale"`
}

// OutputConfig holds configuration for output encoding
type OutputConfig struct {
	Quality  int  `json:"quality" yaml:"quality"`
	Lossless bool `json:"lossless" yaml:"lossless"`
}

// HubConfig configures model downloads
type HubConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// ONNXConfig locates the onnxruntime shared library
type ONNXConfig struct {
	LibraryPath string `json:"library_path" yaml:"library_path"`
}

// ServerConfig configures `uwuifier serve`
type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	RunsDir     string `json:"runs_dir" yaml:"runs_dir"`
	MaxUploadMB int64  `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// Backend names
var (
	DetectionBackends = []string{"yolo", "pigo", "ollama", "llamacpp"}
	StylizeBackends   = []string{"sdwebui", "openai", "gemini"}
	UpscaleBackends   = []string{"onnx", "resample"}
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Pipeline: PipelineConfig{
			OutputDir:      "./output",
			Prompt:         stylize.DefaultPrompt,
			NegativePrompt: stylize.DefaultNegativePrompt,
			Steps:          stylize.DefaultSteps,
			Size:           stylize.DefaultSize,
			Progress:       true,
		},
		Detection: DetectionConfig{
			Backend:       "yolo",
			MinConfidence: 0.25,
			YOLO:          detection.DefaultYOLOParams(),
			Pigo:          PigoConfig{PigoParams: detection.DefaultPigoParams()},
			Ollama:        VisionModelConfig{URL: ollama.DefaultURL, Model: "qwen2.5vl:7b"},
			LlamaCpp:      VisionModelConfig{URL: llamacpp.DefaultURL, Model: "llava"},
		},
		Stylize: StylizeConfig{
			Backend: "sdwebui",
			SDWebUI: stylize.DefaultSDWebUIConfig(),
			OpenAI:  APIConfig{Model: stylize.DefaultOpenAIModel},
			Gemini:  APIConfig{Model: stylize.DefaultGeminiModel},
		},
		Upscale: UpscaleConfig{
			Backend: "onnx",
			ONNX:    upscale.ONNXParams{Model: upscale.DefaultModel, Scale: 2},
			Scale:   2,
		},
		Output: OutputConfig{
			Quality: 95,
		},
		Hub: HubConfig{
			Endpoint: hub.DefaultEndpoint,
			CacheDir: hub.DefaultCacheDir(),
		},
		Server: ServerConfig{
			Addr:        ":8080",
			RunsDir:     "./runs",
			MaxUploadMB: 25,
		},
	}
}

// Load reads filename over the defaults and applies environment overrides.
// A missing file is only an error when mustExist is set.
func Load(filename string, mustExist bool) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil || mustExist {
			if err := cfg.decodeFile(filename); err != nil {
				return nil, err
			}
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults
func LoadFromFile(filename string) (*Config, error) {
	cfg := Default()
	if err := cfg.decodeFile(filename); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if isJSON(filename) {
		err = json.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML or JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isJSON(filename) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Stylize.OpenAI.APIKey, "OPENAI_API_KEY")
	setFromEnv(&c.Stylize.Gemini.APIKey, "GEMINI_API_KEY")
	setFromEnv(&c.Hub.Token, "HF_TOKEN")
	setFromEnv(&c.ONNX.LibraryPath, ortenv.LibraryPathEnv)
	setFromEnv(&c.Stylize.SDWebUI.URL, "SDWEBUI_URL")
	setFromEnv(&c.Detection.Ollama.URL, "OLLAMA_URL")
	setFromEnv(&c.Detection.LlamaCpp.URL, "LLAMACPP_URL")
	setFromEnv(&c.Log.Level, "UWUIFIER_LOG_LEVEL")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !oneOf(c.Detection.Backend, DetectionBackends) {
		return fmt.Errorf("detection.backend must be one of %s, got %q", strings.Join(DetectionBackends, ", "), c.Detection.Backend)
	}
	if !oneOf(c.Stylize.Backend, StylizeBackends) {
		return fmt.Errorf("stylize.backend must be one of %s, got %q", strings.Join(StylizeBackends, ", "), c.Stylize.Backend)
	}
	if !oneOf(c.Upscale.Backend, UpscaleBackends) {
		return fmt.Errorf("upscale.backend must be one of %s, got %q", strings.Join(UpscaleBackends, ", "), c.Upscale.Backend)
	}

	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be between 0 and 1")
	}
	if c.Detection.Backend == "pigo" && c.Detection.Pigo.CascadePath == "" {
		return fmt.Errorf("detection.pigo.cascade_path is required for the pigo backend")
	}

	if c.Pipeline.Steps < 1 {
		return fmt.Errorf("pipeline.steps must be positive")
	}
	if c.Pipeline.Size < 64 || c.Pipeline.Size%8 != 0 {
		return fmt.Errorf("pipeline.size must be a multiple of 8 and at least 64")
	}
	if s := c.Pipeline.Seed; s != nil && (*s < 0 || *s > pipeline.MaxSeed) {
		return fmt.Errorf("pipeline.seed must be between 0 and %d", pipeline.MaxSeed)
	}

	if c.Stylize.Backend == "openai" && c.Stylize.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai stylizer")
	}
	if c.Stylize.Backend == "gemini" && c.Stylize.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the gemini stylizer")
	}

	if c.Upscale.Scale <= 0 {
		return fmt.Errorf("upscale.scale must be positive")
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "uwuifier", "config.yaml")
}

func isJSON(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".json")
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
