package stylize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a portrait-like test image with a bright oval
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	cx, cy := width/2, height/2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx*4+dy*dy*2 < width*height/3 {
				img.Set(x, y, color.RGBA{240, 200, 180, 255})
			} else {
				img.Set(x, y, color.RGBA{30, 40, 60, 255})
			}
		}
	}
	return img
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(w, h)))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDefaultPromptsAreSingleLine(t *testing.T) {
	assert.True(t, strings.HasPrefix(DefaultPrompt, "anime style, futuristic tactical gear"))
	assert.NotContains(t, DefaultPrompt, "\n")
	assert.True(t, strings.HasSuffix(DefaultNegativePrompt, "unnatural face shapes."))
	assert.NotContains(t, DefaultNegativePrompt, "  ")
}

func TestFoldNegative(t *testing.T) {
	assert.Equal(t, "a", foldNegative("a", ""))
	assert.Equal(t, "a\n\nAvoid: b", foldNegative("a", "b"))
}

func TestPrepare(t *testing.T) {
	out := Prepare(createTestImage(300, 300), 0)

	assert.Equal(t, image.Rect(0, 0, DefaultSize, DefaultSize), out.Bounds())
}

func TestLineArt(t *testing.T) {
	out := LineArt(createTestImage(128, 128))

	require.Equal(t, image.Rect(0, 0, 128, 128), out.Bounds())
	// flat background has no edges, the oval border does
	corner := out.RGBAAt(2, 2)
	assert.Less(t, int(corner.R), 64)

	var bright int
	for x := 0; x < 128; x++ {
		if out.RGBAAt(x, 64).R > 128 {
			bright++
		}
	}
	assert.Greater(t, bright, 0)
}

func TestSDWebUIStylize(t *testing.T) {
	var captured TXT2IMGRequest
	var rawUnits []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sdapi/v1/txt2img", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &captured))

		var raw struct {
			AlwaysOnScripts struct {
				ControlNet struct {
					Args []map[string]interface{} `json:"args"`
				} `json:"controlnet"`
			} `json:"alwayson_scripts"`
		}
		assert.NoError(t, json.Unmarshal(body, &raw))
		rawUnits = raw.AlwaysOnScripts.ControlNet.Args

		_ = json.NewEncoder(w).Encode(TXT2IMGResponse{Images: []string{pngBase64(t, 512, 512)}})
	}))
	defer srv.Close()

	cfg := DefaultSDWebUIConfig()
	cfg.URL = srv.URL
	s := NewSDWebUIStylizer(cfg, nil)

	out, err := s.Stylize(context.Background(), createTestImage(200, 200), Request{
		Prompt:         DefaultPrompt,
		NegativePrompt: DefaultNegativePrompt,
		Seed:           424242,
	})
	require.NoError(t, err)
	assert.Equal(t, 512, out.Bounds().Dx())

	assert.Equal(t, int64(424242), captured.Seed)
	assert.Equal(t, DefaultSteps, captured.Steps)
	assert.Equal(t, 512, captured.Width)
	assert.Equal(t, "UniPC", captured.SamplerName)
	assert.Equal(t, DefaultNegativePrompt, captured.NegativePrompt)
	require.Len(t, rawUnits, 1)
	assert.Equal(t, "lineart_anime", rawUnits[0]["module"])
	assert.Equal(t, "control_v11p_sd15s2_lineart_anime", rawUnits[0]["model"])
	assert.NotEmpty(t, rawUnits[0]["image"])
}

func TestSDWebUILocalControl(t *testing.T) {
	var module string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw struct {
			AlwaysOnScripts struct {
				ControlNet struct {
					Args []ControlNetUnit `json:"args"`
				} `json:"controlnet"`
			} `json:"alwayson_scripts"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		if assert.Len(t, raw.AlwaysOnScripts.ControlNet.Args, 1) {
			module = raw.AlwaysOnScripts.ControlNet.Args[0].Module
		}
		_ = json.NewEncoder(w).Encode(TXT2IMGResponse{Images: []string{"data:image/png;base64," + pngBase64(t, 64, 64)}})
	}))
	defer srv.Close()

	cfg := DefaultSDWebUIConfig()
	cfg.URL = srv.URL
	cfg.LocalControl = true
	s := NewSDWebUIStylizer(cfg, nil)

	ctrl := s.ControlImage(createTestImage(100, 100), 64)
	require.NotNil(t, ctrl)
	assert.Equal(t, 64, ctrl.Bounds().Dx())

	_, err := s.Stylize(context.Background(), createTestImage(100, 100), Request{Prompt: "p", Size: 64, Control: ctrl})
	require.NoError(t, err)
	assert.Equal(t, "none", module)
}

func TestSDWebUIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultSDWebUIConfig()
	cfg.URL = srv.URL
	s := NewSDWebUIStylizer(cfg, nil)

	_, err := s.Stylize(context.Background(), createTestImage(32, 32), Request{Size: 32})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Nil(t, s.ControlImage(createTestImage(8, 8), 8))
}

func TestOpenAIStylize(t *testing.T) {
	var prompt, model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/edits", r.URL.Path)
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		assert.NoError(t, err)
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "prompt":
				prompt = string(data)
			case "model":
				model = string(data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"created": 1,
			"data":    []map[string]string{{"b64_json": pngBase64(t, 1024, 1024)}},
		})
	}))
	defer srv.Close()

	s := NewOpenAIStylizer("sk-test", "", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	out, err := s.Stylize(context.Background(), createTestImage(64, 64), Request{Prompt: "anime", NegativePrompt: "blurry", Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, 1024, out.Bounds().Dx())
	assert.Equal(t, "anime\n\nAvoid: blurry", prompt)
	assert.Equal(t, DefaultOpenAIModel, model)
	assert.Equal(t, "openai", s.Name())
}

func TestGeminiStylize(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, DefaultGeminiModel+":generateContent")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{"text": "here you go"},
						{"inlineData": map[string]string{"mimeType": "image/png", "data": pngBase64(t, 256, 256)}},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	s, err := NewGeminiStylizer(context.Background(), "key", "", srv.URL, nil)
	require.NoError(t, err)

	out, err := s.Stylize(context.Background(), createTestImage(64, 64), Request{Prompt: "anime", Seed: 99})
	require.NoError(t, err)
	assert.Equal(t, 256, out.Bounds().Dx())

	cfg, ok := body["generationConfig"].(map[string]interface{})
	require.True(t, ok, "generationConfig missing: %v", body)
	assert.Equal(t, float64(99), cfg["seed"])
}

func TestGeminiWithoutImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]interface{}{{"text": "I cannot draw that"}},
				},
			}},
		})
	}))
	defer srv.Close()

	s, err := NewGeminiStylizer(context.Background(), "key", "", srv.URL, nil)
	require.NoError(t, err)

	_, err = s.Stylize(context.Background(), createTestImage(16, 16), Request{Prompt: "anime"})
	assert.ErrorContains(t, err, "no image")
}
