// Package hub downloads model files from the Hugging Face Hub and keeps
// them in a local cache, so each model is fetched once per machine.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/menta2k/uwuifier/internal/utils"
)

// DefaultEndpoint is the public Hugging Face Hub
const DefaultEndpoint = "https://huggingface.co"

// Client fetches repository files through the Hub's resolve URLs
type Client struct {
	Endpoint string
	Token    string
	CacheDir string
	// Progress receives the download progress bar; nil disables it
	Progress io.Writer

	httpClient *http.Client
	logger     *zap.Logger
}

// File identifies one file in a model repository
type File struct {
	RepoID   string `json:"repo_id" yaml:"repo_id"`
	Filename string `json:"filename" yaml:"filename"`
	Revision string `json:"revision" yaml:"revision"`
}

// String renders the file as repo@revision/filename
func (f File) String() string {
	return fmt.Sprintf("%s@%s/%s", f.RepoID, f.revision(), f.Filename)
}

func (f File) revision() string {
	if f.Revision == "" {
		return "main"
	}
	return f.Revision
}

// NewClient creates a Hub client caching under cacheDir
func NewClient(cacheDir, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Endpoint:   DefaultEndpoint,
		Token:      token,
		CacheDir:   cacheDir,
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		logger:     logger,
	}
}

// DefaultCacheDir returns ~/.cache/uwuifier/hub, or a relative fallback
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "uwuifier", "hub")
	}
	return filepath.Join(".cache", "uwuifier", "hub")
}

// CachePath returns where f is stored locally
func (c *Client) CachePath(f File) string {
	repoDir := "models--" + strings.ReplaceAll(f.RepoID, "/", "--")
	return filepath.Join(c.CacheDir, repoDir, "snapshots", f.revision(), filepath.FromSlash(f.Filename))
}

// Download returns the local path of f, fetching it first when it is not cached
func (c *Client) Download(ctx context.Context, f File) (string, error) {
	if f.RepoID == "" || f.Filename == "" {
		return "", fmt.Errorf("hub: repo id and filename are required")
	}

	dst := c.CachePath(f)
	if info, err := os.Stat(dst); err == nil && !info.IsDir() {
		c.logger.Debug("hub cache hit", zap.String("file", f.String()), zap.String("path", dst))
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("hub: failed to create cache directory: %w", err)
	}

	resolveURL := fmt.Sprintf("%s/%s/resolve/%s/%s",
		strings.TrimSuffix(c.Endpoint, "/"), f.RepoID, url.PathEscape(f.revision()), f.Filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return "", fmt.Errorf("hub: failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	c.logger.Info("downloading model file", zap.String("file", f.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("hub: failed to download %s: %w", f, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hub: failed to download %s: HTTP %s", f, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return "", fmt.Errorf("hub: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if c.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription("downloading "+filepath.Base(f.Filename)),
			progressbar.OptionSetWriter(c.Progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(c.Progress) }),
		)
		w = io.MultiWriter(tmp, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("hub: download of %s interrupted: %w", f, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("hub: failed to write %s: %w", dst, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return "", fmt.Errorf("hub: short download of %s: got %d of %d bytes", f, n, resp.ContentLength)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("hub: failed to move download into cache: %w", err)
	}

	c.logger.Info("model file cached", zap.String("file", f.String()), zap.String("path", dst), zap.String("size", utils.FormatFileSize(n)))
	return dst, nil
}

// Resolve returns path unchanged when it names an existing local file and
// downloads f otherwise
func (c *Client) Resolve(ctx context.Context, path string, f File) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("model file %s: %w", path, err)
		}
		return path, nil
	}
	return c.Download(ctx, f)
}
