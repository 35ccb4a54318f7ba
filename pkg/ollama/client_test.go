package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}

func TestLocateFaces(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "llava",
			"message": map[string]string{
				"role":    "assistant",
				"content": `{"faces":[{"x0":0.25,"y0":0.1,"x1":0.5,"y1":0.4,"confidence":0.7}]}`,
			},
			"done": true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	require.NoError(t, err)

	img := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	report, err := c.LocateFaces(context.Background(), "llava", "find faces", img)
	require.NoError(t, err)
	require.Len(t, report.Faces, 1)
	assert.Equal(t, 0.25, report.Faces[0].X0)

	assert.Equal(t, "llava", captured["model"])
	assert.Equal(t, "json", captured["format"])
}

func TestLocateFacesBadBase64(t *testing.T) {
	c, err := NewClient(DefaultURL)
	require.NoError(t, err)

	_, err = c.LocateFaces(context.Background(), "llava", "find faces", "%%%")
	assert.Error(t, err)
}
