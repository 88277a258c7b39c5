package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ollama-usage/usage"
)

const (
	hexA = "1a9a388336073f25f143cdd39abe37b306a367d031d6c04a79bbb545232ae113"
	hexB = "43f7a214e5329f672bb05404cfba1913cbb70fdaa1a17497224e1925046b0ed5"
)

func testResult() usage.Result {
	blocks := []usage.LogBlock{{
		Source: "server.log",
		Data: []byte("time=2024-10-29T07:18:20Z level=INFO\n" +
			"llama_model_loader: loaded meta data with 35 key-value pairs from /blobs/sha256-" + hexA + "\n" +
			"llama_model_loader: loaded meta data with 35 key-value pairs from /blobs/sha256-" + hexB + "\n"),
	}}
	docs := []usage.Document{{
		Path: "manifests/registry.ollama.ai/library/llama3/8b",
		Value: map[string]any{
			"layers": []any{map[string]any{
				"mediaType": usage.ModelMediaType,
				"digest":    "sha256:" + hexA,
				"size":      json.Number("4661224676"),
			}},
		},
	}}
	return usage.Build(blocks, docs)
}

func newTestServer(t *testing.T, report Reporter) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("OLLAMA_ORIGINS", "")
	s := &Server{report: report}
	return s.GenerateRoutes()
}

func TestUsageHandler(t *testing.T) {
	h := newTestServer(t, func(context.Context) (usage.Result, error) {
		result := testResult()
		result.Warnings = append(result.Warnings, errors.New("server.log:9: bad timestamp"))
		return result, nil
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))

	expect := map[string]any{
		"models": []any{
			map[string]any{
				"name":      "43f7a214e532-deleted",
				"digest":    hexB,
				"last_used": "2024-10-29T07:18:20Z",
				"count":     float64(1),
				"deleted":   true,
			},
			map[string]any{
				"name":      "llama3:8b",
				"digest":    hexA,
				"last_used": "2024-10-29T07:18:20Z",
				"count":     float64(1),
				"size":      float64(4661224676),
			},
		},
		"unlogged": []any{},
		"warnings": []any{"server.log:9: bad timestamp"},
	}

	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("unexpected response (-want +got):\n%s", diff)
	}
}

func TestUsageHandlerError(t *testing.T) {
	h := newTestServer(t, func(context.Context) (usage.Result, error) {
		return usage.Result{}, errors.New("no server logs or manifests found")
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"no server logs or manifests found"}`, w.Body.String())
}

func TestRoot(t *testing.T) {
	h := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(method, "/", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, func(context.Context) (usage.Result, error) {
		return usage.Result{}, nil
	})

	cases := []struct {
		origin string
		status int
		allow  string
	}{
		{"http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"https://127.0.0.1", http.StatusOK, "https://127.0.0.1"},
		{"http://example.org", http.StatusForbidden, ""},
	}

	for _, tt := range cases {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
			req.Header.Set("Origin", tt.origin)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.allow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServe(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, func(context.Context) (usage.Result, error) {
			return testResult(), nil
		})
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Ollama usage is running", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
