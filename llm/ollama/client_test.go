package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/local-vlm-go/llm"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...llm.ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(append([]llm.ClientOption{llm.WithBaseURL(srv.URL)}, opts...)...)
	require.NoError(t, err)
	return client
}

func tagsHandler(names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp tagsResponse
		for _, n := range names {
			resp.Models = append(resp.Models, struct {
				Name       string    `json:"name"`
				ModifiedAt time.Time `json:"modified_at"`
				Size       int64     `json:"size"`
				Digest     string    `json:"digest"`
			}{Name: n, Size: 4 * 1024 * 1024 * 1024})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestNewClient_EnvOverride(t *testing.T) {
	t.Setenv("OLLAMA_URL", "http://ollama:11434/")

	c, err := NewClient()
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434", c.BaseURL())

	c, err = NewClient(llm.WithBaseURL("http://other:1"))
	require.NoError(t, err)
	assert.Equal(t, "http://other:1", c.BaseURL())
}

func TestGenerate_SendsPayload(t *testing.T) {
	var got llm.GenerateRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"llava","response":"a red building","done":true,"eval_count":42}`)
	})

	c := newTestClient(t, mux, llm.WithModel("llava"))

	resp, err := c.Generate(context.Background(), &llm.GenerateRequest{
		Prompt: "Describe",
		Stream: true,
		Images: []string{"aGVsbG8="},
		Options: &llm.Options{
			Temperature: llm.Float64Ptr(0.7),
			NumPredict:  llm.IntPtr(200),
			NumCtx:      llm.IntPtr(4096),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "a red building", resp.Response)
	require.NotNil(t, resp.EvalCount)
	assert.Equal(t, 42, *resp.EvalCount)

	assert.Equal(t, "llava", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, []string{"aGVsbG8="}, got.Images)
	require.NotNil(t, got.Options)
	assert.Equal(t, 200, *got.Options.NumPredict)
	assert.Equal(t, 4096, *got.Options.NumCtx)
}

func TestGenerate_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))

	_, err := c.Generate(context.Background(), &llm.GenerateRequest{Prompt: "x"})

	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "model crashed")
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}), llm.WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.Generate(context.Background(), &llm.GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestListModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", tagsHandler("llava:7b", "llama3:8b"))
	c := newTestClient(t, mux)

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)

	assert.Equal(t, "llava:7b", models[0].ID)
	assert.True(t, models[0].SupportsVision)
	assert.Equal(t, "Local model (4.0 GB) · Vision", models[0].Description)
	assert.False(t, models[1].SupportsVision)
}

func TestCheckReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", tagsHandler("llava:7b", "llama3:8b"))
	c := newTestClient(t, mux)

	tests := []struct {
		model string
		want  llm.State
	}{
		{model: "llava", want: llm.StateReady},
		{model: "llava:7b", want: llm.StateReady},
		{model: "moondream", want: llm.StateMissing},
		{model: "", want: llm.StateMissing},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			status := c.CheckReady(context.Background(), tt.model)
			assert.Equal(t, tt.want, status.State)
			assert.Equal(t, tt.model, status.Model)
			assert.False(t, status.CheckedAt.IsZero())
		})
	}
}

func TestCheckReady_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(llm.WithBaseURL(url))
	require.NoError(t, err)

	status := c.CheckReady(context.Background(), "llava")
	assert.Equal(t, llm.StateUnavailable, status.State)
	assert.NotEmpty(t, status.Detail)
	assert.False(t, status.Ready())
}

func TestPull_ReportsProgress(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req pullRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "moondream", req.Name)

		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:1","total":100,"completed":50}`)
		fmt.Fprintln(w, `{"status":"success"}`)
		fmt.Fprintln(w, `{"status":"never read"}`)
	})
	c := newTestClient(t, mux)

	var statuses []string
	var percent float64
	err := c.Pull(context.Background(), "moondream", func(p llm.PullProgress) {
		statuses = append(statuses, p.Status)
		if p.Total > 0 {
			percent = p.Percent()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"pulling manifest", "downloading", "success"}, statuses)
	assert.InDelta(t, 0.5, percent, 0.0001)
}

func TestPull_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "error line", body: `{"error":"file does not exist"}`, want: "file does not exist"},
		{name: "no success", body: `{"status":"pulling manifest"}`, want: "without success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, tt.body)
			}))
			err := c.Pull(context.Background(), "x", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// streamPull writes n progress lines spaced by gap, then success
func streamPull(n int, gap time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < n; i++ {
			fmt.Fprintf(w, `{"status":"downloading","total":%d,"completed":%d}`+"\n", n, i+1)
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(gap):
			}
		}
		fmt.Fprintln(w, `{"status":"success"}`)
	}
}

func TestPull_SlowDownloadKeepsGoing(t *testing.T) {
	// The whole stream takes ~500ms, well past the 200ms pull timeout
	c := newTestClient(t, streamPull(10, 50*time.Millisecond), llm.WithPullTimeout(200*time.Millisecond))

	lines := 0
	err := c.Pull(context.Background(), "llava", func(llm.PullProgress) { lines++ })
	require.NoError(t, err)
	assert.Equal(t, 11, lines)
}

func TestPull_IdleStreamTimesOut(t *testing.T) {
	c := newTestClient(t, streamPull(2, time.Second), llm.WithPullTimeout(100*time.Millisecond))

	lines := 0
	start := time.Now()
	err := c.Pull(context.Background(), "llava", func(llm.PullProgress) { lines++ })
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, 1, lines)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "✅ Ready", llm.Status{State: llm.StateReady}.Label())
	assert.Equal(t, "⏳ Loading...", llm.Status{State: llm.StateMissing}.Label())

	now := time.Now()
	assert.True(t, llm.Status{}.Stale(now, time.Minute))
	assert.False(t, llm.Status{CheckedAt: now}.Stale(now, time.Minute))
}
