package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// recordingServer answers every request with a success envelope and keeps
// the last request it saw.
func recordingServer(t *testing.T) (*httptest.Server, func() recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var last recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.EscapedPath()}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.Body); err != nil {
				t.Errorf("request body is not a JSON object: %s", raw)
			}
		}
		mu.Lock()
		last = rec
		mu.Unlock()
		writeEnvelope(w, http.StatusOK, 0, "ok", nil)
	}))
	t.Cleanup(srv.Close)
	return srv, func() recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestAPI_Endpoints(t *testing.T) {
	srv, last := recordingServer(t)
	c := newTestClient(t, srv, 1)
	ctx := context.Background()

	tests := []struct {
		name       string
		call       func() (*Response, error)
		wantMethod string
		wantPath   string
		wantBody   map[string]any
	}{
		{
			name:       "ListBackends",
			call:       func() (*Response, error) { return c.ListBackends(ctx) },
			wantMethod: http.MethodGet,
			wantPath:   "/v1/backends",
		},
		{
			name:       "RegisterBackend",
			call:       func() (*Response, error) { return c.RegisterBackend(ctx, "inst-1") },
			wantMethod: http.MethodPost,
			wantPath:   "/v1/backends",
			wantBody:   map[string]any{"instance_id": "inst-1"},
		},
		{
			name:       "DeleteBackend",
			call:       func() (*Response, error) { return c.DeleteBackend(ctx, "inst-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/v1/backends/inst-1",
		},
		{
			name:       "SetBackendState",
			call:       func() (*Response, error) { return c.SetBackendState(ctx, "gpu-1", BackendDown) },
			wantMethod: http.MethodPatch,
			wantPath:   "/v1/backends/gpu-1",
			wantBody:   map[string]any{"state": "down"},
		},
		{
			name:       "GetBackend escapes the name",
			call:       func() (*Response, error) { return c.GetBackend(ctx, "gpu 1") },
			wantMethod: http.MethodGet,
			wantPath:   "/v1/backends/gpu%201",
		},
		{
			name: "CreateWorkflow",
			call: func() (*Response, error) {
				return c.CreateWorkflow(ctx, WorkflowPayload{Name: "upscale"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/v1/workflows",
			wantBody:   map[string]any{"name": "upscale"},
		},
		{
			name:       "ListWorkflows",
			call:       func() (*Response, error) { return c.ListWorkflows(ctx) },
			wantMethod: http.MethodGet,
			wantPath:   "/v1/workflows",
		},
		{
			name:       "GetWorkflow",
			call:       func() (*Response, error) { return c.GetWorkflow(ctx, "wf-1") },
			wantMethod: http.MethodGet,
			wantPath:   "/v1/workflows/wf-1",
		},
		{
			name: "UpdateWorkflow",
			call: func() (*Response, error) {
				return c.UpdateWorkflow(ctx, "wf-1", WorkflowPayload{Description: "v2"})
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/v1/workflows/wf-1",
			wantBody:   map[string]any{"description": "v2"},
		},
		{
			name:       "DeleteWorkflow",
			call:       func() (*Response, error) { return c.DeleteWorkflow(ctx, "wf-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/v1/workflows/wf-1",
		},
		{
			name:       "GetPromptStatus",
			call:       func() (*Response, error) { return c.GetPromptStatus(ctx, "p-1") },
			wantMethod: http.MethodGet,
			wantPath:   "/v1/prompts/p-1",
		},
		{
			name:       "CancelPrompt",
			call:       func() (*Response, error) { return c.CancelPrompt(ctx, "p-1") },
			wantMethod: http.MethodPost,
			wantPath:   "/v1/prompts/p-1/cancel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.call()
			if err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if !resp.OK() {
				t.Errorf("unexpected response: %+v", resp)
			}
			got := last()
			if got.Method != tt.wantMethod || got.Path != tt.wantPath {
				t.Errorf("request = %s %s, want %s %s", got.Method, got.Path, tt.wantMethod, tt.wantPath)
			}
			for k, want := range tt.wantBody {
				if got.Body[k] != want {
					t.Errorf("body[%q] = %v, want %v", k, got.Body[k], want)
				}
			}
		})
	}
}

func TestAPI_PromptBody(t *testing.T) {
	srv, last := recordingServer(t)
	c := newTestClient(t, srv, 1)

	_, err := c.Prompt(context.Background(), PromptPayload{
		WorkflowID: "wf-1",
		Inputs: []PromptInput{
			{ID: "prompt", Params: map[string]any{"text": "a cat"}},
		},
	})
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}

	got := last()
	if got.Method != http.MethodPost || got.Path != "/v1/prompts" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
	if got.Body["workflow_id"] != "wf-1" {
		t.Errorf("workflow_id = %v", got.Body["workflow_id"])
	}
	inputs, ok := got.Body["inputs"].([]any)
	if !ok || len(inputs) != 1 {
		t.Fatalf("inputs = %v", got.Body["inputs"])
	}
	first := inputs[0].(map[string]any)
	if first["id"] != "prompt" {
		t.Errorf("inputs[0] = %v", first)
	}
}

func TestAPI_SetBackendStateRejectsUnknownState(t *testing.T) {
	srv, last := recordingServer(t)
	c := newTestClient(t, srv, 1)

	if _, err := c.SetBackendState(context.Background(), "gpu-1", BackendState("sideways")); err == nil {
		t.Fatal("expected an error for an invalid state")
	}
	if got := last(); got.Method != "" {
		t.Errorf("no request should be sent, got %s %s", got.Method, got.Path)
	}
}
