package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// --- Backends API ---

// ListBackends returns the registered compute backends.
func (c *Client) ListBackends(ctx context.Context) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/backends", Method: http.MethodGet})
}

// RegisterBackend registers a compute instance as a backend.
func (c *Client) RegisterBackend(ctx context.Context, instanceID string) (*Response, error) {
	return c.Execute(ctx, Request{
		Route:  "v1/backends",
		Method: http.MethodPost,
		Body:   map[string]string{"instance_id": instanceID},
	})
}

// DeleteBackend removes a backend.
func (c *Client) DeleteBackend(ctx context.Context, instanceID string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/backends/" + url.PathEscape(instanceID), Method: http.MethodDelete})
}

// SetBackendState marks a backend up or down.
func (c *Client) SetBackendState(ctx context.Context, name string, state BackendState) (*Response, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("invalid backend state %q: must be %q or %q", state, BackendUp, BackendDown)
	}
	return c.Execute(ctx, Request{
		Route:  "v1/backends/" + url.PathEscape(name),
		Method: http.MethodPatch,
		Body:   map[string]string{"state": string(state)},
	})
}

// GetBackend returns a single backend.
func (c *Client) GetBackend(ctx context.Context, name string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/backends/" + url.PathEscape(name), Method: http.MethodGet})
}

// --- Workflows API ---

// CreateWorkflow stores a new workflow.
func (c *Client) CreateWorkflow(ctx context.Context, payload WorkflowPayload) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/workflows", Method: http.MethodPost, Body: payload})
}

// ListWorkflows returns all workflows visible to the API key.
func (c *Client) ListWorkflows(ctx context.Context) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/workflows", Method: http.MethodGet})
}

// GetWorkflow returns a single workflow.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/workflows/" + url.PathEscape(workflowID), Method: http.MethodGet})
}

// UpdateWorkflow replaces the given fields of a workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, workflowID string, payload WorkflowPayload) (*Response, error) {
	return c.Execute(ctx, Request{
		Route:  "v1/workflows/" + url.PathEscape(workflowID),
		Method: http.MethodPatch,
		Body:   payload,
	})
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/workflows/" + url.PathEscape(workflowID), Method: http.MethodDelete})
}

// --- Files API ---

// UploadFile sends a local file as multipart form data.
func (c *Client) UploadFile(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/files/upload", Method: http.MethodPost, Body: path, Upload: true})
}

// --- Prompts API ---

// Prompt submits a workflow execution.
func (c *Client) Prompt(ctx context.Context, payload PromptPayload) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/prompts", Method: http.MethodPost, Body: payload})
}

// GetPromptStatus returns the current state of a prompt.
func (c *Client) GetPromptStatus(ctx context.Context, promptID string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/prompts/" + url.PathEscape(promptID), Method: http.MethodGet})
}

// CancelPrompt asks the service to stop a prompt.
func (c *Client) CancelPrompt(ctx context.Context, promptID string) (*Response, error) {
	return c.Execute(ctx, Request{Route: "v1/prompts/" + url.PathEscape(promptID) + "/cancel", Method: http.MethodPost})
}
