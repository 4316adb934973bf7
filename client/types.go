package client

import (
	"encoding/json"
	"fmt"
)

// Response is the application envelope returned by every API route.
// The executor does not interpret Code; that is left to the caller.
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`

	// StatusCode is the HTTP status of the final attempt.
	StatusCode int `json:"-"`
}

// OK reports whether the envelope carries the service's success code.
func (r *Response) OK() bool {
	return r != nil && r.Code == 0
}

// DecodeData unmarshals the envelope's data field into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Request describes a single logical API call.
type Request struct {
	Route  string
	Method string
	// Body is JSON-encoded when set. For uploads it is the path of the file to send.
	Body any
	// Upload sends Body as a multipart file instead of JSON.
	Upload bool
}

// BackendState is the administrative state of a compute backend.
type BackendState string

const (
	BackendUp   BackendState = "up"
	BackendDown BackendState = "down"
)

// Valid reports whether s is a state the service accepts.
func (s BackendState) Valid() bool {
	return s == BackendUp || s == BackendDown
}

// IOType is the value type of a workflow input.
type IOType string

const (
	IOTypeNumber  IOType = "number"
	IOTypeString  IOType = "string"
	IOTypeBoolean IOType = "boolean"
	IOTypeImage   IOType = "image"
)

// WorkflowInput declares a parameter exposed by a workflow node.
type WorkflowInput struct {
	ID   string `json:"id" yaml:"id"`
	Type IOType `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

// WorkflowPayload defines a server-stored workflow.
// Keys the service accepts but this type does not model go in Extra and are
// sent inline.
type WorkflowPayload struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Config      any             `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs      []WorkflowInput `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []string        `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Workflow    any             `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Extra       map[string]any  `json:"-" yaml:",inline"`
}

var workflowKeys = []string{"id", "name", "description", "config", "inputs", "outputs", "workflow"}

// MarshalJSON writes the known fields and flattens Extra beside them.
func (w WorkflowPayload) MarshalJSON() ([]byte, error) {
	type plain WorkflowPayload
	return marshalWithExtra(plain(w), w.Extra)
}

// UnmarshalJSON collects unknown keys into Extra.
func (w *WorkflowPayload) UnmarshalJSON(data []byte) error {
	type plain WorkflowPayload
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownKeys(data, workflowKeys)
	if err != nil {
		return err
	}
	*w = WorkflowPayload(p)
	w.Extra = extra
	return nil
}

// PromptInput sets the parameters of one workflow node.
type PromptInput struct {
	ID     string         `json:"id" yaml:"id"`
	Params map[string]any `json:"params" yaml:"params"`
}

// PromptPayload requests one execution of a workflow.
type PromptPayload struct {
	WorkflowID string         `json:"workflow_id" yaml:"workflow_id"`
	Inputs     []PromptInput  `json:"inputs" yaml:"inputs"`
	Extra      map[string]any `json:"-" yaml:",inline"`
}

var promptKeys = []string{"workflow_id", "inputs"}

// MarshalJSON writes the known fields and flattens Extra beside them.
func (p PromptPayload) MarshalJSON() ([]byte, error) {
	type plain PromptPayload
	if p.Inputs == nil {
		p.Inputs = []PromptInput{}
	}
	return marshalWithExtra(plain(p), p.Extra)
}

// UnmarshalJSON collects unknown keys into Extra.
func (p *PromptPayload) UnmarshalJSON(data []byte) error {
	type plain PromptPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := unknownKeys(data, promptKeys)
	if err != nil {
		return err
	}
	*p = PromptPayload(v)
	p.Extra = extra
	return nil
}

// PromptStatus is the data of a prompt status response.
type PromptStatus struct {
	ID     string   `json:"id,omitempty"`
	Status string   `json:"status,omitempty"`
	Images []string `json:"images,omitempty"`
}

func marshalWithExtra(known any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range extra {
		// Modeled fields win over extras with the same key.
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

func unknownKeys(data []byte, known []string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
