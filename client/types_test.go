package client

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestWorkflowPayload_KeepsUnknownKeys(t *testing.T) {
	in := `{
		"name": "upscale",
		"inputs": [{"id": "12", "type": "image", "name": "source"}],
		"outputs": ["9"],
		"workflow": {"9": {"class_type": "SaveImage"}},
		"visibility": "private"
	}`

	var wf WorkflowPayload
	if err := json.Unmarshal([]byte(in), &wf); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if wf.Name != "upscale" || len(wf.Inputs) != 1 || wf.Inputs[0].Type != IOTypeImage {
		t.Errorf("unexpected payload: %+v", wf)
	}
	if wf.Extra["visibility"] != "private" {
		t.Errorf("Extra = %v", wf.Extra)
	}
	if _, ok := wf.Extra["name"]; ok {
		t.Error("modeled keys must not appear in Extra")
	}

	out, err := json.Marshal(wf)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back["visibility"] != "private" || back["name"] != "upscale" {
		t.Errorf("flattened output = %s", out)
	}
}

func TestWorkflowPayload_ModeledFieldWinsOverExtra(t *testing.T) {
	wf := WorkflowPayload{Name: "real", Extra: map[string]any{"name": "shadow", "tag": "x"}}
	out, err := json.Marshal(wf)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"name":"real"`) || strings.Contains(string(out), "shadow") {
		t.Errorf("output = %s", out)
	}
}

func TestPromptPayload_NilInputsEncodeAsEmptyList(t *testing.T) {
	out, err := json.Marshal(PromptPayload{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"inputs":[]`) {
		t.Errorf("output = %s", out)
	}
}

func TestResponse_DecodeDataWithoutData(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		resp := &Response{Data: json.RawMessage(raw)}
		var v map[string]any
		if err := resp.DecodeData(&v); err == nil {
			t.Errorf("DecodeData(%q) should fail", raw)
		}
	}
}
