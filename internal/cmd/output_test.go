package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/inercia/comfyone/client"
)

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		percent float64
		width   int
		want    string
	}{
		{0, 10, "[----------]   0%"},
		{50, 10, "[#####-----]  50%"},
		{100, 10, "[##########] 100%"},
		{150, 4, "[####] 100%"},
		{-5, 4, "[----]   0%"},
		{50, 0, ""},
	}
	for _, tt := range tests {
		if got := renderProgressBar(tt.percent, tt.width); got != tt.want {
			t.Errorf("renderProgressBar(%v, %d) = %q, want %q", tt.percent, tt.width, got, tt.want)
		}
	}
}

func TestCheckResponse(t *testing.T) {
	if err := checkResponse(&client.Response{Code: 0}); err != nil {
		t.Errorf("code 0 should pass, got %v", err)
	}
	err := checkResponse(&client.Response{Code: 1003, Message: "quota exceeded", StatusCode: 200})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") || !strings.Contains(err.Error(), "1003") {
		t.Errorf("err = %v", err)
	}
	if err := checkResponse(&client.Response{Code: 7}); err == nil || !strings.Contains(err.Error(), "no message") {
		t.Errorf("err = %v", err)
	}
}

func TestPrintResponse(t *testing.T) {
	tests := []struct {
		name string
		resp client.Response
		want string
	}{
		{"message only", client.Response{Message: "deleted"}, "deleted\n"},
		{"null data", client.Response{Data: json.RawMessage("null")}, "ok\n"},
		{"object data", client.Response{Data: json.RawMessage(`{"id":"x"}`)}, "{\n  \"id\": \"x\"\n}\n"},
		{"scalar data", client.Response{Data: json.RawMessage(`"p-1"`)}, "\"p-1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printResponse(&buf, &tt.resp); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{`{"type":"pending","taskId":"t1","data":{"current":3}}`, "queued at position 3", true},
		{`{"type":"progress","taskId":"t1","data":{"process":25}}`, "25%", true},
		{`{"type":"finished","taskId":"t1","data":{"success":true}}`, "completed", true},
		{`{"type":"finished","taskId":"t1","data":{"success":false,"message":"oom"}}`, "failed: oom", true},
		{`{"type":"error","taskId":"t1","data":{"message":"bad node"}}`, "bad node", true},
		{`{"type":"custom","taskId":"t1"}`, "", false},
		{`{"type":"pending","taskId":"t1","data":{"current":"first"}}`, "", false},
	}
	for _, tt := range tests {
		var head struct {
			Type string `json:"type"`
		}
		json.Unmarshal([]byte(tt.raw), &head)

		got, ok := describeEvent(client.Message{Type: head.Type, Raw: json.RawMessage(tt.raw)})
		if ok != tt.wantOK {
			t.Errorf("describeEvent(%s) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if ok && (!strings.Contains(got, tt.want) || !strings.Contains(got, "t1")) {
			t.Errorf("describeEvent(%s) = %q, want it to contain %q", tt.raw, got, tt.want)
		}
	}
}

func TestPrintEvent_JSON(t *testing.T) {
	jsonOutput = true
	defer func() { jsonOutput = false }()

	var buf bytes.Buffer
	printEvent(&buf, client.Message{Type: "progress", Raw: json.RawMessage("{\n \"type\": \"progress\",\n \"taskId\": \"t1\"\n}")})
	if got := buf.String(); got != `{"type":"progress","taskId":"t1"}`+"\n" {
		t.Errorf("got %q", got)
	}
}
