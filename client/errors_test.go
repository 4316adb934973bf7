package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantAuth      bool
		wantConn      bool
		wantExhausted bool
		wantProtocol  bool
	}{
		{
			name:     "authentication",
			err:      newAuthenticationError(401, "invalid API key"),
			wantAuth: true,
		},
		{
			name:     "connection",
			err:      newConnectionError("websocket connection not established", nil),
			wantConn: true,
		},
		{
			name:          "retry exhausted is also a connection failure",
			err:           newRetryExhaustedError(3, errors.New("connection reset")),
			wantConn:      true,
			wantExhausted: true,
		},
		{
			name:         "protocol",
			err:          newProtocolError([]byte("{bad"), errors.New("unexpected EOF")),
			wantProtocol: true,
		},
		{
			name:     "wrapped authentication",
			err:      fmt.Errorf("list backends: %w", newAuthenticationError(401, "invalid API key")),
			wantAuth: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthentication(tt.err); got != tt.wantAuth {
				t.Errorf("IsAuthentication = %v, want %v", got, tt.wantAuth)
			}
			if got := IsConnection(tt.err); got != tt.wantConn {
				t.Errorf("IsConnection = %v, want %v", got, tt.wantConn)
			}
			if got := IsRetryExhausted(tt.err); got != tt.wantExhausted {
				t.Errorf("IsRetryExhausted = %v, want %v", got, tt.wantExhausted)
			}
			if got := errors.Is(tt.err, ErrProtocol); got != tt.wantProtocol {
				t.Errorf("errors.Is(ErrProtocol) = %v, want %v", got, tt.wantProtocol)
			}
		})
	}
}

func TestError_AsExposesCodeAndCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("get workflow: %w", newRetryExhaustedError(3, cause))

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As failed to find *Error")
	}
	if apiErr.Kind != KindRetryExhausted {
		t.Errorf("Kind = %v, want %v", apiErr.Kind, KindRetryExhausted)
	}
	if apiErr.Code != 500 {
		t.Errorf("Code = %d, want 500", apiErr.Code)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected the cause to be reachable through Unwrap")
	}
	if !strings.Contains(apiErr.Error(), "after 3 attempt(s)") {
		t.Errorf("unexpected message: %s", apiErr.Error())
	}
}

func TestKind_String(t *testing.T) {
	if got := KindAuthentication.String(); got != "authentication" {
		t.Errorf("KindAuthentication.String() = %q", got)
	}
	if got := Kind(99).String(); got != "unknown" {
		t.Errorf("Kind(99).String() = %q", got)
	}
}
