package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 32 << 20

// BackoffDelay returns the wait before the retry that follows failed attempt
// number attempt (1-based): base * 2^attempt.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base * time.Duration(int64(1)<<uint(attempt))
}

// Execute sends req, retrying transient failures with exponential backoff.
//
// A 401 fails immediately with an authentication error. Network errors, 429 and
// 5xx responses are retried until MaxRetries attempts have been made, after
// which a retry-exhausted error carrying the last failure is returned. Any other
// response is decoded and returned as is.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	url := c.endpoint(req.Route)
	requestID := uuid.NewString()

	c.logger.Debug("API request",
		"method", req.Method,
		"url", url,
		"request_id", requestID,
	)

	prepared, err := c.preparePayload(req)
	if err != nil {
		return nil, newConnectionError(fmt.Sprintf("invalid request to %s", req.Route), err)
	}

	maxAttempts := *c.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	for {
		resp, err := c.attempt(ctx, req, url, requestID, prepared)
		if err == nil {
			c.logger.Debug("API response",
				"status", resp.StatusCode,
				"route", req.Route,
				"request_id", requestID,
			)
			return resp, nil
		}

		if IsAuthentication(err) {
			c.logger.Error("API authentication failed", "route", req.Route)
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newConnectionError("request cancelled", ctxErr)
		}

		attempt++
		if attempt >= maxAttempts {
			c.logger.Error("API request failed after retries",
				"route", req.Route,
				"attempts", attempt,
				"error", err,
			)
			return nil, newRetryExhaustedError(attempt, err)
		}

		delay := BackoffDelay(c.cfg.BackoffBase, attempt)
		c.logger.Warn("API error, retrying",
			"route", req.Route,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, newConnectionError("request cancelled", err)
		}
	}
}

// payload is the prepared body of a request: JSON bytes, or an upload path.
type payload struct {
	json       []byte
	uploadPath string
}

func (c *Client) preparePayload(req Request) (payload, error) {
	if req.Upload {
		path, ok := req.Body.(string)
		if !ok || path == "" {
			return payload{}, fmt.Errorf("upload body must be a file path, got %T", req.Body)
		}
		info, err := os.Stat(path)
		if err != nil {
			return payload{}, err
		}
		if info.IsDir() {
			return payload{}, fmt.Errorf("%s is a directory", path)
		}
		return payload{uploadPath: path}, nil
	}
	if req.Body == nil {
		return payload{}, nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return payload{}, fmt.Errorf("marshal body: %w", err)
	}
	return payload{json: data}, nil
}

// attempt performs one HTTP round trip.
func (c *Client) attempt(ctx context.Context, req Request, url, requestID string, p payload) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	var upload io.ReadCloser
	contentType := ""
	switch {
	case p.uploadPath != "":
		mb, ct, err := multipartBody(p.uploadPath)
		if err != nil {
			return nil, err
		}
		body, upload, contentType = mb, mb, ct
	case p.json != nil:
		body = bytes.NewReader(p.json)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		if upload != nil {
			upload.Close()
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header = c.headers.Clone()
	httpReq.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, newAuthenticationError(http.StatusUnauthorized, "invalid API key")
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, &statusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(data)), 256)}
	}
	return decodeEnvelope(resp.StatusCode, data), nil
}

// decodeEnvelope parses a response body. Bodies that are not a JSON object are
// returned verbatim in Message with the HTTP status as Code.
func decodeEnvelope(status int, data []byte) *Response {
	var r Response
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		if status >= 300 {
			r.Code = status
		}
	} else if err := json.Unmarshal(trimmed, &r); err != nil {
		r = Response{Code: status, Message: string(trimmed)}
	}
	r.StatusCode = status
	return &r
}

// multipartBody streams the file at path as the "file" form field.
func multipartBody(path string) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType(), nil
}

func (c *Client) endpoint(route string) string {
	return c.cfg.BaseURL + "/" + strings.TrimLeft(route, "/")
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
