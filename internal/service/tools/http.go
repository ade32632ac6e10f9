package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent       = "quorum-spec/1.0"
	maxErrorBody    = 512
	maxResponseBody = 4 << 20
)

// HTTPDoer is the subset of *http.Client the tools use.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() HTTPDoer {
	// Per-call deadlines come from the registry context.
	return &http.Client{Timeout: 60 * time.Second}
}

// StatusError is returned when a search API answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// doJSON sends an optional JSON body and decodes a JSON response into out.
func doJSON(ctx context.Context, client HTTPDoer, service, method, url string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", service, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", service, err)
	}
	return nil
}

func stringParam(params map[string]interface{}, name string) string {
	s, _ := params[name].(string)
	return strings.TrimSpace(s)
}

// intParam reads a JSON-normalized integer, clamped to [lo, hi].
func intParam(params map[string]interface{}, name string, def, lo, hi int) int {
	n := def
	switch v := params[name].(type) {
	case float64:
		n = int(v)
	case int:
		n = v
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
