package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/memohai/playbot/internal/media"
)

// maxResponseBytes caps provider response bodies.
const maxResponseBytes = 1 << 20

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider request failed (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("provider request failed (HTTP %d)", e.Status)
}

// Get performs a GET and returns the body of a 2xx response.
func Get(ctx context.Context, client *http.Client, rawURL, accept string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := media.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, buildHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

func buildHTTPError(statusCode int, body []byte) *HTTPError {
	detail := extractJSONErrorMessage(body)
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	return &HTTPError{Status: statusCode, Detail: detail}
}

// extractJSONErrorMessage probes common JSON error response patterns and returns
// the first human-readable message found, or "" if none.
func extractJSONErrorMessage(body []byte) string {
	var obj map[string]any
	if json.Unmarshal(body, &obj) != nil {
		return ""
	}
	for _, key := range []string{"error", "message", "detail", "error_message"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			return val
		case map[string]any:
			if msg, ok := val["message"].(string); ok {
				return msg
			}
		}
	}
	return ""
}

// ExpandTemplate fills {url}, {quality} and {apikey} placeholders with
// query-escaped values.
func ExpandTemplate(tmpl string, req Request, apiKey string) string {
	return strings.NewReplacer(
		"{url}", url.QueryEscape(req.Locator),
		"{quality}", url.QueryEscape(req.Quality),
		"{apikey}", url.QueryEscape(apiKey),
	).Replace(tmpl)
}
