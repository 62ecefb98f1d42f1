package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"crosslister/pkg/log"
)

const defaultRequestTimeout = 30 * time.Second

// apiClient thin JSON client shared by all adapters. It owns status-code
// classification so adapter methods only deal with typed errors.
type apiClient struct {
	platform   string
	httpClient *http.Client
}

func newAPIClient(platform string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &apiClient{
		platform:   platform,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// request one outbound API call
type request struct {
	method  string
	url     string
	query   url.Values
	headers map[string]string
	body    interface{}

	// wantStatus is the status treated as success; any other status is
	// classified through KindFromStatus. Zero means any 2xx.
	wantStatus int
}

// doJSON executes the request and decodes a JSON response into out (when out
// is non-nil). Failures come back as *Error.
func (c *apiClient) doJSON(ctx context.Context, req request, out interface{}) error {
	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return NewError(c.platform, KindFatal, fmt.Sprintf("encode request body: %v", err))
		}
		body = bytes.NewReader(buf)
	}

	target := req.url
	if len(req.query) > 0 {
		target = target + "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return NewError(c.platform, KindFatal, fmt.Sprintf("build request: %v", err))
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"platform": c.platform,
			"method":   req.method,
			"url":      req.url,
			"duration": duration.String(),
			"error":    err.Error(),
		}).Warn("Platform API call failed")
		return WrapError(c.platform, err)
	}
	defer resp.Body.Close()

	success := false
	if req.wantStatus != 0 {
		success = resp.StatusCode == req.wantStatus
	} else {
		success = resp.StatusCode >= 200 && resp.StatusCode < 300
	}

	log.WithFields(map[string]interface{}{
		"platform": c.platform,
		"method":   req.method,
		"url":      req.url,
		"status":   resp.StatusCode,
		"duration": duration.String(),
		"success":  success,
	}).Debug("Platform API call")

	if !success {
		msg := readErrorBody(resp.Body)
		return StatusError(c.platform, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(c.platform, KindFatal, fmt.Sprintf("decode response: %v", err))
		}
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	return string(data)
}
