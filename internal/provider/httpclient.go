package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultUserAgent = "mailbridge"
	// maxResponseBytes bounds what is read from a provider response. MailerSend
	// answers with empty 202s or small JSON error documents.
	maxResponseBytes = 1 << 20
)

// APIClient executes provider API calls over net/http.
type APIClient struct {
	client    *http.Client
	userAgent string
}

// NewHTTPClient creates an APIClient whose calls time out after timeout.
func NewHTTPClient(timeout time.Duration) *APIClient {
	return &APIClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Do sends req and returns the status, headers and at most maxResponseBytes
// of the body. A User-Agent is added unless req sets one.
func (c *APIClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Method, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL, err)
	}
	// Drain the rest so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}
