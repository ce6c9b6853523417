package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum allowed response size from a platform API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxErrorBody bounds how much of an error response ends up in error messages
const maxErrorBody = 512

// restClient is the JSON-over-HTTP client shared by all platform adapters. Every request
// waits on the token bucket first, so a burst of queue jobs cannot exceed the platform quota.
type restClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	authorize  func(req *http.Request)
}

func newRESTClient(name, baseURL string, timeout time.Duration, rps float64, client *http.Client) *restClient {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &restClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// response is a decoded platform response. Header is kept for pagination.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do sends one request and classifies the outcome. in is encoded as JSON when non-nil;
// out is decoded from a 2xx body when non-nil.
func (c *restClient) do(ctx context.Context, method, path string, query url.Values, in, out any, authorize func(*http.Request)) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, shared.Permanent(fmt.Errorf("%s: encode request: %w", c.name, err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, shared.Permanent(fmt.Errorf("%s: failed to create request: %w", c.name, err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorize == nil {
		authorize = c.authorize
	}
	if authorize != nil {
		authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", integration.ErrPlatformUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %v", integration.ErrPlatformUnavailable, c.name, err)
	}
	result := &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}

	if err := classifyStatus(c.name, method, path, resp.StatusCode, raw); err != nil {
		return result, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return result, shared.Permanent(fmt.Errorf("%w: %s: failed to parse response: %v", integration.ErrPlatformInvalidResponse, c.name, err))
		}
	}
	return result, nil
}

// classifyStatus maps an HTTP status to the integration error taxonomy. Queue workers
// retry transient errors and park permanent ones.
func classifyStatus(name, method, path string, status int, body []byte) error {
	if status < 400 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorBody {
		detail = detail[:maxErrorBody]
	}
	where := fmt.Sprintf("%s %s %s: HTTP %d", name, method, path, status)
	if detail != "" {
		where += ": " + detail
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return shared.Permanent(fmt.Errorf("%w: %s", integration.ErrPlatformAuthFailed, where))
	case status == http.StatusNotFound:
		return shared.Permanent(fmt.Errorf("%w: %s", integration.ErrRemoteNotFound, where))
	case status == http.StatusConflict:
		return shared.Permanent(fmt.Errorf("%w: %s", integration.ErrDuplicate, where))
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", integration.ErrPlatformRateLimited, where)
	case status == http.StatusRequestTimeout, status >= 500:
		return fmt.Errorf("%w: %s", integration.ErrPlatformUnavailable, where)
	default:
		return shared.Permanent(fmt.Errorf("%w: %s", errRequestRejected, where))
	}
}

// errRequestRejected marks a 4xx the platform will keep rejecting
var errRequestRejected = errors.New("ecommerce: request rejected")
