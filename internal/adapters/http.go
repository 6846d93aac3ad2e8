package adapters

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrContract marks adapter output that does not satisfy the adapter
// contract, such as a response body that is not JSON.
var ErrContract = errors.New("adapter output violates contract")

const (
	maxResponseBytes = 10 << 20
	maxErrorBody     = 512
)

// NewHTTPClient returns a client whose transport is traced with OpenTelemetry.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// readResponse reads a bounded response body and classifies non-2xx statuses.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, classifyTransportError(fmt.Errorf("reading response: %w", err))
	}
	if len(body) > maxResponseBytes {
		return nil, Permanent(fmt.Errorf("%w: response exceeds %d bytes", ErrContract, maxResponseBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError(resp.StatusCode, truncate(strings.TrimSpace(string(body)), maxErrorBody))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
