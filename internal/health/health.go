// Package health probes a relay's /health endpoint.
package health

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Timeout bounds one probe, connection included.
const Timeout = 5 * time.Second

// Check reports whether baseURL answers GET /health with a 2xx status
// within Timeout. Any failure reads as unhealthy.
func Check(ctx context.Context, baseURL string) bool {
	return CheckWith(ctx, http.DefaultClient, baseURL)
}

// CheckWith is Check with a caller-supplied client.
func CheckWith(ctx context.Context, client *http.Client, baseURL string) bool {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
