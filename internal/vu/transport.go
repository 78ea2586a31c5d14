package vu

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/surgeload/surge/internal/metrics"
)

type clientKeyType struct{}

var clientKey clientKeyType

// ClientFromContext returns the calling VU's instrumented HTTP client,
// the equivalent of reading globalThis.fetch from inside the VU's
// realm. Modules should always fetch through this client so requests
// are timed and tagged, and so the batch deadline reliably cancels
// them.
func ClientFromContext(ctx context.Context) (*http.Client, bool) {
	c, ok := ctx.Value(clientKey).(*http.Client)
	return c, ok
}

func withClient(ctx context.Context, c *http.Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// instrumentedTransport wraps an http.RoundTripper to time every
// request into the "fetch" trend, tagged by response status (or
// "fail" on transport error), and to pin every request to the VU's
// current abort context regardless of what context the request was
// built with.
type instrumentedTransport struct {
	inner   http.RoundTripper
	fetch   *metrics.TrendHandle
	abortFn func() context.Context
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.abortFn())

	start := time.Now()
	resp, err := t.inner.RoundTrip(req)
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		t.fetch.Add(elapsedMs, "fail")
		return resp, err
	}
	t.fetch.Add(elapsedMs, statusTag(resp))
	return resp, nil
}

// statusTag normalises a response's status text into a trend tag. A
// blank status text (some servers omit the reason phrase) is folded
// into "OK" for 2xx responses and "status_<code>" otherwise, so a
// missing reason phrase never produces an empty or "_"-only tag.
func statusTag(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)))
	if text != "" {
		return text
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return "OK"
	}
	return fmt.Sprintf("status_%d", resp.StatusCode)
}
