package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type NetworkMetrics struct {
	DNS        time.Duration
	TCP        time.Duration
	TLS        time.Duration
	Server     time.Duration
	Total      time.Duration
	ConnReused bool
	Attempts   int
}

func metricsFrom(resp *resty.Response) *NetworkMetrics {
	if resp == nil || resp.Request == nil {
		return &NetworkMetrics{}
	}
	ti := resp.Request.TraceInfo()
	return &NetworkMetrics{
		DNS:        ti.DNSLookup,
		TCP:        ti.TCPConnTime,
		TLS:        ti.TLSHandshake,
		Server:     ti.ServerTime,
		Total:      ti.TotalTime,
		ConnReused: ti.IsConnReused,
		Attempts:   ti.RequestAttempt,
	}
}

// Lines formats the metrics for display, one field per line.
func (m *NetworkMetrics) Lines(stage string) []string {
	reused := ""
	if m.ConnReused {
		reused = " (reused)"
	}
	lines := []string{
		fmt.Sprintf("%s dns:    %dms", stage, m.DNS.Milliseconds()),
		fmt.Sprintf("%s tcp:    %dms%s", stage, m.TCP.Milliseconds(), reused),
		fmt.Sprintf("%s tls:    %dms", stage, m.TLS.Milliseconds()),
		fmt.Sprintf("%s server: %dms", stage, m.Server.Milliseconds()),
		fmt.Sprintf("%s total:  %dms", stage, m.Total.Milliseconds()),
	}
	if m.Attempts > 1 {
		lines = append(lines, fmt.Sprintf("%s tries:  %d", stage, m.Attempts))
	}
	return lines
}

// TracedClient is a resty client with request tracing, a per-attempt
// timeout and optional retries on transport errors and 5xx responses.
type TracedClient struct {
	client *resty.Client
}

func NewTracedClient(timeout time.Duration, retries int) *TracedClient {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "signcap").
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode() >= http.StatusInternalServerError
		})
	return &TracedClient{client: c}
}

func (c *TracedClient) R(ctx context.Context) *resty.Request {
	return c.client.R().SetContext(ctx).EnableTrace()
}

// Decode unmarshals the body with the client's JSON codec. Error bodies are
// decoded too, so callers read them regardless of status.
func (c *TracedClient) Decode(resp *resty.Response, v any) error {
	return c.client.JSONUnmarshal(resp.Body(), v)
}

func reason(resp *resty.Response) string {
	if s := http.StatusText(resp.StatusCode()); s != "" {
		return s
	}
	return resp.Status()
}

// Probe sends a HEAD request to url and reports the status and timings.
// Any HTTP response counts as reachable.
func Probe(ctx context.Context, url string, timeout time.Duration) (int, *NetworkMetrics, error) {
	resp, err := NewTracedClient(timeout, 0).R(ctx).Head(url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), metricsFrom(resp), nil
}
