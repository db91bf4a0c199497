package readiness

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Defaults used when the caller passes zero durations.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = time.Second
)

// Poller probes a URL until it answers.
type Poller struct {
	Client   *http.Client
	Timeout  time.Duration
	Interval time.Duration
	// Logf receives progress lines; nil discards them
	Logf func(string)
}

// WaitForReady polls url with the default client. See Poller.Wait.
func WaitForReady(ctx context.Context, url string, timeout, interval time.Duration, logf func(string)) bool {
	p := &Poller{Timeout: timeout, Interval: interval, Logf: logf}
	return p.Wait(ctx, url)
}

// Wait sends HEAD requests to url until one answers 2xx or 3xx. A 405 or 501
// is retried as GET within the same attempt. Server errors do not count as
// ready. It returns false once the timeout passes, and returns false silently
// when ctx is cancelled.
func (p *Poller) Wait(ctx context.Context, url string) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logf := p.Logf
	if logf == nil {
		logf = func(string) {}
	}
	client := p.Client
	if client == nil {
		client = &http.Client{
			Timeout: interval * 5,
			// A redirect is an answer; do not chase it
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempts := 1; time.Now().Before(deadline); attempts++ {
		status, err := probe(ctx, client, http.MethodHead, url)
		if err == nil && ok(status) {
			logf(fmt.Sprintf("Preview server responded after %d attempt(s).", attempts))
			return true
		}
		if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
			status, err = probe(ctx, client, http.MethodGet, url)
			if err == nil && ok(status) {
				logf(fmt.Sprintf("Preview server responded to GET after %d attempt(s).", attempts))
				return true
			}
		}
		if ctx.Err() != nil {
			return false
		}
		if err != nil && attempts == 1 {
			logf(fmt.Sprintf("Waiting for preview server at %s (%v).", url, err))
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}

	logf(fmt.Sprintf("Preview server did not respond within %s; continuing regardless.", timeout))
	return false
}

func ok(status int) bool {
	return status >= 200 && status < 400
}

func probe(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
