package feeds

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// permanentError stops retry immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retry calls fn up to attempts times, doubling the wait from initial up to
// maxWait between calls.
func retry(ctx context.Context, attempts int, initial, maxWait time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	d := initial
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if !sharedretry.SleepWithContext(ctx, d) {
				return ctx.Err()
			}
			d = sharedretry.NextBackoff(d, maxWait)
		}
		if err = fn(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return err
		}
	}
	return err
}
