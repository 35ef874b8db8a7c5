// internal/common/http/client.go
package http

import (
	"io"
	"net/http"
	"time"
)

// Doer is the transport seam used by the webhook client and the
// diagnostics probes. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

type Client struct {
	httpClient *http.Client
}

// NewClient returns a client whose overall timeout is a backstop only;
// callers bound each request with a context deadline.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewProbeClient does not follow redirects, so a probe sees the status the
// endpoint actually answers with.
func NewProbeClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// ReadLimited reads at most limit bytes of body and reports whether more
// was available. limit <= 0 reads everything.
func ReadLimited(body io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		data, err := io.ReadAll(body)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return data, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}
