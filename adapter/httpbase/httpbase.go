// Package httpbase is the shared HTTP plumbing every remote adapter builds
// on: a pooled, retried, JSON-speaking client over one base URL. The
// ServiceNow, Jira, and generic REST adapters each hold one Client rather
// than re-implementing pool acquisition and retry handling.
package httpbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/httppool"
	"github.com/mitayan0/WaveQL/retry"
	"github.com/mitayan0/WaveQL/waveerrors"
)

// Client is a small wrapper binding one base URL to a shared pool and retry
// controller (spec §4.4).
type Client struct {
	BaseURL  *url.URL
	Pool     *httppool.Pool
	Retry    *retry.Controller
	Username string
	Password string
	Headers  map[string]string
	log      logrus.FieldLogger
}

// New builds a Client for baseURL using pool for transport acquisition and
// retryCtl for rate-limit handling.
func New(baseURL string, pool *httppool.Pool, retryCtl *retry.Controller, log logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, waveerrors.ErrConfiguration.New(fmt.Sprintf("invalid base URL %q: %s", baseURL, err))
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{BaseURL: u, Pool: pool, Retry: retryCtl, Headers: map[string]string{}, log: log}, nil
}

// Do issues an HTTP request against path (resolved relative to BaseURL) with
// query parameters, optional JSON body, and decodes a JSON response into
// out (when out is non-nil). It acquires a transport from the pool for the
// request's host and drives it through the retry controller (spec §4.3
// suspension points (a)-(c)).
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, out any) (*http.Response, []byte, error) {
	full := *c.BaseURL
	full.Path = joinPath(full.Path, path)
	if query != nil {
		full.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, waveerrors.ErrQuery.New(err.Error())
		}
		bodyReader = bytes.NewReader(encoded)
	}

	lease, err := c.Pool.Acquire(ctx, full.Hostname())
	if err != nil {
		return nil, nil, err
	}
	defer lease.Release()

	resp, err := c.Retry.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, full.String(), bodyReader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range c.Headers {
			req.Header.Set(k, v)
		}
		if c.Username != "" {
			req.SetBasicAuth(c.Username, c.Password)
		}
		return lease.Client().Do(req)
	})
	if err != nil {
		return nil, nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, waveerrors.ErrAdapter.New(err.Error())
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return resp, raw, waveerrors.ErrAuthentication.New(string(raw))
		}
		return resp, raw, waveerrors.ErrAdapter.New(fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, raw, waveerrors.ErrAdapter.New(fmt.Sprintf("decoding response: %s", err))
		}
	}
	return resp, raw, nil
}

func classifyTransportError(err error) error {
	if waveerrors.IsRateLimit(err) {
		return err
	}
	if err == context.DeadlineExceeded {
		return waveerrors.ErrTimeout.New(err.Error())
	}
	return waveerrors.ErrAdapter.New(err.Error())
}

func joinPath(base, rel string) string {
	if base == "" {
		return rel
	}
	if len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(rel) > 0 && rel[0] != '/' {
		rel = "/" + rel
	}
	return base + rel
}
