// Package httpfetch measures file transfers as plain HTTP GETs, for
// comparison with the acknowledged MQTT transfer.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/results"
	"github.com/m-lab/filexfer/runner"
)

const (
	// Protocol is the protocol tag of HTTP result rows.
	Protocol = "HTTP"
	// Variant is the variant tag of HTTP result rows.
	Variant = "GET"
)

// Client fetches files from the server at Server (host:port).
type Client struct {
	HTTP   *http.Client
	Server string
}

// Fetch downloads |name| and returns the body length. A 404 yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func (c *Client) Fetch(ctx context.Context, name string) (int, error) {
	u := url.URL{Scheme: "http", Host: c.Server, Path: "/" + name}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer warnonerror.Close(resp.Body, "could not close response body")
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("GET %s: %w", u.String(), fs.ErrNotExist)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("GET %s: %s", u.String(), resp.Status)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	return int(n), err
}

// Transfer implements runner.Transferer.
func (c *Client) Transfer(ctx context.Context, e plan.Entry) ([]results.Row, error) {
	logging.Logger.WithField("file", e.File).Infof("downloading %s %d times", e.File, e.Repeats)
	return runner.Repeat(ctx, e, Protocol, Variant, func(ctx context.Context) (int, error) {
		return c.Fetch(ctx, e.File)
	})
}

// NewHandler serves the files of |dir| with an access log.
func NewHandler(dir string) http.Handler {
	return logging.MakeAccessLogHandler(http.FileServer(http.Dir(dir)))
}
