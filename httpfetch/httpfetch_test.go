package httpfetch

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-lab/go/testingx"

	"github.com/m-lab/filexfer/plan"
)

func newServer(t *testing.T) *Client {
	dir := t.TempDir()
	testingx.Must(t, os.WriteFile(filepath.Join(dir, "100B"), make([]byte, 100), 0644), "could not write file")
	srv := httptest.NewServer(NewHandler(dir))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	testingx.Must(t, err, "could not parse server url")
	return &Client{HTTP: srv.Client(), Server: u.Host}
}

func TestClient_Transfer(t *testing.T) {
	c := newServer(t)
	rows, err := c.Transfer(context.Background(), plan.Entry{File: "100B", Repeats: 3})
	testingx.Must(t, err, "transfer failed")
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, r := range rows {
		if r.Protocol != "HTTP" || r.Variant != "GET" || r.FileSize != 100 || r.Iteration != i+1 {
			t.Errorf("row %d = %+v", i, r)
		}
	}
}

func TestClient_Missing(t *testing.T) {
	c := newServer(t)
	_, err := c.Transfer(context.Background(), plan.Entry{File: "absent", Repeats: 3})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Transfer(absent) error = %v, want fs.ErrNotExist", err)
	}
}

func TestClient_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	u, err := url.Parse(srv.URL)
	testingx.Must(t, err, "could not parse server url")
	c := &Client{Server: u.Host}
	if _, err := c.Fetch(context.Background(), "100B"); err == nil || errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Fetch() error = %v, want a non-ErrNotExist error", err)
	}
	srv.Close()
	if _, err := c.Fetch(context.Background(), "100B"); err == nil {
		t.Error("Fetch() from a closed server succeeded")
	}
}
