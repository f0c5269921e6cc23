// Package coapfetch measures file transfers as CoAP GETs over UDP, for
// comparison with the acknowledged MQTT transfer.
package coapfetch

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-lab/go/warnonerror"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapnet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpserver "github.com/plgd-dev/go-coap/v3/udp/server"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/results"
	"github.com/m-lab/filexfer/runner"
)

const (
	// Protocol is the protocol tag of CoAP result rows.
	Protocol = "CoAP"
	// Variant is the variant tag of CoAP result rows.
	Variant = "GET"
)

// Client fetches files from the CoAP server at Server (host:port).
type Client struct {
	Server string
}

// Transfer implements runner.Transferer. One UDP session serves every
// repetition of the entry.
func (c *Client) Transfer(ctx context.Context, e plan.Entry) ([]results.Row, error) {
	co, err := udp.Dial(c.Server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Server, err)
	}
	defer warnonerror.Close(co, "could not close coap session")
	logging.Logger.WithField("file", e.File).Infof("starting experiment: %s x %d transfers", e.File, e.Repeats)
	return runner.Repeat(ctx, e, Protocol, Variant, func(ctx context.Context) (int, error) {
		resp, err := co.Get(ctx, "/"+e.File)
		if err != nil {
			return 0, err
		}
		if err := checkCode(e.File, resp.Code()); err != nil {
			return 0, err
		}
		body, err := resp.ReadBody()
		return len(body), err
	})
}

// checkCode maps a response code to an error. NotFound satisfies
// errors.Is(err, fs.ErrNotExist).
func checkCode(name string, code codes.Code) error {
	switch code {
	case codes.Content:
		return nil
	case codes.NotFound:
		return fmt.Errorf("GET /%s: %w", name, fs.ErrNotExist)
	default:
		return fmt.Errorf("GET /%s: %v", name, code)
	}
}

// readFile returns the contents of the file named by the request |path|
// below |dir|. Only plain files directly within |dir| are served.
func readFile(dir, path string) ([]byte, error) {
	name := strings.TrimPrefix(path, "/")
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return nil, fs.ErrNotExist
	}
	return os.ReadFile(filepath.Join(dir, name))
}

// NewRouter serves the files of |dir| to GET requests.
func NewRouter(dir string) *mux.Router {
	r := mux.NewRouter()
	r.DefaultHandle(mux.HandlerFunc(func(w mux.ResponseWriter, req *mux.Message) {
		path, err := req.Path()
		if err != nil {
			path = ""
		}
		data, err := readFile(dir, path)
		if err != nil {
			logging.Logger.WithError(err).WithField("path", path).Debug("coap file not served")
			if err := w.SetResponse(codes.NotFound, message.TextPlain, nil); err != nil {
				logging.Logger.WithError(err).Warn("could not set coap response")
			}
			return
		}
		logging.Logger.WithField("path", path).Debugf("serving %d bytes", len(data))
		if err := w.SetResponse(codes.Content, message.AppOctets, bytes.NewReader(data)); err != nil {
			logging.Logger.WithError(err).Warn("could not set coap response")
		}
	}))
	return r
}

// Server is a CoAP file server.
type Server struct {
	conn   *coapnet.UDPConn
	server *udpserver.Server
}

// Listen binds a UDP socket on |addr| for the files of |dir|.
func Listen(addr, dir string) (*Server, error) {
	conn, err := coapnet.NewListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		conn:   conn,
		server: udp.NewServer(options.WithMux(NewRouter(dir))),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

// Serve handles requests until Stop is called.
func (s *Server) Serve() error {
	return s.server.Serve(s.conn)
}

// Stop stops the server and releases its socket.
func (s *Server) Stop() {
	s.server.Stop()
	warnonerror.Close(s.conn, "could not close coap listener")
}
