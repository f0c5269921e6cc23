// http-server serves the data files to the HTTP comparator.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/filexfer/httpfetch"
	"github.com/m-lab/filexfer/logging"
)

var (
	addr     = flag.String("addr", ":8000", "Address on which the files are served")
	dataDir  = flag.String("datadir", "./DataFiles", "Directory of the files to serve")
	logLevel = flag.String("log.level", "info", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	rtx.Must(logging.SetLevel(*logLevel), "Invalid log level %q", *logLevel)

	srv := &http.Server{
		Addr:    *addr,
		Handler: httpfetch.NewHandler(*dataDir),
		// Large files over slow links need more than the usual minute.
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
	}
	rtx.Must(httpx.ListenAndServeAsync(srv), "Could not start server")
	logging.Logger.Infof("serving files from %s on %s", *dataDir, srv.Addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logging.Logger.Info("server stopped")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rtx.Must(srv.Shutdown(ctx), "Could not shut down server")
}
