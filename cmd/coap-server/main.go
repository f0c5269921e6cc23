// coap-server serves the data files to the CoAP comparator.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/filexfer/coapfetch"
	"github.com/m-lab/filexfer/logging"
)

var (
	addr     = flag.String("addr", ":5683", "UDP address on which the files are served")
	dataDir  = flag.String("datadir", "./DataFiles", "Directory of the files to serve")
	logLevel = flag.String("log.level", "info", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	rtx.Must(logging.SetLevel(*logLevel), "Invalid log level %q", *logLevel)

	srv, err := coapfetch.Listen(*addr, *dataDir)
	rtx.Must(err, "Could not listen on %s", *addr)
	go func() {
		if err := srv.Serve(); err != nil {
			logging.Logger.WithError(err).Error("coap server stopped")
		}
	}()
	logging.Logger.Infof("serving files from %s on %s", *dataDir, srv.Addr())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	srv.Stop()
}
