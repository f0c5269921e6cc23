// mqtt-broker runs a local MQTT broker for experiments that have no broker
// of their own.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/mqtt/broker"
)

var (
	addr     = flag.String("addr", ":1883", "TCP address on which the broker listens")
	logLevel = flag.String("log.level", "info", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	rtx.Must(logging.SetLevel(*logLevel), "Invalid log level %q", *logLevel)

	server, err := broker.New(*addr)
	rtx.Must(err, "Could not create broker on %s", *addr)
	go func() {
		rtx.Must(server.Serve(), "Broker failed")
	}()
	logging.Logger.Infof("broker listening on %s", *addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logging.Logger.Info("stopping broker")
	rtx.Must(server.Close(), "Could not stop broker")
}
