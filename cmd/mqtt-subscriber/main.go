// mqtt-subscriber stores every file published under the file topic base and
// acknowledges it once written.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/mqtt/channel"
	"github.com/m-lab/filexfer/mqtt/receiver"
	"github.com/m-lab/filexfer/mqtt/spec"
	"github.com/m-lab/filexfer/mqtt/topic"
	"github.com/m-lab/filexfer/results"
	"github.com/m-lab/filexfer/store"
)

var (
	broker      = flag.String("mqtt.broker", "127.0.0.1:1883", "MQTT broker host:port or URL")
	qos         = flag.Int("mqtt.qos", spec.DefaultQoS, "QoS of the subscription and of the acks")
	keepAlive   = flag.Duration("mqtt.keepalive", spec.DefaultKeepAlive, "MQTT keepalive")
	clientID    = flag.String("mqtt.client-id", "", "MQTT client ID (default: random)")
	fileBase    = flag.String("file-topic-base", spec.DefaultFileTopicBase, "Topic base of published files")
	ackBase     = flag.String("ack-topic-base", spec.DefaultAckTopicBase, "Topic base of acknowledgements")
	outDir      = flag.String("outdir", "received", "Directory in which received files are written")
	overheadLog = flag.String("overhead-log", "subscriber_appbytes.csv", "CSV log of per-message overhead; empty disables it")
	uniqueNames = flag.Bool("unique-filenames", true, "Never overwrite a received file; add a numeric suffix instead")
	logLevel    = flag.String("log.level", "info", "Log level: debug, info, warn or error")
	ctx, cancel = context.WithCancel(context.Background())
)

// metricsAddr is the subscriber's default metrics address. The harness
// keeps prometheusx's :9990, and both often run on one host.
const metricsAddr = ":9991"

func init() {
	setFlagDefault(flag.CommandLine, "prometheusx.listen-address", metricsAddr)
}

// setFlagDefault changes both the value and the advertised default of the
// flag |name| without marking it as set.
func setFlagDefault(fs *flag.FlagSet, name, value string) {
	f := fs.Lookup(name)
	if f == nil {
		return
	}
	rtx.Must(f.Value.Set(value), "Invalid default for -%s", name)
	f.DefValue = value
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	rtx.Must(logging.SetLevel(*logLevel), "Invalid log level %q", *logLevel)

	promSrv := prometheusx.MustServeMetrics()
	defer warnonerror.Close(promSrv, "Could not stop metrics server")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			logging.Logger.Info("interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	id := *clientID
	if id == "" {
		id = "mqtt-subscriber-" + uuid.NewString()
	}
	ch, err := channel.Dial(ctx, channel.Config{
		Broker:       *broker,
		ClientID:     id,
		KeepAlive:    *keepAlive,
		CleanSession: true,
	})
	rtx.Must(err, "Could not connect to broker %s", *broker)
	defer ch.Close()
	logging.Logger.Infof("connected to %s (QoS=%d)", *broker, *qos)

	var sink receiver.OverheadSink
	if *overheadLog != "" {
		l, err := results.OpenOverheadLog(*overheadLog)
		rtx.Must(err, "Could not open overhead log %s", *overheadLog)
		defer warnonerror.Close(l, "Could not close overhead log")
		sink = l
	}

	keys := topic.Keys{FileBase: *fileBase, AckBase: *ackBase}
	r := receiver.New(ch, store.Dir{Path: *outDir, Unique: *uniqueNames}, keys, byte(*qos), sink)
	rtx.Must(r.Start(ctx), "Could not subscribe to %s", keys.FilePattern())
	logging.Logger.Infof("subscribed to %s, writing to %s", keys.FilePattern(), *outDir)

	<-ctx.Done()
	logging.Logger.Info("disconnecting")
}
