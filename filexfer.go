// filexfer runs a file transfer experiment plan over MQTT, HTTP or CoAP
// and appends one CSV row per transfer to a result log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/filexfer/coapfetch"
	"github.com/m-lab/filexfer/httpfetch"
	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/mqtt/ack"
	"github.com/m-lab/filexfer/mqtt/channel"
	"github.com/m-lab/filexfer/mqtt/sender"
	"github.com/m-lab/filexfer/mqtt/spec"
	"github.com/m-lab/filexfer/mqtt/topic"
	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/redis"
	"github.com/m-lab/filexfer/results"
	"github.com/m-lab/filexfer/runner"
)

var (
	// Flags that can be passed in on the command line, or as environment
	// variables (MQTT_BROKER for -mqtt.broker).
	protocol     = flag.String("protocol", "mqtt", "Transfer protocol: mqtt, http or coap")
	broker       = flag.String("mqtt.broker", "127.0.0.1:1883", "MQTT broker host:port or URL")
	qos          = flag.Int("mqtt.qos", spec.DefaultQoS, "QoS of the file publishes and of the ack subscription")
	keepAlive    = flag.Duration("mqtt.keepalive", spec.DefaultKeepAlive, "MQTT keepalive")
	clientID     = flag.String("mqtt.client-id", "", "MQTT client ID (default: derived from the run ID)")
	fileBase     = flag.String("file-topic-base", spec.DefaultFileTopicBase, "Topic base of published files")
	ackBase      = flag.String("ack-topic-base", spec.DefaultAckTopicBase, "Topic base of acknowledgements")
	ackTimeout   = flag.Duration("ack-timeout", spec.DefaultAckTimeout, "How long to wait for each acknowledgement, from the publish call")
	pollInterval = flag.Duration("ack-poll-interval", spec.DefaultPollInterval, "Interval between two acknowledgement checks")
	dataDir      = flag.String("datadir", "./DataFiles", "Directory of the files named in the plan")
	resultsPath  = flag.String("results", "", "CSV result log (default: ./results_<protocol>[_qos<N>].csv)")
	httpServer   = flag.String("http.server", "127.0.0.1:8000", "host:port of the HTTP file server")
	coapServer   = flag.String("coap.server", "127.0.0.1:5683", "host:port of the CoAP file server")
	redisAddr    = flag.String("redis.addr", "", "Redis address for remote termination and summaries; empty disables it")
	redisPoll    = flag.Duration("redis.poll-interval", time.Second, "Interval between two termination flag checks")
	runID        = flag.String("run-id", "", "Identifier of this run (default: random)")
	logLevel     = flag.String("log.level", "info", "Log level: debug, info, warn or error")
	experiment   = append(plan.Plan(nil), plan.Default...)

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

func init() {
	flag.Var(&experiment, "plan", "Experiment plan as name:count[,name:count...]")
}

func catchSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case <-c:
		logging.Logger.Warn("interrupted by user")
		cancel()
	case <-ctx.Done():
	}
}

func defaultResultsPath(proto string, qos int) string {
	if proto == "mqtt" {
		return fmt.Sprintf("./results_mqtt_qos%d.csv", qos)
	}
	return "./results_" + proto + ".csv"
}

// newTransferer returns the Transferer of |proto| and a function releasing
// its resources.
func newTransferer(proto, id string) (runner.Transferer, string, func(), error) {
	switch proto {
	case "mqtt":
		cid := *clientID
		if cid == "" {
			cid = "filexfer-" + id
		}
		logging.Logger.Infof("connecting to broker at %s", *broker)
		ch, err := channel.Dial(ctx, channel.Config{
			Broker:       *broker,
			ClientID:     cid,
			KeepAlive:    *keepAlive,
			CleanSession: true,
		})
		if err != nil {
			return nil, "", nil, err
		}
		logging.Logger.Infof("connected to %s (QoS=%d)", *broker, *qos)
		s := sender.New(ch, ack.NewRegistry(), sender.Config{
			Topics:       topic.Keys{FileBase: *fileBase, AckBase: *ackBase},
			QoS:          byte(*qos),
			Timeout:      *ackTimeout,
			PollInterval: *pollInterval,
			DataDir:      *dataDir,
		})
		if err := s.Start(ctx); err != nil {
			ch.Close()
			return nil, "", nil, err
		}
		return s, spec.Protocol, func() {
			ch.Close()
			logging.Logger.Info("disconnected")
		}, nil
	case "http":
		return &httpfetch.Client{Server: *httpServer}, httpfetch.Protocol, func() {}, nil
	case "coap":
		return &coapfetch.Client{Server: *coapServer}, coapfetch.Protocol, func() {}, nil
	}
	return nil, "", nil, fmt.Errorf("unknown protocol %q", proto)
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	rtx.Must(logging.SetLevel(*logLevel), "Invalid log level %q", *logLevel)
	defer cancel()

	promSrv := prometheusx.MustServeMetrics()
	defer warnonerror.Close(promSrv, "Could not stop metrics server")
	go catchSignals()

	id := *runID
	if id == "" {
		id = uuid.NewString()
	}
	logging.Logger.WithField("run", id).Infof("starting %s run", *protocol)

	transferer, label, release, err := newTransferer(*protocol, id)
	rtx.Must(err, "Could not set up %s transfers", *protocol)
	defer release()

	path := *resultsPath
	if path == "" {
		path = defaultResultsPath(*protocol, *qos)
	}
	out, err := results.Open(path)
	rtx.Must(err, "Could not open results file %s", path)
	defer warnonerror.Close(out, "Could not close results file")

	r := &runner.Runner{Transferer: transferer, Sink: out, Protocol: label, RunID: id}
	if *redisAddr != "" {
		rc := redis.NewClient(*redisAddr)
		defer warnonerror.Close(rc, "Could not close redis client")
		rtx.Must(rc.Ping(ctx), "Could not reach redis at %s", *redisAddr)
		r.Summaries = rc
		go runner.WatchTermination(ctx, rc, id, *redisPoll, cancel)
	}

	err = r.Run(ctx, experiment)
	if errors.Is(err, context.Canceled) {
		logging.Logger.Warn("run stopped before completing the plan")
		return
	}
	rtx.Must(err, "Run failed")
	logging.Logger.Infof("results written to %s", path)
}
