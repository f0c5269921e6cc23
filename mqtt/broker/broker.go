// Package broker runs an embedded MQTT broker for local experiments and
// integration tests.
package broker

import (
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// New returns a broker accepting anonymous TCP clients on |addr|. The
// caller starts it with Serve and stops it with Close.
func New(addr string) (*mqtt.Server, error) {
	server := mqtt.New(&mqtt.Options{})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, err
	}
	return server, nil
}
