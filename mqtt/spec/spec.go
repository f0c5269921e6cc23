// Package spec contains the constants of the acknowledged MQTT file
// transfer protocol.
package spec

import (
	"fmt"
	"time"
)

// Protocol is the protocol tag used in result rows.
const Protocol = "MQTT"

// DefaultFileTopicBase prefixes the topic on which files are published.
// The publisher sends <base>/<filename>.
const DefaultFileTopicBase = "fileTransfer"

// DefaultAckTopicBase prefixes the topic on which the subscriber replies
// once a file has been written, <base>/<filename>.
const DefaultAckTopicBase = "fileAck"

// AckPayload is the literal payload of every acknowledgement.
const AckPayload = "ACK"

// DefaultQoS is the default delivery-guarantee level for both publishes
// and subscriptions.
const DefaultQoS = 1

// DefaultAckTimeout bounds the wait for an acknowledgement. The deadline
// is anchored at the publish call, so it includes the publish itself.
const DefaultAckTimeout = 60 * time.Second

// DefaultPollInterval is the interval between two acknowledgement checks.
const DefaultPollInterval = 2 * time.Millisecond

// DefaultKeepAlive is the MQTT keepalive of both endpoints.
const DefaultKeepAlive = 60 * time.Second

// Variant returns the variant tag used in result rows for |qos|.
func Variant(qos byte) string {
	return fmt.Sprintf("QoS%d", qos)
}
