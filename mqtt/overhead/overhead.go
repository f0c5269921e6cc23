// Package overhead estimates the MQTT 3.1.1 framing cost of a PUBLISH.
package overhead

import "math"

// RemainingLengthWidth returns the number of bytes of the variable-length
// encoding of |remaining|: 7 bits per byte, continuation bit on all but
// the last byte.
func RemainingLengthWidth(remaining int) int {
	width := 1
	for remaining > 127 {
		remaining /= 128
		width++
	}
	return width
}

// HeaderLen estimates the PUBLISH header bytes (fixed plus variable
// header, payload excluded) for |topic| at |qos| carrying |payloadLen|
// bytes. The remaining length covers the variable header and the payload,
// so its width depends on the total message size.
func HeaderLen(topic string, qos byte, payloadLen int) int {
	variable := 2 + len(topic)
	if qos > 0 {
		variable += 2 // packet identifier
	}
	remaining := variable + payloadLen
	return 1 + RemainingLengthWidth(remaining) + variable
}

// Estimate is the application-level size of one received message.
type Estimate struct {
	PayloadBytes int
	HeaderBytes  int
	TotalBytes   int
	// Ratio is TotalBytes over PayloadBytes, +Inf for an empty payload.
	Ratio float64
}

// New computes the Estimate of a message.
func New(topic string, qos byte, payloadLen int) Estimate {
	hdr := HeaderLen(topic, qos, payloadLen)
	e := Estimate{
		PayloadBytes: payloadLen,
		HeaderBytes:  hdr,
		TotalBytes:   hdr + payloadLen,
		Ratio:        math.Inf(1),
	}
	if payloadLen > 0 {
		e.Ratio = float64(e.TotalBytes) / float64(payloadLen)
	}
	return e
}
