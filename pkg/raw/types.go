package raw

import (
	"errors"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const ipv4HeaderLen int = ipv4.HeaderLen
const headerSizeICMP int = 8
const timestampLen int = 8
const protocolNumberICMPv4 int = 1
const protocolNumberICMPv6 int = 58

const (
	ICMPTypeEchoRequest4 = int(ipv4.ICMPTypeEcho)
	ICMPTypeEchoReply4   = int(ipv4.ICMPTypeEchoReply)
	ICMPTypeEchoRequest6 = int(ipv6.ICMPTypeEchoRequest)
	ICMPTypeEchoReply6   = int(ipv6.ICMPTypeEchoReply)
)

// EchoPayloadSize is the size of an echo message as put on the wire by the codecs,
// ICMP header plus the embedded send time.
const EchoPayloadSize = headerSizeICMP + timestampLen

var (
	ErrTimeout      = errors.New("timed out waiting for packet")
	ErrTruncated    = errors.New("packet is too short")
	ErrNotEchoReply = errors.New("not an echo reply")
	ErrForeignReply = errors.New("echo reply does not belong to the awaited probe")
	ErrClosed       = errors.New("socket is closed")
)
