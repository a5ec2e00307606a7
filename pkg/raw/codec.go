package raw

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EchoMessage is the decoded (or to-be-encoded) form of an ICMP echo
// request or reply.
type EchoMessage struct {
	Type int
	Code int
	ID   int
	Seq  int

	// SentAt is the send time embedded in the payload,
	// zero when the payload does not carry one.
	SentAt time.Time
}

func (msg *EchoMessage) String() string {
	return fmt.Sprintf("type=%d code=%d id=%d seq=%d", msg.Type, msg.Code, msg.ID, msg.Seq)
}

// PacketCodec frames echo messages for one IP version. A codec is picked once
// per session, see NewPacketCodec.
type PacketCodec interface {
	// IPVersion returns 4 or 6.
	IPVersion() int
	RequestType() int
	ReplyType() int

	// Encode serializes msg into a fresh buffer.
	Encode(msg EchoMessage) []byte

	// Decode parses a datagram as it is delivered by the raw socket of the
	// corresponding address family.
	Decode(b []byte) (*EchoMessage, error)
}

func NewPacketCodec(ipVersion int) (PacketCodec, error) {
	switch ipVersion {
	case 4:
		return ICMP4Codec{}, nil
	case 6:
		return ICMP6Codec{}, nil
	default:
		return nil, fmt.Errorf("unsupported ip version: %d", ipVersion)
	}
}

func encodeTimestamp(b []byte, t time.Time) {
	if t.IsZero() {
		binary.BigEndian.PutUint64(b, 0)
		return
	}
	secs := float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
	binary.BigEndian.PutUint64(b, math.Float64bits(secs))
}

func decodeTimestamp(b []byte) time.Time {
	if len(b) < timestampLen {
		return time.Time{}
	}
	secs := math.Float64frombits(binary.BigEndian.Uint64(b[:timestampLen]))
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(secs*float64(time.Second)))
}

func marshalEcho(msg EchoMessage) []byte {
	wb := make([]byte, EchoPayloadSize)
	wb[0] = byte(msg.Type)
	wb[1] = byte(msg.Code)
	// wb[2:4] is the checksum, left zero here
	binary.BigEndian.PutUint16(wb[4:6], uint16(msg.ID))
	binary.BigEndian.PutUint16(wb[6:8], uint16(msg.Seq))
	encodeTimestamp(wb[headerSizeICMP:], msg.SentAt)
	return wb
}

type ICMP4Codec struct{}

func (ICMP4Codec) IPVersion() int   { return 4 }
func (ICMP4Codec) RequestType() int { return ICMPTypeEchoRequest4 }
func (ICMP4Codec) ReplyType() int   { return ICMPTypeEchoReply4 }

func (ICMP4Codec) Encode(msg EchoMessage) []byte {
	wb := marshalEcho(msg)
	binary.BigEndian.PutUint16(wb[2:4], Checksum(wb))
	return wb
}

// Decode expects an IPv4 datagram including its header, which is how a raw
// AF_INET socket delivers it. The header length is taken from the IHL field
// so that options are skipped correctly.
func (ICMP4Codec) Decode(b []byte) (*EchoMessage, error) {
	if len(b) < ipv4HeaderLen+headerSizeICMP {
		return nil, fmt.Errorf("%w: got %d bytes of ipv4 datagram", ErrTruncated, len(b))
	}

	thepacket := gopacket.NewPacket(b, layers.LayerTypeIPv4, gopacket.Default)
	ipLayer := thepacket.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, fmt.Errorf("failed to extract ip layer: %v", packetError(thepacket))
	}
	ipPacket, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return nil, fmt.Errorf("failed to cast ip layer to ip packet")
	}
	if ipPacket.Protocol != layers.IPProtocolICMPv4 {
		return nil, fmt.Errorf("unexpected ip protocol: %d", ipPacket.Protocol)
	}

	icmpLayer := thepacket.Layer(layers.LayerTypeICMPv4)
	if icmpLayer == nil {
		return nil, fmt.Errorf("%w: failed to extract icmp layer: %v", ErrTruncated, packetError(thepacket))
	}
	icmpPacket, ok := icmpLayer.(*layers.ICMPv4)
	if !ok {
		return nil, fmt.Errorf("failed to cast icmp layer to icmp packet")
	}

	msg := &EchoMessage{
		Type: int(icmpPacket.TypeCode.Type()),
		Code: int(icmpPacket.TypeCode.Code()),
		ID:   int(icmpPacket.Id),
		Seq:  int(icmpPacket.Seq),
	}
	if msg.Type == ICMPTypeEchoReply4 || msg.Type == ICMPTypeEchoRequest4 {
		msg.SentAt = decodeTimestamp(icmpPacket.Payload)
	}
	return msg, nil
}

type ICMP6Codec struct{}

func (ICMP6Codec) IPVersion() int   { return 6 }
func (ICMP6Codec) RequestType() int { return ICMPTypeEchoRequest6 }
func (ICMP6Codec) ReplyType() int   { return ICMPTypeEchoReply6 }

// Encode leaves the checksum zero, the kernel fills it in for raw ICMPv6
// sockets since it depends on the IPv6 pseudo header.
func (ICMP6Codec) Encode(msg EchoMessage) []byte {
	return marshalEcho(msg)
}

// Decode expects a bare ICMPv6 message; raw AF_INET6 sockets never deliver
// the IPv6 header.
func (ICMP6Codec) Decode(b []byte) (*EchoMessage, error) {
	if len(b) < headerSizeICMP {
		return nil, fmt.Errorf("%w: got %d bytes of icmpv6 message", ErrTruncated, len(b))
	}

	thepacket := gopacket.NewPacket(b, layers.LayerTypeICMPv6, gopacket.Default)
	icmpLayer := thepacket.Layer(layers.LayerTypeICMPv6)
	if icmpLayer == nil {
		return nil, fmt.Errorf("failed to extract icmpv6 layer: %v", packetError(thepacket))
	}
	icmpPacket, ok := icmpLayer.(*layers.ICMPv6)
	if !ok {
		return nil, fmt.Errorf("failed to cast icmpv6 layer to icmpv6 packet")
	}

	msg := &EchoMessage{
		Type: int(icmpPacket.TypeCode.Type()),
		Code: int(icmpPacket.TypeCode.Code()),
	}

	// only echo request/reply carry identifier and sequence number
	echoLayer := thepacket.Layer(layers.LayerTypeICMPv6Echo)
	if echoLayer == nil {
		return msg, nil
	}
	echoPacket, ok := echoLayer.(*layers.ICMPv6Echo)
	if !ok {
		return nil, fmt.Errorf("failed to cast icmpv6 echo layer to icmpv6 echo packet")
	}
	msg.ID = int(echoPacket.Identifier)
	msg.Seq = int(echoPacket.SeqNumber)
	// the echo layer keeps no payload, the timestamp follows id and seq
	if body := icmpPacket.LayerPayload(); len(body) > 4 {
		msg.SentAt = decodeTimestamp(body[4:])
	}
	return msg, nil
}

func packetError(packet gopacket.Packet) error {
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return errLayer.Error()
	}
	return fmt.Errorf("unknown decode error")
}
