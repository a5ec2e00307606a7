package pinger

import (
	"context"
	"net"
	"sync"
	"time"

	pkgraw "example.com/icmpping/pkg/raw"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// inbound is a datagram that shows up after delay once a read starts.
type inbound struct {
	delay time.Duration
	data  []byte
	from  net.IP
}

// replyFunc decides what the network answers to an outgoing request.
type replyFunc func(seq int, request []byte) []inbound

// fakeTransceiver is an in-memory network: every Send may queue datagrams
// for later reads, time only passes through the fake clock.
type fakeTransceiver struct {
	clock *fakeClock
	codec pkgraw.PacketCodec
	reply replyFunc

	queue  []inbound
	sent   [][]byte
	waits  []time.Duration
	closed int

	sendErr    error
	sendErrAt  int
	recvErr    error
	recvErrAt  int
	recvCalls  int
	sendCounts int
}

func (f *fakeTransceiver) Send(b []byte, dst net.IP) error {
	f.sendCounts++
	if f.sendErr != nil && f.sendCounts == f.sendErrAt {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), b...))

	msg := decodeRequest(f.codec, b)
	if f.reply != nil {
		f.queue = append(f.queue, f.reply(msg.Seq, b)...)
	}
	return nil
}

func (f *fakeTransceiver) ReceiveFrom(b []byte, wait time.Duration) (int, net.IP, error) {
	f.recvCalls++
	f.waits = append(f.waits, wait)
	if f.recvErr != nil && f.recvCalls == f.recvErrAt {
		return 0, nil, f.recvErr
	}

	if len(f.queue) == 0 || f.queue[0].delay > wait {
		if len(f.queue) > 0 {
			f.queue[0].delay -= wait
		}
		f.clock.Advance(wait)
		return 0, nil, pkgraw.ErrTimeout
	}

	next := f.queue[0]
	f.queue = f.queue[1:]
	f.clock.Advance(next.delay)
	return copy(b, next.data), next.from, nil
}

func (f *fakeTransceiver) Close() error {
	f.closed++
	return nil
}

// decodeRequest reads back an outgoing request; the transceiver sees bare
// ICMP messages for both versions.
func decodeRequest(codec pkgraw.PacketCodec, b []byte) pkgraw.EchoMessage {
	if codec.IPVersion() == 4 {
		msg, err := codec.Decode(ipv4Datagram(b))
		if err != nil {
			panic(err)
		}
		return *msg
	}
	msg, err := codec.Decode(b)
	if err != nil {
		panic(err)
	}
	return *msg
}

// ipv4Datagram wraps an ICMP message in a minimal IPv4 header.
func ipv4Datagram(icmpMsg []byte) []byte {
	b := make([]byte, 20+len(icmpMsg))
	b[0] = 0x45
	b[2] = byte(len(b) >> 8)
	b[3] = byte(len(b))
	b[8] = 64
	b[9] = 1
	copy(b[12:16], []byte{192, 0, 2, 1})
	copy(b[16:20], []byte{192, 0, 2, 2})
	copy(b[20:], icmpMsg)
	return b
}

// echoReply builds what the peer sends back for an echo request.
func echoReply(codec pkgraw.PacketCodec, id, seq int) []byte {
	wb := codec.Encode(pkgraw.EchoMessage{Type: codec.ReplyType(), ID: id, Seq: seq})
	if codec.IPVersion() == 4 {
		return ipv4Datagram(wb)
	}
	return wb
}

func otherType(codec pkgraw.PacketCodec, id, seq int) []byte {
	wb := codec.Encode(pkgraw.EchoMessage{Type: codec.RequestType(), ID: id, Seq: seq})
	if codec.IPVersion() == 4 {
		return ipv4Datagram(wb)
	}
	return wb
}
