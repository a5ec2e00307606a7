package pinger

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	pkgraw "example.com/icmpping/pkg/raw"
)

const receiveBufferSize = 1500

// EchoReplyEvent describes a reply that matched the awaited probe.
type EchoReplyEvent struct {
	Seq        int
	From       net.IP
	Size       int
	ReceivedAt time.Time
}

// Prober performs one echo exchange at a time over a borrowed transceiver.
type Prober struct {
	Transceiver pkgraw.Transceiver
	Codec       pkgraw.PacketCodec

	// ICMP identifier, only its low 16 bits go on the wire
	ID int

	// Clock defaults to time.Now
	Clock  func() time.Time
	Logger *slog.Logger

	rb []byte
}

func (p *Prober) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// SendProbe encodes and transmits the echo request for seq. The returned time
// is read right after the packet left and is the origin for the RTT.
func (p *Prober) SendProbe(dst net.IP, seq int) (sentAt time.Time, nBytes int, err error) {
	wb := p.Codec.Encode(pkgraw.EchoMessage{
		Type:   p.Codec.RequestType(),
		Code:   0,
		ID:     p.ID & 0xffff,
		Seq:    seq & 0xffff,
		SentAt: p.now(),
	})
	if err := p.Transceiver.Send(wb, dst); err != nil {
		return time.Time{}, 0, err
	}
	return p.now(), len(wb), nil
}

// match reports why msg is not the reply to the probe seq, nil if it is.
func (p *Prober) match(msg *pkgraw.EchoMessage, seq int) error {
	if msg.Type != p.Codec.ReplyType() {
		return fmt.Errorf("%w: %s", pkgraw.ErrNotEchoReply, msg)
	}
	if msg.ID != p.ID&0xffff || msg.Seq != seq&0xffff {
		return fmt.Errorf("%w: %s", pkgraw.ErrForeignReply, msg)
	}
	return nil
}

// AwaitReply waits for the echo reply to seq. The deadline is fixed when the
// call starts; packets that do not match are dropped without extending it.
// It returns pkgraw.ErrTimeout when the deadline passes; any other error
// comes from the transceiver and is not recoverable.
func (p *Prober) AwaitReply(seq int, timeout time.Duration) (*EchoReplyEvent, error) {
	if p.rb == nil {
		p.rb = make([]byte, receiveBufferSize)
	}

	deadline := p.now().Add(timeout)
	for {
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return nil, pkgraw.ErrTimeout
		}

		nBytes, from, err := p.Transceiver.ReceiveFrom(p.rb, remaining)
		if err != nil {
			return nil, err
		}
		receivedAt := p.now()

		msg, err := p.Codec.Decode(p.rb[:nBytes])
		if err != nil {
			p.logger().Debug("dropping undecodable packet", "from", from, "size", nBytes, "error", err)
			continue
		}
		if err := p.match(msg, seq); err != nil {
			p.logger().Debug("dropping packet", "from", from, "seq", seq, "reason", err)
			continue
		}

		return &EchoReplyEvent{
			Seq:        seq,
			From:       from,
			Size:       nBytes,
			ReceivedAt: receivedAt,
		}, nil
	}
}

// Probe runs one full exchange. A timeout is reported as a result without
// RTT; the returned error is set only for transceiver failures, in which case
// sent tells whether the request made it out.
func (p *Prober) Probe(dst net.IP, seq int, timeout time.Duration, hooks *Hooks) (result ProbeResult, sent bool, err error) {
	sentAt, nBytes, err := p.SendProbe(dst, seq)
	if err != nil {
		return newTimedOut(seq), false, fmt.Errorf("failed to send probe %d: %w", seq, err)
	}
	hooks.sent(seq, nBytes)

	reply, err := p.AwaitReply(seq, timeout)
	if errors.Is(err, pkgraw.ErrTimeout) {
		hooks.timedOut(seq)
		return newTimedOut(seq), true, nil
	}
	if err != nil {
		return newTimedOut(seq), true, fmt.Errorf("failed to receive reply for probe %d: %w", seq, err)
	}

	result = newReplied(seq, reply.From, reply.ReceivedAt.Sub(sentAt))
	hooks.received(result, reply.Size)
	return result, true, nil
}
