package raw

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// Transceiver is the capability the probe engine needs from a socket.
type Transceiver interface {
	// Send transmits one ICMP message to dst.
	Send(b []byte, dst net.IP) error

	// ReceiveFrom blocks for at most wait and returns one datagram,
	// or ErrTimeout if nothing arrived in time.
	ReceiveFrom(b []byte, wait time.Duration) (n int, from net.IP, err error)

	Close() error
}

type RawSocketConfig struct {
	// 4 or 6
	IPVersion int

	// TTL for IPv4, unicast hop limit for IPv6. Zero keeps the kernel default.
	TTL int

	// Interface to bind to with SO_BINDTODEVICE, empty for no binding.
	Interface string
}

// RawSocket is a SOCK_RAW ICMP or ICMPv6 socket. On AF_INET every received
// datagram still carries its IPv4 header, on AF_INET6 only the ICMPv6
// message is delivered.
type RawSocket struct {
	fd     int
	family int
	closed bool
}

func OpenRawSocket(config RawSocketConfig) (*RawSocket, error) {
	s := new(RawSocket)

	var err error
	switch config.IPVersion {
	case 4:
		s.family = unix.AF_INET
		s.fd, err = unix.Socket(unix.AF_INET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_ICMP)
	case 6:
		s.family = unix.AF_INET6
		s.fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_ICMPV6)
	default:
		return nil, fmt.Errorf("unsupported ip version: %d", config.IPVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create raw icmp socket: %w", err)
	}

	if err := s.setup(config); err != nil {
		unix.Close(s.fd)
		return nil, err
	}
	return s, nil
}

func (s *RawSocket) setup(config RawSocketConfig) error {
	if config.TTL > 0 {
		if s.family == unix.AF_INET {
			if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_TTL, config.TTL); err != nil {
				return fmt.Errorf("failed to set TTL to %d: %w", config.TTL, err)
			}
		} else {
			if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, config.TTL); err != nil {
				return fmt.Errorf("failed to set hop limit to %d: %w", config.TTL, err)
			}
		}
	}

	if s.family == unix.AF_INET6 {
		// let only echo replies through, everything else is noise for us
		var filter unix.ICMPv6Filter
		for i := range filter.Data {
			filter.Data[i] = 0xffffffff
		}
		filter.Data[ICMPTypeEchoReply6>>5] &^= 1 << (uint(ICMPTypeEchoReply6) & 31)
		if err := unix.SetsockoptICMPv6Filter(s.fd, unix.SOL_ICMPV6, unix.ICMPV6_FILTER, &filter); err != nil {
			return fmt.Errorf("failed to set icmpv6 filter: %w", err)
		}
	}

	if config.Interface != "" {
		if err := unix.BindToDevice(s.fd, config.Interface); err != nil {
			return fmt.Errorf("failed to bind to interface %s: %w", config.Interface, err)
		}
	}
	return nil
}

func (s *RawSocket) sockaddr(dst net.IP) (unix.Sockaddr, error) {
	if s.family == unix.AF_INET {
		ip4 := dst.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%s is not an ipv4 address", dst)
		}
		sa := &unix.SockaddrInet4{}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}

	if dst.To4() != nil || len(dst) != net.IPv6len {
		return nil, fmt.Errorf("%s is not an ipv6 address", dst)
	}
	sa := &unix.SockaddrInet6{}
	copy(sa.Addr[:], dst)
	return sa, nil
}

func (s *RawSocket) Send(b []byte, dst net.IP) error {
	if s.closed {
		return ErrClosed
	}
	sa, err := s.sockaddr(dst)
	if err != nil {
		return err
	}
	for {
		err = unix.Sendto(s.fd, b, 0, sa)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to send to %s: %w", dst, err)
		}
		return nil
	}
}

func (s *RawSocket) ReceiveFrom(b []byte, wait time.Duration) (int, net.IP, error) {
	if s.closed {
		return 0, nil, ErrClosed
	}

	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil, ErrTimeout
		}

		tv := unix.NsecToTimeval(remaining.Nanoseconds())
		if tv.Sec == 0 && tv.Usec == 0 {
			// a zero SO_RCVTIMEO means wait forever
			tv.Usec = 1
		}
		if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return 0, nil, fmt.Errorf("failed to set receive timeout: %w", err)
		}

		n, from, err := unix.Recvfrom(s.fd, b, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return 0, nil, ErrTimeout
			}
			return 0, nil, fmt.Errorf("failed to receive: %w", err)
		}

		switch sa := from.(type) {
		case *unix.SockaddrInet4:
			return n, net.IP(append([]byte(nil), sa.Addr[:]...)), nil
		case *unix.SockaddrInet6:
			return n, net.IP(append([]byte(nil), sa.Addr[:]...)), nil
		default:
			return n, nil, nil
		}
	}
}

func (s *RawSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}
