package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

var ErrInterfaceNotFound = errors.New("interface not found")

// discardPort is only used to pick a route, nothing is ever sent to it.
const discardPort = 9

func LookupInterface(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
		}
		return nil, fmt.Errorf("failed to look up interface %s: %w", name, err)
	}
	return link, nil
}

func bindToDevice(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var bindErr error
		if err := c.Control(func(fd uintptr) {
			bindErr = unix.BindToDevice(int(fd), iface)
		}); err != nil {
			return err
		}
		return bindErr
	}
}

// SourceAddress returns the local address the kernel would use to reach dst,
// optionally through iface. It connects a UDP socket, which selects a route
// without transmitting anything.
func SourceAddress(ctx context.Context, dst net.IP, ipVersion int, iface string) (net.IP, error) {
	network := "udp6"
	if ipVersion == 4 {
		network = "udp4"
	}

	dialer := net.Dialer{}
	if iface != "" {
		if _, err := LookupInterface(iface); err != nil {
			return nil, err
		}
		dialer.Control = bindToDevice(iface)
	}

	conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(dst.String(), strconv.Itoa(discardPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to determine source address for %s: %w", dst, err)
	}
	defer conn.Close()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return udpAddr.IP, nil
}
