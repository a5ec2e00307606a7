package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrResolve = errors.New("failed to resolve target")

// LookupFunc has the signature of (*net.Resolver).LookupIP.
type LookupFunc func(ctx context.Context, network, host string) ([]net.IP, error)

type Resolver struct {
	// Lookup defaults to net.DefaultResolver.LookupIP
	Lookup LookupFunc
}

func isIPv4Mapped(ip net.IP) bool {
	return len(ip) == net.IPv6len && ip.To4() != nil
}

func (r *Resolver) lookup(ctx context.Context, network, host string) ([]net.IP, error) {
	if r != nil && r.Lookup != nil {
		return r.Lookup(ctx, network, host)
	}
	return net.DefaultResolver.LookupIP(ctx, network, host)
}

// Resolve turns target into the address to ping and its IP version. IP
// literals are taken as they are, loopback included. Names are looked up per
// family, IPv6 first unless preferV4 is set; answers that are loopback or
// IPv4-mapped IPv6 addresses are skipped.
func (r *Resolver) Resolve(ctx context.Context, target string, preferV4, preferV6 bool) (net.IP, int, error) {
	if preferV4 && preferV6 {
		return nil, 0, fmt.Errorf("-4 and -6 are mutually exclusive")
	}

	// the zone would be lost on the way to the socket address
	if strings.Contains(target, "%") {
		return nil, 0, fmt.Errorf("%w %s: zoned ipv6 addresses are not supported, use --interface instead", ErrResolve, target)
	}

	if ip := net.ParseIP(target); ip != nil {
		return resolveLiteral(ip, target, preferV4, preferV6)
	}

	networks := []string{"ip6", "ip4"}
	if preferV4 {
		networks = []string{"ip4"}
	} else if preferV6 {
		networks = []string{"ip6"}
	}

	var lastErr error
	for _, network := range networks {
		ips, err := r.lookup(ctx, network, target)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ip := range ips {
			if ip.IsLoopback() {
				continue
			}
			if network == "ip6" {
				if isIPv4Mapped(ip) {
					continue
				}
				return ip, 6, nil
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4, 4, nil
			}
		}
	}

	if lastErr != nil {
		return nil, 0, fmt.Errorf("%w %s: %v", ErrResolve, target, lastErr)
	}
	return nil, 0, fmt.Errorf("%w %s: no usable address", ErrResolve, target)
}

func resolveLiteral(ip net.IP, target string, preferV4, preferV6 bool) (net.IP, int, error) {
	if ip4 := ip.To4(); ip4 != nil {
		if isIPv4Mapped(ip) && !looksLikeIPv4(target) {
			return nil, 0, fmt.Errorf("%w %s: ipv4-mapped ipv6 addresses are not supported", ErrResolve, target)
		}
		if preferV6 {
			return nil, 0, fmt.Errorf("%w %s: not an ipv6 address", ErrResolve, target)
		}
		return ip4, 4, nil
	}
	if preferV4 {
		return nil, 0, fmt.Errorf("%w %s: not an ipv4 address", ErrResolve, target)
	}
	return ip, 6, nil
}

func looksLikeIPv4(s string) bool {
	for _, c := range s {
		if c == ':' {
			return false
		}
	}
	return true
}
