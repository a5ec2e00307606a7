package utils

import (
	"fmt"
	"net"
	"sort"

	"github.com/vishvananda/netlink"
)

// RouteInfo describes how the kernel would forward packets towards a
// destination.
type RouteInfo struct {
	Interface string
	MTU       int
	Gateway   net.IP
}

// LookupRoute asks the kernel for the route to destination. MTU is the
// smallest of the outgoing link MTU and, when considerPMTUCache is set, the
// route's cached path MTU.
func LookupRoute(destination net.IP, considerPMTUCache bool) (*RouteInfo, error) {
	handle, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("failed to create netlink handle: %w", err)
	}
	defer handle.Close()

	routes, err := handle.RouteGet(destination)
	if err != nil {
		return nil, fmt.Errorf("failed to get route for %s: %w", destination, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no route to %s", destination)
	}

	info := new(RouteInfo)
	mtus := make([]int, 0)
	for _, route := range routes {
		link, err := handle.LinkByIndex(route.LinkIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to get link by index %d: %w", route.LinkIndex, err)
		}
		if info.Interface == "" {
			info.Interface = link.Attrs().Name
			info.Gateway = route.Gw
		}
		if linkMtu := link.Attrs().MTU; linkMtu > 0 {
			mtus = append(mtus, linkMtu)
		}

		if considerPMTUCache {
			if routeMtu := route.MTU; routeMtu > 0 {
				mtus = append(mtus, routeMtu)
			}
		}
	}
	if len(mtus) > 0 {
		sort.Ints(mtus)
		info.MTU = mtus[0]
	}
	return info, nil
}
