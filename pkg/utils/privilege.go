package utils

import (
	"errors"

	"golang.org/x/sys/unix"
)

var ErrNotPrivileged = errors.New("raw icmp sockets require root privileges or CAP_NET_RAW")

// IsPrivileged reports whether the process may open raw sockets: either it
// runs as root or CAP_NET_RAW is in its effective set.
func IsPrivileged() bool {
	if unix.Geteuid() == 0 {
		return true
	}

	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	return data[0].Effective&(1<<unix.CAP_NET_RAW) != 0
}

func CheckPrivileges() error {
	if !IsPrivileged() {
		return ErrNotPrivileged
	}
	return nil
}
