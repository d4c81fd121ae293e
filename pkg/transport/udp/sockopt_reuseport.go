//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package udp

import (
	"golang.org/x/sys/unix"
)

// setSockoptReusePort sets SO_REUSEPORT, which BSD-derived systems require
// for two unicast UDP sockets to share an address.
func setSockoptReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
