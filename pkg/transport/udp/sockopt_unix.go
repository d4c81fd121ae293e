//go:build unix

package udp

import (
	"golang.org/x/sys/unix"
)

// setSockoptReuseAddr sets SO_REUSEADDR on the socket.
// Unix version (Linux, macOS, BSD, etc.)
func setSockoptReuseAddr(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// setSockoptBroadcast sets SO_BROADCAST on the socket.
func setSockoptBroadcast(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
}
