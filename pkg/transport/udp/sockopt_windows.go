//go:build windows

package udp

import (
	"golang.org/x/sys/windows"
)

// setSockoptReuseAddr sets SO_REUSEADDR on the socket.
// Windows version (uses windows.Handle for file descriptor)
func setSockoptReuseAddr(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}

func setSockoptBroadcast(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
}
