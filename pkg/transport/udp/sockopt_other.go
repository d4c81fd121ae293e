//go:build !unix && !windows

package udp

func setSockoptReuseAddr(fd uintptr) error {
	return nil
}

func setSockoptBroadcast(fd uintptr) error {
	return nil
}
