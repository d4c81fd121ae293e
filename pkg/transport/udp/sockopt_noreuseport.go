//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package udp

func setSockoptReusePort(fd uintptr) error {
	return nil
}
