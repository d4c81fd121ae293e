// Package format provides small formatting helpers for addresses and sizes.
package format

import (
	"net"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Addr joins host and port, bracketing IPv6 hosts.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Bytes renders a payload size for log output, e.g. "3 B" or "1.5 kB".
func Bytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// LocalIP returns the first non-loopback IPv4 address of an interface that is
// up, falling back to the first non-loopback IPv6 address. It returns an empty
// string when none is found.
func LocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	return pickIP(ifaces, func(iface net.Interface) ([]net.Addr, error) {
		return iface.Addrs()
	})
}

func pickIP(ifaces []net.Interface, addrsOf func(net.Interface) ([]net.Addr, error)) string {
	var v6 string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := addrsOf(iface)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
			if v6 == "" {
				v6 = ipNet.IP.String()
			}
		}
	}
	return v6
}
