// Package endpoint provides the host and port pair identifying a network peer.
package endpoint

import (
	"fmt"
	"net"
	"strconv"

	"dominicbreuker/marko/pkg/format"
)

// Endpoint identifies a network peer. It is an immutable value and compares
// equal by host and port.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// New returns a validated Endpoint.
func New(host string, port int) (Endpoint, error) {
	ep := Endpoint{Host: host, Port: port}
	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// Parse parses "host:port". The host may be empty to mean all interfaces.
func Parse(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: invalid port %q", s, portStr)
	}
	return New(host, port)
}

// FromAddr converts a UDP or TCP address to an Endpoint. Other address
// types are parsed from their string form.
func FromAddr(addr net.Addr) (Endpoint, error) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return Endpoint{Host: a.IP.String(), Port: a.Port}, nil
	case *net.TCPAddr:
		return Endpoint{Host: a.IP.String(), Port: a.Port}, nil
	case nil:
		return Endpoint{}, fmt.Errorf("nil address")
	default:
		return Parse(addr.String())
	}
}

// Validate reports whether the port lies in [1, 65535].
func (e Endpoint) Validate() error {
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("port %d not in [1, 65535]", e.Port)
	}
	return nil
}

// String returns the endpoint formatted as host:port, bracketing IPv6 hosts.
func (e Endpoint) String() string {
	return format.Addr(e.Host, e.Port)
}
