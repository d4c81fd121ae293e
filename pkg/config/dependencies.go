package config

import (
	"dominicbreuker/marko/pkg/transport"
	"io"
	"net"
	"os"
)

// Dependencies contains injectable dependencies for testing and customization.
// All fields are optional and will use default implementations if nil.
type Dependencies struct {
	Transport      transport.Transport
	UDPDialer      UDPDialerFunc
	PacketListener PacketListenerFunc
	Exit           ExitFunc
	Stdin          StdinFunc
	Stdout         StdoutFunc
}

// UDPDialerFunc is a function that dials a connected UDP socket.
// It returns a net.Conn to allow for mock implementations.
type UDPDialerFunc func(network string, laddr, raddr *net.UDPAddr) (net.Conn, error)

// PacketListenerFunc is a function that binds a packet socket.
// It returns a net.PacketConn to allow for mock implementations.
type PacketListenerFunc func(network, address string, opts transport.ListenOptions) (net.PacketConn, error)

// ExitFunc terminates the process.
type ExitFunc func(code int)

// StdinFunc is a function that returns a reader for stdin.
// It returns an io.Reader to allow for mock implementations.
type StdinFunc func() io.Reader

// StdoutFunc is a function that returns a writer for stdout.
// It returns an io.Writer to allow for mock implementations.
type StdoutFunc func() io.Writer

// GetUDPDialerFunc returns the UDP dialer function from dependencies, or a default implementation.
// If deps is nil or deps.UDPDialer is nil, returns a function that uses net.DialUDP.
func GetUDPDialerFunc(deps *Dependencies) UDPDialerFunc {
	if deps != nil && deps.UDPDialer != nil {
		return deps.UDPDialer
	}
	return func(network string, laddr, raddr *net.UDPAddr) (net.Conn, error) {
		return net.DialUDP(network, laddr, raddr)
	}
}

// GetPacketListenerFunc returns the packet listener function from dependencies, or fallback.
func GetPacketListenerFunc(deps *Dependencies, fallback PacketListenerFunc) PacketListenerFunc {
	if deps != nil && deps.PacketListener != nil {
		return deps.PacketListener
	}
	return fallback
}

// GetExitFunc returns the exit function from dependencies, or os.Exit.
func GetExitFunc(deps *Dependencies) ExitFunc {
	if deps != nil && deps.Exit != nil {
		return deps.Exit
	}
	return os.Exit
}

// GetStdinFunc returns the stdin function from dependencies, or a default implementation.
// If deps is nil or deps.Stdin is nil, returns a function that uses os.Stdin.
func GetStdinFunc(deps *Dependencies) StdinFunc {
	if deps != nil && deps.Stdin != nil {
		return deps.Stdin
	}
	return func() io.Reader {
		return os.Stdin
	}
}

// GetStdoutFunc returns the stdout function from dependencies, or a default implementation.
// If deps is nil or deps.Stdout is nil, returns a function that uses os.Stdout.
func GetStdoutFunc(deps *Dependencies) StdoutFunc {
	if deps != nil && deps.Stdout != nil {
		return deps.Stdout
	}
	return func() io.Writer {
		return os.Stdout
	}
}
