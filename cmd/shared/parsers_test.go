package shared

import (
	"testing"
)

func TestParseTransport(t *testing.T) {
	tests := []struct {
		input string
		host  string
		port  int
		err   bool
	}{
		{input: "udp://localhost:123", host: "localhost", port: 123, err: false},
		{input: "udp://192.168.1.100:12345", host: "192.168.1.100", port: 12345, err: false},
		{input: "udp://:5000", host: "", port: 5000, err: false},  // bind all interfaces
		{input: "udp://*:5000", host: "", port: 5000, err: false}, // also bind to all interfaces if * is provided
		{input: "udp://[::1]:5000", host: "::1", port: 5000, err: false},

		// error cases, bad protocols
		{input: "tcp://localhost:123", err: true},
		{input: "foobar://localhost:123", err: true},

		// error cases, bad ports
		{input: "udp://localhost:0", err: true},
		{input: "udp://localhost:-1", err: true},
		{input: "udp://localhost:65536", err: true},
		{input: "udp://localhost:999999999999999999", err: true},
		{input: "udp://localhost:eighty", err: true},

		// error cases, bad format
		{input: "udp://localhost:123:foobar", err: true},
		{input: "udp://::1:5000", err: true},
		{input: "://localhost:123", err: true},
		{input: "localhost:123", err: true},
		{input: "udp://localhost:", err: true},

		// error cases, stupid strings
		{input: "foobar", err: true},
		{input: "", err: true},
	}

	for _, tt := range tests {
		ep, err := ParseTransport(tt.input)
		if (err != nil) != tt.err {
			t.Errorf("ParseTransport(%s) expected err=%t but was %t", tt.input, tt.err, (err != nil))
		}
		if (err != nil) || tt.err {
			continue // ignore return values
		}

		if (ep.Host != tt.host) || (ep.Port != tt.port) {
			t.Errorf("ParseTransport(%s) = %s %d but want %s %d", tt.input, ep.Host, ep.Port, tt.host, tt.port)
		}
	}
}
