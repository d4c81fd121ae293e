package shared

import (
	"dominicbreuker/marko/pkg/endpoint"
	"fmt"
	"regexp"
	"strconv"
)

var transportRe = regexp.MustCompile(`^(udp)://(\[[^\]]*\]|[^:\[\]]*):(\d+)$`)

// ParseTransport parses a transport string in the format "udp://host:port".
// The host can be empty or "*" to bind to all interfaces, and IPv6 hosts
// are written in brackets.
func ParseTransport(s string) (endpoint.Endpoint, error) {
	matches := transportRe.FindStringSubmatch(s)
	if len(matches) != 4 {
		return endpoint.Endpoint{}, parsingError(s)
	}

	host := matches[2]
	if host == "*" { // also counts as all interfaces
		host = ""
	}
	if len(host) >= 2 && host[0] == '[' {
		host = host[1 : len(host)-1]
	}

	port, err := strconv.Atoi(matches[3])
	if err != nil {
		return endpoint.Endpoint{}, parsingError(s)
	}
	ep, err := endpoint.New(host, port)
	if err != nil {
		return endpoint.Endpoint{}, parsingError(s)
	}
	return ep, nil
}

func parsingError(s string) error {
	return fmt.Errorf("parsing %s: format should be 'udp://host:port'", s)
}
