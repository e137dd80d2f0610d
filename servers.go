package memcache

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Server is a registered memcached server.
type Server struct {
	Host string
	Port int

	// Weight is kept for compatibility with server lists written for
	// weighted distribution. It does not affect server selection.
	Weight int
}

// Key returns the server key, "host:port".
func (s Server) Key() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Server) String() string {
	return s.Key()
}

// ParseServer parses "host", "host:port" or "host:port:weight".
// The port defaults to 11211.
func ParseServer(s string) (Server, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Server{}, fmt.Errorf("empty server address")
	}

	// host:port:weight, unless the host is an IPv6 literal
	if !strings.HasPrefix(s, "[") && strings.Count(s, ":") == 2 {
		i := strings.LastIndexByte(s, ':')
		weight, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return Server{}, fmt.Errorf("invalid weight in %q: %w", s, err)
		}
		srv, err := ParseServer(s[:i])
		srv.Weight = weight
		return srv, err
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port
		return Server{Host: strings.Trim(s, "[]"), Port: DefaultPort}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Server{}, fmt.Errorf("invalid port in %q", s)
	}
	return Server{Host: host, Port: port}, nil
}

// ParseServers parses a comma-separated server list.
func ParseServers(list string) ([]Server, error) {
	var servers []Server
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		srv, err := ParseServer(part)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, nil
}
