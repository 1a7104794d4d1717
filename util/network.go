package util

import (
	"fmt"
	"net"
	"strconv"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ResolveListenIP turns a listen host into an IP.  An empty host, "*"
// or "0.0.0.0" yields nil, meaning every IPv4 interface; "::" is the IPv6
// wildcard.  Hostnames are resolved and the first IPv4 address is
// preferred.
func ResolveListenIP(host string) (net.IP, error) {
	switch host {
	case "", "*", "0.0.0.0":
		return nil, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup for %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	for _, a := range addrs {
		if a.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
