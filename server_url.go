package main

import (
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// advertisedURL turns a listener address into a URL an operator can dial, such as
// ws://localhost:8080/ws for a viewer bound to ":8080".
func advertisedURL(scheme, address, path string) string {
	u := url.URL{Scheme: scheme, Host: reachableHostPort(address), Path: path}
	return u.String()
}

// reachableHostPort replaces wildcard and empty hosts with localhost.
func reachableHostPort(address string) string {
	address = strings.TrimSpace(address)
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		//1.- No port: only the bare host is left to check.
		host, port = address, ""
	}
	if host == "" {
		host = "localhost"
	} else if ip, err := netip.ParseAddr(host); err == nil && ip.IsUnspecified() {
		host = "localhost"
	}
	if port == "" {
		return host
	}
	return net.JoinHostPort(host, port)
}
