package main

import "testing"

func TestAdvertisedURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		scheme  string
		address string
		path    string
		want    string
	}{
		"viewer_port_only":  {scheme: "ws", address: ":8080", path: "/ws", want: "ws://localhost:8080/ws"},
		"feed_ipv4_any":     {scheme: "grpc", address: "0.0.0.0:9000", want: "grpc://localhost:9000"},
		"status_local":      {scheme: "http", address: "127.0.0.1:8080", path: "/status", want: "http://127.0.0.1:8080/status"},
		"feed_ipv6_any":     {scheme: "grpc", address: "[::]:9000", want: "grpc://localhost:9000"},
		"feed_ipv6_literal": {scheme: "grpc", address: "[2001:db8::1]:9000", want: "grpc://[2001:db8::1]:9000"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := advertisedURL(tc.scheme, tc.address, tc.path); got != tc.want {
				t.Fatalf("advertisedURL(%q, %q, %q) = %q, want %q", tc.scheme, tc.address, tc.path, got, tc.want)
			}
		})
	}
}

func TestReachableHostPortWithoutPort(t *testing.T) {
	t.Parallel()

	if got := reachableHostPort(""); got != "localhost" {
		t.Fatalf("expected localhost for empty address, got %q", got)
	}
	if got := reachableHostPort("battle.internal"); got != "battle.internal" {
		t.Fatalf("expected bare hosts to pass through, got %q", got)
	}
	if got := reachableHostPort("0.0.0.0"); got != "localhost" {
		t.Fatalf("expected a bare wildcard host to become localhost, got %q", got)
	}
}
