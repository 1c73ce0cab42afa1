package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// dockerHostGateway reaches services published on the host machine.
const dockerHostGateway = "host.docker.internal"

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker returns the appropriate host address for connecting to a data source.
// If running in Docker and the host is a loopback name, it returns "host.docker.internal".
// Otherwise, returns the original host unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return resolveLoopback(host)
}

// ResolveDSNHostForDocker applies ResolveHostForDocker to the host of a URL-style DSN.
// DSNs that do not parse as URLs are returned unchanged.
func ResolveDSNHostForDocker(dsn string) string {
	if !IsRunningInDocker() {
		return dsn
	}
	return rewriteDSNHost(dsn)
}

func resolveLoopback(host string) string {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostGateway
	}
	return host
}

func rewriteDSNHost(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return dsn
	}
	host := resolveLoopback(u.Hostname())
	if host == u.Hostname() {
		return dsn
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}
	return u.String()
}
