package tool

import (
	"fmt"
	"net/url"
	"strings"
)

// JoinBase joins a resolved origin and an endpoint path.
func JoinBase(origin, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(origin, "/") + path
}

// HostOf extracts the host name of a base address, for reachability probes.
func HostOf(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid base address %q: %v", origin, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("base address %q has no host", origin)
	}
	return u.Hostname(), nil
}

// BuildDashboardURL builds the link a phone or browser opens to reach the console.
func BuildDashboardURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d/", host, port)
}
